package fsio

import kerr "github.com/keramics/keramics/pkg/errors"

// DataStream is a random-access, read-only byte source. Implementations
// are shared-ownership: many callers may hold the same handle, and
// reads of disjoint offsets never interfere with each other.
type DataStream interface {
	// Size reports the stream's declared length in bytes.
	Size() int64

	// ReadAt reads into buf starting at offset, returning the number of
	// bytes read. It returns fewer bytes than len(buf) only at
	// end-of-stream; mid-stream it returns whatever one pass through
	// the composition yields (callers loop to fill buf if needed). A
	// read entirely beyond Size returns (0, nil), never an error.
	ReadAt(offset int64, buf []byte) (int, error)

	// ReadExactAt fills buf completely or returns a KindShortRead
	// error; it is equivalent to looping ReadAt until buf is full or
	// the stream is exhausted.
	ReadExactAt(offset int64, buf []byte) error
}

// ReadExactAt is the shared ReadAt-looping implementation every
// DataStream variant below delegates its ReadExactAt to.
func ReadExactAt(s DataStream, offset int64, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := s.ReadAt(offset+int64(total), buf[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return kerr.New(kerr.KindShortRead, "fsio", "stream exhausted before satisfying exact read")
		}
		total += n
	}
	return nil
}

// clampRead bounds a requested [offset, offset+len(buf)) window against
// a stream's declared size, returning the slice of buf actually in
// range (possibly empty, never erroring for an out-of-range read).
func clampRead(size int64, offset int64, buf []byte) []byte {
	if offset < 0 || offset >= size {
		return nil
	}
	avail := size - offset
	if avail < int64(len(buf)) {
		return buf[:avail]
	}
	return buf
}
