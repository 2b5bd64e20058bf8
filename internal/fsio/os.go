package fsio

import (
	"io"
	"os"
	"sync"

	"github.com/keramics/keramics/internal/circuit"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/retry"
)

// OSStream is a DataStream backed by an open OS file handle. Reads are
// wrapped in a retryer (for transient I/O failures on removable or
// network-mounted media) and a circuit breaker (to stop hammering a
// device that has gone consistently bad).
type OSStream struct {
	path    string
	file    *os.File
	size    int64
	retryer *retry.Retryer
	breaker *circuit.Breaker

	mu sync.Mutex
}

// OpenOSStream opens path for reading and stats it for size.
func OpenOSStream(path string) (*OSStream, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerr.New(kerr.KindNotFound, "fsio.os", "open "+path)
		}
		return nil, kerr.Wrap(err, "fsio.os", "open "+path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, kerr.Wrap(err, "fsio.os", "stat "+path)
	}
	return &OSStream{
		path:    path,
		file:    f,
		size:    info.Size(),
		retryer: retry.New(retry.DefaultConfig()),
		breaker: circuit.New("fsio.os:"+path, circuit.Config{}),
	}, nil
}

func (s *OSStream) Size() int64 { return s.size }

func (s *OSStream) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(s.size, offset, buf)
	if window == nil {
		return 0, nil
	}

	var n int
	err := s.breaker.Execute(func() error {
		return s.retryer.Do(func() error {
			s.mu.Lock()
			defer s.mu.Unlock()
			var innerErr error
			n, innerErr = s.file.ReadAt(window, offset)
			if innerErr == io.EOF && n > 0 {
				innerErr = nil
			}
			if innerErr != nil {
				return kerr.New(kerr.KindIO, "fsio.os", innerErr.Error())
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *OSStream) ReadExactAt(offset int64, buf []byte) error {
	return ReadExactAt(s, offset, buf)
}

// Close releases the underlying OS file handle.
func (s *OSStream) Close() error {
	return s.file.Close()
}
