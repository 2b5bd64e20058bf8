package fsio

// MemoryStream is a DataStream backed by an owned in-memory byte slice;
// it exists for the lifetime of whatever created it (fixtures, fuzz
// targets, decoded small resident payloads).
type MemoryStream struct {
	data []byte
}

// NewMemoryStream wraps data as a DataStream. The slice is not copied;
// callers must not mutate it afterward.
func NewMemoryStream(data []byte) *MemoryStream {
	return &MemoryStream{data: data}
}

func (m *MemoryStream) Size() int64 { return int64(len(m.data)) }

func (m *MemoryStream) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(m.Size(), offset, buf)
	if window == nil {
		return 0, nil
	}
	return copy(window, m.data[offset:]), nil
}

func (m *MemoryStream) ReadExactAt(offset int64, buf []byte) error {
	return ReadExactAt(m, offset, buf)
}
