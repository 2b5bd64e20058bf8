package fsio

// WindowStream is a DataStream that exposes a bounded slice of a parent
// stream starting at a fixed offset — the variant used for partitions
// inside a volume system (APM/GPT/MBR) and for sessions inside an
// image container.
type WindowStream struct {
	parent DataStream
	base   int64
	size   int64
}

// NewWindowStream returns a DataStream over parent[base : base+size).
// It does not validate that base+size fits within parent's own size;
// out-of-range reads still come back empty per clampRead, same as any
// other DataStream.
func NewWindowStream(parent DataStream, base, size int64) *WindowStream {
	return &WindowStream{parent: parent, base: base, size: size}
}

func (w *WindowStream) Size() int64 { return w.size }

func (w *WindowStream) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(w.size, offset, buf)
	if window == nil {
		return 0, nil
	}
	return w.parent.ReadAt(w.base+offset, window)
}

func (w *WindowStream) ReadExactAt(offset int64, buf []byte) error {
	return ReadExactAt(w, offset, buf)
}
