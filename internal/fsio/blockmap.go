package fsio

import "sort"

// Extent maps a contiguous run of the logical stream onto a contiguous
// run of a backing stream: bytes [FileOffset, FileOffset+Length) of the
// logical stream come from [ParentOffset, ParentOffset+Length) of the
// chosen backing stream. Used for NTFS/ext4 data runs, EWF chunk
// tables once expanded to byte ranges, and QCOW/VHDX cluster maps.
type Extent struct {
	FileOffset   int64
	ParentOffset int64
	Length       int64
}

// BlockMappedStream is a DataStream assembled from an ordered, disjoint
// list of Extents against a backing stream, with gaps ("holes") read
// from an optional sparse source — a differencing disk's parent image,
// or nil to mean all-zero.
type BlockMappedStream struct {
	parent  DataStream
	extents []Extent
	size    int64
	holes   DataStream
}

// NewBlockMappedStream builds a BlockMappedStream. extents need not be
// given in order; they are sorted by FileOffset. holes may be nil, in
// which case unmapped regions read as zero.
func NewBlockMappedStream(parent DataStream, extents []Extent, size int64, holes DataStream) *BlockMappedStream {
	sorted := make([]Extent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FileOffset < sorted[j].FileOffset })
	return &BlockMappedStream{parent: parent, extents: sorted, size: size, holes: holes}
}

func (b *BlockMappedStream) Size() int64 { return b.size }

// findExtent returns the extent covering offset, or (Extent{}, false) if
// offset falls in a hole (before the first extent, between extents, or
// past the last one).
func (b *BlockMappedStream) findExtent(offset int64) (Extent, bool) {
	i := sort.Search(len(b.extents), func(i int) bool {
		return b.extents[i].FileOffset+b.extents[i].Length > offset
	})
	if i >= len(b.extents) {
		return Extent{}, false
	}
	e := b.extents[i]
	if offset < e.FileOffset {
		return Extent{}, false
	}
	return e, true
}

// nextExtentStart returns the FileOffset of the first extent starting
// at or after offset, or b.size if there is none — used to bound how
// far a hole read may extend before hitting mapped data.
func (b *BlockMappedStream) nextExtentStart(offset int64) int64 {
	i := sort.Search(len(b.extents), func(i int) bool {
		return b.extents[i].FileOffset >= offset
	})
	if i >= len(b.extents) {
		return b.size
	}
	return b.extents[i].FileOffset
}

func (b *BlockMappedStream) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(b.size, offset, buf)
	if window == nil {
		return 0, nil
	}

	if e, ok := b.findExtent(offset); ok {
		within := offset - e.FileOffset
		avail := e.Length - within
		if avail < int64(len(window)) {
			window = window[:avail]
		}
		return b.parent.ReadAt(e.ParentOffset+within, window)
	}

	// Hole: bound the read to just before the next extent starts.
	holeEnd := b.nextExtentStart(offset)
	if holeEnd-offset < int64(len(window)) {
		window = window[:holeEnd-offset]
	}
	if b.holes != nil {
		return b.holes.ReadAt(offset, window)
	}
	for i := range window {
		window[i] = 0
	}
	return len(window), nil
}

func (b *BlockMappedStream) ReadExactAt(offset int64, buf []byte) error {
	return ReadExactAt(b, offset, buf)
}
