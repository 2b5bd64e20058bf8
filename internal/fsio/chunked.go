package fsio

import (
	"sort"

	"github.com/keramics/keramics/internal/cache"
	"github.com/keramics/keramics/internal/codec"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// defaultChunkCacheEntries bounds how many decompressed chunks a
// ChunkedStream keeps resident at once.
const defaultChunkCacheEntries = 256

// ChunkCodec identifies which codec decompresses a chunk's payload.
type ChunkCodec int

const (
	ChunkCodecStored ChunkCodec = iota // no compression, bytes are copied verbatim
	ChunkCodecDeflateRaw
	ChunkCodecZlib
	ChunkCodecBzip2
	ChunkCodecADC
	ChunkCodecLZNT1
	ChunkCodecLZXPRESS
	ChunkCodecLZXPRESSHuffman
	ChunkCodecLZFSE
	ChunkCodecLZVN
	ChunkCodecLZMA
)

// Chunk describes one entry of a compressed-chunk stream's index: the
// logical (decompressed) offset and size it represents, and the
// compressed bytes' location in the parent stream.
type Chunk struct {
	LogicalOffset int64
	LogicalSize   int64
	ParentOffset  int64
	ParentSize    int64
	Codec         ChunkCodec
}

func decompressChunk(c Chunk, raw []byte) ([]byte, error) {
	size := int(c.LogicalSize)
	switch c.Codec {
	case ChunkCodecStored:
		return raw, nil
	case ChunkCodecDeflateRaw:
		return codec.InflateRaw(raw)
	case ChunkCodecZlib:
		return codec.InflateZlib(raw)
	case ChunkCodecBzip2:
		return codec.InflateBzip2(raw)
	case ChunkCodecADC:
		return codec.InflateADC(raw, size)
	case ChunkCodecLZNT1:
		return codec.DecompressLZNT1(raw)
	case ChunkCodecLZXPRESS:
		return codec.DecompressXPRESS(raw)
	case ChunkCodecLZXPRESSHuffman:
		return codec.DecompressXPRESSHuffman(raw, size)
	case ChunkCodecLZFSE:
		return codec.DecompressLZFSE(raw)
	case ChunkCodecLZVN:
		return codec.DecompressLZVN(raw, size)
	case ChunkCodecLZMA:
		return codec.DecompressLZMA(raw, size)
	default:
		return nil, kerr.New(kerr.KindUnsupported, "fsio.chunked", "unknown chunk codec")
	}
}

// ChunkedStream is a DataStream over a parent stream whose payload is
// split into independently compressed chunks (EWF chunk tables, UDIF
// mish block-table runs, QCOW compressed clusters). Decompressed
// chunks are cached by index so repeated positional reads within one
// chunk don't re-run the codec.
type ChunkedStream struct {
	parent DataStream
	chunks []Chunk
	size   int64

	cache *cache.LRUCache[int, []byte]
}

// NewChunkedStream builds a ChunkedStream. chunks must be sorted by
// LogicalOffset and cover [0, size) without overlap; callers assemble
// that index from the container format's own chunk table.
func NewChunkedStream(parent DataStream, chunks []Chunk, size int64) *ChunkedStream {
	return &ChunkedStream{
		parent: parent,
		chunks: chunks,
		size:   size,
		cache:  cache.New[int, []byte](defaultChunkCacheEntries),
	}
}

func (c *ChunkedStream) Size() int64 { return c.size }

func (c *ChunkedStream) chunkIndexFor(offset int64) int {
	return sort.Search(len(c.chunks), func(i int) bool {
		return c.chunks[i].LogicalOffset+c.chunks[i].LogicalSize > offset
	})
}

func (c *ChunkedStream) readChunk(idx int) ([]byte, error) {
	if data, ok := c.cache.Get(idx); ok {
		return data, nil
	}

	chunk := c.chunks[idx]
	raw := make([]byte, chunk.ParentSize)
	if err := c.parent.ReadExactAt(chunk.ParentOffset, raw); err != nil {
		return nil, kerr.Wrap(err, "fsio.chunked", "read compressed chunk")
	}
	data, err := decompressChunk(chunk, raw)
	if err != nil {
		return nil, kerr.Wrap(err, "fsio.chunked", "decompress chunk")
	}

	c.cache.Put(idx, data)
	return data, nil
}

func (c *ChunkedStream) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(c.size, offset, buf)
	if window == nil {
		return 0, nil
	}

	idx := c.chunkIndexFor(offset)
	if idx >= len(c.chunks) {
		return 0, nil
	}
	chunk := c.chunks[idx]
	within := offset - chunk.LogicalOffset
	if within < 0 || within >= chunk.LogicalSize {
		return 0, nil
	}

	data, err := c.readChunk(idx)
	if err != nil {
		return 0, err
	}
	avail := int64(len(data)) - within
	if avail < int64(len(window)) {
		window = window[:avail]
	}
	if len(window) <= 0 {
		return 0, nil
	}
	return copy(window, data[within:]), nil
}

func (c *ChunkedStream) ReadExactAt(offset int64, buf []byte) error {
	return ReadExactAt(c, offset, buf)
}
