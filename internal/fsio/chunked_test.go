package fsio

import (
	"bytes"
	"compress/flate"
	"testing"
)

func deflateRawBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return buf.Bytes()
}

func TestChunkedStream(t *testing.T) {
	plainA := bytes.Repeat([]byte("A"), 32)
	plainB := []byte("stored-verbatim-")
	compressedA := deflateRawBytes(t, plainA)

	parentData := append([]byte{}, compressedA...)
	chunkAEnd := int64(len(parentData))
	parentData = append(parentData, plainB...)

	parent := NewMemoryStream(parentData)
	chunks := []Chunk{
		{LogicalOffset: 0, LogicalSize: int64(len(plainA)), ParentOffset: 0, ParentSize: chunkAEnd, Codec: ChunkCodecDeflateRaw},
		{LogicalOffset: int64(len(plainA)), LogicalSize: int64(len(plainB)), ParentOffset: chunkAEnd, ParentSize: int64(len(plainB)), Codec: ChunkCodecStored},
	}
	size := int64(len(plainA) + len(plainB))
	cs := NewChunkedStream(parent, chunks, size)

	t.Run("reads span both chunks", func(t *testing.T) {
		buf := make([]byte, size)
		if err := cs.ReadExactAt(0, buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := append(append([]byte{}, plainA...), plainB...)
		if !bytes.Equal(buf, want) {
			t.Fatalf("got %q, want %q", buf, want)
		}
	})

	t.Run("mid-chunk read decodes once and slices the result", func(t *testing.T) {
		buf := make([]byte, 5)
		n, err := cs.ReadAt(10, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 5 || !bytes.Equal(buf, plainA[10:15]) {
			t.Fatalf("got %d bytes %q, want %q", n, buf, plainA[10:15])
		}
	})

	t.Run("out-of-range read returns zero bytes, no error", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := cs.ReadAt(size+100, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Fatalf("got %d bytes, want 0", n)
		}
	})
}
