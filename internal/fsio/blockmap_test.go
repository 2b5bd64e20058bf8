package fsio

import (
	"bytes"
	"testing"
)

func TestBlockMappedStream(t *testing.T) {
	// parent: "AAAABBBBCCCC" — logical layout maps physical blocks out of order
	// with a hole in between, and no holes stream (zero-fill).
	parent := NewMemoryStream([]byte("AAAABBBBCCCC"))
	extents := []Extent{
		{FileOffset: 8, ParentOffset: 4, Length: 4},  // logical[8:12) = "BBBB"
		{FileOffset: 0, ParentOffset: 0, Length: 4},  // logical[0:4) = "AAAA"
		// logical[4:8) is a hole (zero-fill)
		{FileOffset: 12, ParentOffset: 8, Length: 4}, // logical[12:16) = "CCCC"
	}
	b := NewBlockMappedStream(parent, extents, 16, nil)

	t.Run("size is the logical size, not sum of extents", func(t *testing.T) {
		if b.Size() != 16 {
			t.Fatalf("got size %d, want 16", b.Size())
		}
	})

	t.Run("reads whole logical stream matches expected layout", func(t *testing.T) {
		buf := make([]byte, 16)
		if err := b.ReadExactAt(0, buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []byte("AAAA\x00\x00\x00\x00BBBBCCCC")
		if !bytes.Equal(buf, want) {
			t.Fatalf("got %q, want %q", buf, want)
		}
	})

	t.Run("read confined to a hole returns zeros", func(t *testing.T) {
		buf := make([]byte, 3)
		n, err := b.ReadAt(4, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 3 || !bytes.Equal(buf, []byte{0, 0, 0}) {
			t.Fatalf("got %d bytes %v, want 3 zero bytes", n, buf)
		}
	})

	t.Run("read straddling hole-to-extent boundary is bounded to the hole", func(t *testing.T) {
		buf := make([]byte, 8)
		n, err := b.ReadAt(4, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 4 {
			t.Fatalf("got %d bytes, want 4 (bounded to hole before next extent)", n)
		}
	})

	t.Run("out-of-range read returns zero bytes, no error", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := b.ReadAt(20, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Fatalf("got %d bytes, want 0", n)
		}
	})
}

func TestBlockMappedStreamWithHoleSource(t *testing.T) {
	parent := NewMemoryStream([]byte("DATA"))
	holes := NewMemoryStream([]byte("PPPP"))
	extents := []Extent{
		{FileOffset: 4, ParentOffset: 0, Length: 4},
	}
	b := NewBlockMappedStream(parent, extents, 8, holes)

	buf := make([]byte, 8)
	if err := b.ReadExactAt(0, buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(buf, []byte("PPPPDATA")) {
		t.Fatalf("got %q, want \"PPPPDATA\" (hole filled from parent-differential source)", buf)
	}
}
