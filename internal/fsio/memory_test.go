package fsio

import (
	"bytes"
	"testing"
)

func TestMemoryStreamReadAt(t *testing.T) {
	s := NewMemoryStream([]byte("hello world"))

	t.Run("in-range read", func(t *testing.T) {
		buf := make([]byte, 5)
		n, err := s.ReadAt(6, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 5 || !bytes.Equal(buf, []byte("world")) {
			t.Fatalf("got %d bytes %q, want 5 bytes \"world\"", n, buf)
		}
	})

	t.Run("read straddling end-of-stream truncates", func(t *testing.T) {
		buf := make([]byte, 10)
		n, err := s.ReadAt(6, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 5 {
			t.Fatalf("got %d bytes, want 5", n)
		}
	})

	t.Run("out-of-range read returns zero bytes, no error", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := s.ReadAt(100, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Fatalf("got %d bytes, want 0", n)
		}
	})

	t.Run("read exactly at size returns zero bytes", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := s.ReadAt(s.Size(), buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Fatalf("got %d bytes, want 0", n)
		}
	})
}

func TestMemoryStreamReadExactAt(t *testing.T) {
	s := NewMemoryStream([]byte("hello world"))

	t.Run("exact read within bounds", func(t *testing.T) {
		buf := make([]byte, 5)
		if err := s.ReadExactAt(0, buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(buf, []byte("hello")) {
			t.Fatalf("got %q, want \"hello\"", buf)
		}
	})

	t.Run("short read at end-of-stream errors", func(t *testing.T) {
		buf := make([]byte, 10)
		if err := s.ReadExactAt(6, buf); err == nil {
			t.Fatal("expected short-read error, got nil")
		}
	})
}

func TestPositionalEqualsSequential(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	s := NewMemoryStream(data)

	sequential := make([]byte, len(data))
	if err := s.ReadExactAt(0, sequential); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positional := make([]byte, len(data))
	offsets := []int64{224, 0, 128, 64, 192, 32, 160, 96}
	for _, off := range offsets {
		end := off + 32
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		if err := s.ReadExactAt(off, positional[off:end]); err != nil {
			t.Fatalf("unexpected error at offset %d: %v", off, err)
		}
	}

	if !bytes.Equal(sequential, positional) {
		t.Fatal("positional reads diverged from sequential read")
	}
}
