package fsio

import (
	"bytes"
	"testing"
)

func TestWindowStream(t *testing.T) {
	parent := NewMemoryStream([]byte("0123456789abcdef"))
	w := NewWindowStream(parent, 4, 6) // "456789"

	t.Run("size reflects window, not parent", func(t *testing.T) {
		if w.Size() != 6 {
			t.Fatalf("got size %d, want 6", w.Size())
		}
	})

	t.Run("read translates into parent offsets", func(t *testing.T) {
		buf := make([]byte, 3)
		n, err := w.ReadAt(1, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 3 || !bytes.Equal(buf, []byte("567")) {
			t.Fatalf("got %d bytes %q, want \"567\"", n, buf)
		}
	})

	t.Run("read beyond window size returns zero bytes", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := w.ReadAt(6, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Fatalf("got %d bytes, want 0", n)
		}
	})

	t.Run("read straddling window end truncates", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := w.ReadAt(4, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 2 || !bytes.Equal(buf[:2], []byte("89")) {
			t.Fatalf("got %d bytes %q, want 2 bytes \"89\"", n, buf[:2])
		}
	})
}
