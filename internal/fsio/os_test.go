package fsio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOSStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segment.e01")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err := OpenOSStream(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	t.Run("size matches file size", func(t *testing.T) {
		if s.Size() != 10 {
			t.Fatalf("got size %d, want 10", s.Size())
		}
	})

	t.Run("in-range read", func(t *testing.T) {
		buf := make([]byte, 4)
		n, err := s.ReadAt(3, buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 4 || !bytes.Equal(buf, []byte("3456")) {
			t.Fatalf("got %d bytes %q, want \"3456\"", n, buf)
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
}

func TestOpenOSStreamMissingFile(t *testing.T) {
	_, err := OpenOSStream(filepath.Join(t.TempDir(), "missing.img"))
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
