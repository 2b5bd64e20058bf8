package codec

import (
	"bytes"
	"testing"
)

func TestDecompressLZNT1(t *testing.T) {
	t.Run("uncompressed chunk passes through", func(t *testing.T) {
		payload := []byte("twelve bytes")
		header := uint16(len(payload) - 1) // bit 15 clear: uncompressed
		in := []byte{byte(header), byte(header >> 8)}
		in = append(in, payload...)

		got, err := DecompressLZNT1(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("got %q, want %q", got, payload)
		}
	})

	t.Run("compressed chunk of all-literal bytes", func(t *testing.T) {
		literals := []byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}
		chunk := append([]byte{0x00}, literals...) // flags byte: all 8 bits clear
		size := len(chunk) - 1
		header := uint16(size) | 0x8000
		in := []byte{byte(header), byte(header >> 8)}
		in = append(in, chunk...)

		got, err := DecompressLZNT1(in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, literals) {
			t.Fatalf("got %q, want %q", got, literals)
		}
	})

	t.Run("zero header ends stream", func(t *testing.T) {
		got, err := DecompressLZNT1([]byte{0x00, 0x00, 0xFF, 0xFF})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("got %d bytes, want 0", len(got))
		}
	})
}
