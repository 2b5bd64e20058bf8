package image

import (
	"testing"

	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

// buildSparseImage assembles a minimal .sparseimage: a 64-byte header
// declaring a 512-byte band and two bands of media, followed by only
// the first band's data — the second band has never been allocated
// and is expected to read back as zero.
func buildSparseImage(t *testing.T, band0 string) []byte {
	t.Helper()
	header := make([]byte, sparseImageHeaderSize)
	copy(header[0:4], "sprs")
	types.PutU32BE(header[8:12], 1)  // sectors per band
	types.PutU32BE(header[16:20], 2) // number of sectors

	band := make([]byte, sparseImageSectorSize)
	copy(band, band0)

	img := append([]byte(nil), header...)
	img = append(img, band...)
	return img
}

func TestOpenSparseImageReadsAllocatedBand(t *testing.T) {
	content := "hello sparseimage\n"
	img := buildSparseImage(t, content)

	s, err := OpenSparseImage(fsio.NewMemoryStream(img))
	if err != nil {
		t.Fatalf("OpenSparseImage: %v", err)
	}
	if s.MediaSize != 2*sparseImageSectorSize {
		t.Fatalf("MediaSize = %d, want %d", s.MediaSize, 2*sparseImageSectorSize)
	}
	buf := make([]byte, len(content))
	if err := s.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != content {
		t.Fatalf("content = %q, want %q", buf, content)
	}
}

func TestOpenSparseImageUnallocatedBandReadsZero(t *testing.T) {
	img := buildSparseImage(t, "band zero")

	s, err := OpenSparseImage(fsio.NewMemoryStream(img))
	if err != nil {
		t.Fatalf("OpenSparseImage: %v", err)
	}
	buf := make([]byte, sparseImageSectorSize)
	if err := s.ReadExactAt(sparseImageSectorSize, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 for an unallocated band", i, b)
		}
	}
}

func TestOpenSparseImageRejectsBadSignature(t *testing.T) {
	img := buildSparseImage(t, "x")
	img[0] = 'x'
	if _, err := OpenSparseImage(fsio.NewMemoryStream(img)); err == nil {
		t.Fatal("expected a format error for a corrupted signature")
	}
}
