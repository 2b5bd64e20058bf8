package image

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	sparseImageHeaderSize = 64
	sparseImageSectorSize = 512
)

// SparseImage is an opened Mac OS sparse disk image (.sparseimage):
// a single flat file whose bands are addressed directly by position
// — header_size + band_index*band_size — rather than through a
// separate index table. A band past the current end of the file has
// never been allocated and reads as zero.
type SparseImage struct {
	media fsio.DataStream

	MediaSize      int64
	BandSize       int64
	BytesPerSector int64
}

func (s *SparseImage) Size() int64 { return s.MediaSize }

// OpenSparseImage parses the 64-byte "sprs" file header.
func OpenSparseImage(media fsio.DataStream) (*SparseImage, error) {
	header := make([]byte, sparseImageHeaderSize)
	if err := fsio.ReadExactAt(media, 0, header); err != nil {
		return nil, kerr.Wrap(err, "image.sparseimage", "reading file header")
	}
	if string(header[0:4]) != "sprs" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.sparseimage", "bad sparseimage signature")
	}
	sectorsPerBand := types.U32BE(header[8:12])
	if sectorsPerBand == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.sparseimage", "sectors per band is zero")
	}
	numberOfSectors := types.U32BE(header[16:20])

	return &SparseImage{
		media:          media,
		MediaSize:      int64(numberOfSectors) * sparseImageSectorSize,
		BandSize:       int64(sectorsPerBand) * sparseImageSectorSize,
		BytesPerSector: sparseImageSectorSize,
	}, nil
}

func (s *SparseImage) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(s.MediaSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	absOffset := sparseImageHeaderSize + offset
	fileSize := s.media.Size()

	if absOffset >= fileSize {
		for i := range window {
			window[i] = 0
		}
		return len(window), nil
	}
	avail := fileSize - absOffset
	if avail >= int64(len(window)) {
		return s.media.ReadAt(absOffset, window)
	}
	n, err := s.media.ReadAt(absOffset, window[:avail])
	if err != nil {
		return n, err
	}
	for i := avail; i < int64(len(window)); i++ {
		window[i] = 0
	}
	return len(window), nil
}

func (s *SparseImage) ReadExactAt(offset int64, buf []byte) error {
	return fsio.ReadExactAt(s, offset, buf)
}
