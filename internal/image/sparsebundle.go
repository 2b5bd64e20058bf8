package image

import (
	"fmt"

	"howett.net/plist"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// SparseBundle is an opened Mac OS sparse bundle disk image
// (.sparsebundle): a directory of fixed-size band files under
// "bands/", named by the lowercase hexadecimal band index, sized and
// counted by the bundle's "Info.plist". A band whose file is absent
// has never been allocated and reads as zero; a short band file (the
// last band of a growable bundle) is zero-padded out to band size.
type SparseBundle struct {
	resolver fsio.Resolver

	MediaSize int64
	BandSize  int64
}

func (s *SparseBundle) Size() int64 { return s.MediaSize }

type sparseBundlePlistRoot struct {
	BandSize int64 `plist:"band-size"`
	Size     int64 `plist:"size"`
}

// OpenSparseBundle reads "Info.plist" through resolver (rooted at the
// bundle directory) for the band size and total media size.
func OpenSparseBundle(resolver fsio.Resolver) (*SparseBundle, error) {
	stream, err := resolver.GetDataStream([]fsio.PathComponent{fsio.Component("Info.plist")})
	if err != nil {
		return nil, kerr.Wrap(err, "image.sparsebundle", "resolving Info.plist")
	}
	if stream == nil {
		return nil, kerr.New(kerr.KindNotFound, "image.sparsebundle", "Info.plist not found")
	}
	data := make([]byte, stream.Size())
	if err := fsio.ReadExactAt(stream, 0, data); err != nil {
		return nil, kerr.Wrap(err, "image.sparsebundle", "reading Info.plist")
	}
	var root sparseBundlePlistRoot
	if err := plist.Unmarshal(data, &root); err != nil {
		return nil, kerr.Wrap(err, "image.sparsebundle", "decoding Info.plist")
	}
	if root.BandSize == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.sparsebundle", "band size is zero")
	}
	return &SparseBundle{resolver: resolver, MediaSize: root.Size, BandSize: root.BandSize}, nil
}

func (s *SparseBundle) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(s.MediaSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		bandIndex := pos / s.BandSize
		intra := pos % s.BandSize
		avail := s.BandSize - intra
		want := window[total:]
		if int64(len(want)) > avail {
			want = want[:avail]
		}
		n, err := s.readBand(bandIndex, intra, want)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SparseBundle) ReadExactAt(offset int64, buf []byte) error {
	return fsio.ReadExactAt(s, offset, buf)
}

func (s *SparseBundle) readBand(bandIndex, intra int64, want []byte) (int, error) {
	name := fmt.Sprintf("%x", bandIndex)
	stream, err := s.resolver.GetDataStream([]fsio.PathComponent{fsio.Component("bands"), fsio.Component(name)})
	if err != nil {
		return 0, kerr.Wrap(err, "image.sparsebundle", "resolving band file")
	}
	if stream == nil {
		for i := range want {
			want[i] = 0
		}
		return len(want), nil
	}
	n, err := stream.ReadAt(intra, want)
	if err != nil {
		return n, kerr.Wrap(err, "image.sparsebundle", "reading band file")
	}
	for i := n; i < len(want); i++ {
		want[i] = 0
	}
	return len(want), nil
}
