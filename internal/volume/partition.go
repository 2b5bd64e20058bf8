package volume

import (
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

// SectorSize is the sector size all three volume formats this package
// decodes assume (512 bytes); none of APM/GPT/MBR's companion test
// fixtures use Advanced Format 4Kn media.
const SectorSize = 512

// Partition describes one partition table entry, uniform across
// APM/GPT/MBR, plus the window over the media stream it spans.
type Partition struct {
	Index      int // 1-based, matching the path-syntax "<index>" form
	Name       string
	Type       string
	Identifier types.Uuid // nil for APM and MBR, which have no per-entry GUID
	StartLBA   uint64
	SizeLBA    uint64
	Flags      uint32
	Stream     fsio.DataStream
}

func windowFor(media fsio.DataStream, startLBA, sizeLBA uint64) *fsio.WindowStream {
	return fsio.NewWindowStream(media, int64(startLBA)*SectorSize, int64(sizeLBA)*SectorSize)
}
