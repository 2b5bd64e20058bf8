package ext

import (
	"encoding/binary"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const gdtChecksumOffset = 0x1E

// GroupDescriptor holds one block group's table locations.
type GroupDescriptor struct {
	BlockBitmap uint64
	InodeBitmap uint64
	InodeTable  uint64
	Checksum    uint16
}

// ReadGroupDescriptorTable reads groups × sb.DescSize bytes starting at
// sb.GDTBlock(), verifying each entry's CRC-16 when metadata_csum (or
// uninit_bg's plain GDT checksum) is enabled.
func ReadGroupDescriptorTable(media fsio.DataStream, sb *Superblock) ([]GroupDescriptor, error) {
	groups := sb.GroupCount()
	tableSize := groups * uint64(sb.DescSize)
	buf := make([]byte, tableSize)
	if err := fsio.ReadExactAt(media, int64(sb.GDTBlock())*int64(sb.BlockSize), buf); err != nil {
		return nil, kerr.Wrap(err, "ext.groupdesc", "reading group descriptor table")
	}

	out := make([]GroupDescriptor, groups)
	for i := uint64(0); i < groups; i++ {
		raw := buf[i*uint64(sb.DescSize) : (i+1)*uint64(sb.DescSize)]
		gd := GroupDescriptor{
			BlockBitmap: uint64(types.U32LE(raw[0:4])),
			InodeBitmap: uint64(types.U32LE(raw[4:8])),
			InodeTable:  uint64(types.U32LE(raw[8:12])),
			Checksum:    types.U16LE(raw[gdtChecksumOffset : gdtChecksumOffset+2]),
		}
		if sb.Is64Bit && len(raw) >= 64 {
			gd.BlockBitmap |= uint64(types.U32LE(raw[32:36])) << 32
			gd.InodeBitmap |= uint64(types.U32LE(raw[36:40])) << 32
			gd.InodeTable |= uint64(types.U32LE(raw[40:44])) << 32
		}

		if sb.HasMetadataCsum || sb.HasGDTCsum {
			if err := verifyGroupChecksum(sb, raw, uint32(i), gd.Checksum); err != nil {
				return nil, err
			}
		}
		out[i] = gd
	}
	return out, nil
}

// verifyGroupChecksum recomputes the CRC-16 over the descriptor with
// its own checksum field zeroed, seeded by the filesystem UUID and
// little-endian group number, matching the real ext4 gdt_csum layout.
func verifyGroupChecksum(sb *Superblock, raw []byte, group uint32, stored uint16) error {
	scratch := make([]byte, len(raw))
	copy(scratch, raw)
	scratch[gdtChecksumOffset] = 0
	scratch[gdtChecksumOffset+1] = 0

	var groupLE [4]byte
	binary.LittleEndian.PutUint32(groupLE[:], group)

	seed := checksum.CRC16(sb.UUID[:], 0xFFFF)
	seed = checksum.CRC16(groupLE[:], seed)
	got := checksum.CRC16(scratch, seed)
	if got != stored {
		return kerr.New(kerr.KindChecksumMismatch, "ext.groupdesc", "group descriptor CRC-16 mismatch")
	}
	return nil
}
