package ext

import (
	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	superblockOffset  = 1024
	superblockSize    = 1024
	extMagic          = 0xEF53
	extMagicOffset    = 56

	incompat64Bit   = 0x0080
	incompatExtents = 0x0040

	roCompatGDTCsum      = 0x0010
	roCompatMetadataCsum = 0x0400
)

// Superblock holds the fields the decoder needs from the 1024-byte ext
// superblock.
type Superblock struct {
	InodesCount      uint32
	BlocksCount      uint64
	FirstDataBlock   uint32
	BlockSize        uint32
	BlocksPerGroup   uint32
	InodesPerGroup   uint32
	InodeSize        uint16
	FeatureIncompat  uint32
	FeatureRoCompat  uint32
	DescSize         uint16
	UUID             [16]byte
	Is64Bit          bool
	HasMetadataCsum  bool
	HasGDTCsum       bool
	ChecksumSeed     uint32
}

func (s *Superblock) GroupCount() uint64 {
	if s.BlocksPerGroup == 0 {
		return 0
	}
	blocks := s.BlocksCount - uint64(s.FirstDataBlock)
	groups := blocks / uint64(s.BlocksPerGroup)
	if blocks%uint64(s.BlocksPerGroup) != 0 {
		groups++
	}
	return groups
}

// GDTBlock is the block holding the start of the group descriptor
// table: block 1 when the block size exceeds 1024 bytes, block 2
// otherwise (i.e. first_data_block + 1).
func (s *Superblock) GDTBlock() uint64 {
	return uint64(s.FirstDataBlock) + 1
}

// ReadSuperblock reads and parses the superblock at a fixed byte offset
// of 1024, rejecting on signature mismatch.
func ReadSuperblock(media fsio.DataStream) (*Superblock, error) {
	buf := make([]byte, superblockSize)
	if err := fsio.ReadExactAt(media, superblockOffset, buf); err != nil {
		return nil, kerr.Wrap(err, "ext.superblock", "reading superblock")
	}
	if types.U16LE(buf[extMagicOffset:extMagicOffset+2]) != extMagic {
		return nil, kerr.New(kerr.KindFormatInvalid, "ext.superblock", "bad magic")
	}

	logBlockSize := types.U32LE(buf[24:28])
	sb := &Superblock{
		InodesCount:     types.U32LE(buf[0:4]),
		BlocksCount:     uint64(types.U32LE(buf[4:8])),
		FirstDataBlock:  types.U32LE(buf[20:24]),
		BlockSize:       1024 << logBlockSize,
		BlocksPerGroup:  types.U32LE(buf[32:36]),
		InodesPerGroup:  types.U32LE(buf[40:44]),
		InodeSize:       types.U16LE(buf[88:90]),
		FeatureIncompat: types.U32LE(buf[96:100]),
		FeatureRoCompat: types.U32LE(buf[92:96]),
	}
	copy(sb.UUID[:], buf[104:120])

	sb.Is64Bit = sb.FeatureIncompat&incompat64Bit != 0
	sb.HasMetadataCsum = sb.FeatureRoCompat&roCompatMetadataCsum != 0
	sb.HasGDTCsum = sb.FeatureRoCompat&roCompatGDTCsum != 0

	if sb.Is64Bit {
		sb.BlocksCount |= uint64(types.U32LE(buf[336:340])) << 32
		sb.DescSize = types.U16LE(buf[254:256])
	}
	if sb.DescSize == 0 {
		sb.DescSize = 32
	}
	if sb.InodeSize == 0 {
		sb.InodeSize = 128
	}

	if sb.HasMetadataCsum {
		sb.ChecksumSeed = checksum.MetadataCsumSeed(sb.UUID)
	}
	return sb, nil
}

func (s *Superblock) hasExtents() bool {
	return s.FeatureIncompat&incompatExtents != 0
}
