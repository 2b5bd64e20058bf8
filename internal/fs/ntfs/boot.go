package ntfs

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const bootSectorSize = 512

// BootSector is the parsed NTFS boot sector (BPB + extended BPB).
type BootSector struct {
	BytesPerSector    uint16
	SectorsPerCluster uint32
	ClusterSize       int64
	MFTStartCluster   uint64
	MFTMirrorCluster  uint64
	MFTEntrySize      int64
	IndexBlockSize    int64
	SerialNumber      uint64
}

// ReadBootSector parses the first sector of an NTFS volume.
func ReadBootSector(media fsio.DataStream) (*BootSector, error) {
	buf := make([]byte, bootSectorSize)
	if err := fsio.ReadExactAt(media, 0, buf); err != nil {
		return nil, kerr.Wrap(err, "ntfs.boot", "reading boot sector")
	}
	if string(buf[3:11]) != "NTFS    " {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.boot", "missing NTFS oem id")
	}

	bs := &BootSector{}
	bs.BytesPerSector = types.U16LE(buf[11:13])
	bs.SectorsPerCluster = decodeClusterFactor(buf[13])
	bs.ClusterSize = int64(bs.BytesPerSector) * int64(bs.SectorsPerCluster)
	if bs.ClusterSize <= 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.boot", "non-positive cluster size")
	}

	bs.MFTStartCluster = types.U64LE(buf[48:56])
	bs.MFTMirrorCluster = types.U64LE(buf[56:64])

	entrySizeByte := int8(buf[64])
	bs.MFTEntrySize = decodeRecordSize(entrySizeByte, bs.ClusterSize)
	if bs.MFTEntrySize <= 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.boot", "non-positive MFT entry size")
	}

	indexSizeByte := int8(buf[68])
	bs.IndexBlockSize = decodeRecordSize(indexSizeByte, bs.ClusterSize)

	bs.SerialNumber = types.U64LE(buf[72:80])
	return bs, nil
}

// decodeClusterFactor treats the raw byte as a negative power-of-two
// cluster count when its high bit is set (values >= 0x80 represent
// 2^(256-n) sectors per cluster on some very old volumes); in
// practice NTFS only uses the positive encoding, but the decoder
// tolerates the signed form rather than reject it outright.
func decodeClusterFactor(raw byte) uint32 {
	if raw < 0x80 {
		return uint32(raw)
	}
	shift := uint(256 - int(raw))
	return 1 << shift
}

// decodeRecordSize implements the MFT-entry/index-block size encoding:
// positive values count clusters; negative values (two's complement)
// mean 2^(-x) bytes.
func decodeRecordSize(raw int8, clusterSize int64) int64 {
	if raw >= 0 {
		return int64(raw) * clusterSize
	}
	shift := uint(-int(raw))
	return 1 << shift
}
