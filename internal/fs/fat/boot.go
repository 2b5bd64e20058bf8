package fat

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// Format identifies which FAT table entry width a volume uses.
type Format int

const (
	Format12 Format = iota
	Format16
	Format32
)

var supportedBytesPerSector = map[uint16]bool{512: true, 1024: true, 2048: true, 4096: true}
var supportedSectorsPerCluster = map[uint8]bool{1: true, 2: true, 4: true, 8: true, 16: true, 32: true, 64: true, 128: true}

// BootRecord is the parsed BIOS parameter block, common across all
// three FAT widths, plus the FAT32-only extension fields.
type BootRecord struct {
	Format Format

	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumberOfFATs      uint8
	RootEntryCount    uint16 // 0 on FAT32
	TotalSectors      uint64
	SectorsPerFAT     uint64
	RootCluster       uint32 // FAT32 only
	VolumeLabel       string

	ClusterSize       int64
	FirstFATSector    uint64
	FirstDataSector   uint64
	RootDirSector     uint64 // FAT12/16 only
	TotalClusters     uint64
}

const bootSignatureOffset = 510

// ReadBootRecord parses the 512-byte boot sector and BPB, classifying
// the volume as FAT12/16/32 from its cluster count (the only reliable
// discriminant; the filesystem-type string field is advisory only).
func ReadBootRecord(media fsio.DataStream) (*BootRecord, error) {
	buf := make([]byte, 512)
	if err := fsio.ReadExactAt(media, 0, buf); err != nil {
		return nil, kerr.Wrap(err, "fat.boot", "reading boot sector")
	}
	if buf[bootSignatureOffset] != 0x55 || buf[bootSignatureOffset+1] != 0xAA {
		return nil, kerr.New(kerr.KindFormatInvalid, "fat.boot", "missing 0x55 0xAA boot signature")
	}

	br := &BootRecord{}
	br.BytesPerSector = types.U16LE(buf[11:13])
	if !supportedBytesPerSector[br.BytesPerSector] {
		return nil, kerr.New(kerr.KindFormatInvalid, "fat.boot", "unsupported bytes-per-sector value")
	}
	br.SectorsPerCluster = buf[13]
	if !supportedSectorsPerCluster[br.SectorsPerCluster] {
		return nil, kerr.New(kerr.KindFormatInvalid, "fat.boot", "unsupported sectors-per-cluster value")
	}
	br.ReservedSectors = types.U16LE(buf[14:16])
	br.NumberOfFATs = buf[16]
	br.RootEntryCount = types.U16LE(buf[17:19])

	totalSectors16 := types.U16LE(buf[19:21])
	totalSectors32 := types.U32LE(buf[32:36])
	if totalSectors16 != 0 {
		br.TotalSectors = uint64(totalSectors16)
	} else {
		br.TotalSectors = uint64(totalSectors32)
	}

	sectorsPerFAT16 := types.U16LE(buf[22:24])
	if sectorsPerFAT16 != 0 {
		br.SectorsPerFAT = uint64(sectorsPerFAT16)
		br.RootCluster = 0
	} else {
		br.SectorsPerFAT = uint64(types.U32LE(buf[36:40]))
		br.RootCluster = types.U32LE(buf[44:48])
	}

	br.ClusterSize = int64(br.BytesPerSector) * int64(br.SectorsPerCluster)
	br.FirstFATSector = uint64(br.ReservedSectors)
	rootDirSectors := (uint64(br.RootEntryCount)*32 + uint64(br.BytesPerSector) - 1) / uint64(br.BytesPerSector)
	br.RootDirSector = br.FirstFATSector + uint64(br.NumberOfFATs)*br.SectorsPerFAT
	br.FirstDataSector = br.RootDirSector + rootDirSectors

	dataSectors := br.TotalSectors - br.FirstDataSector
	br.TotalClusters = dataSectors / uint64(br.SectorsPerCluster)

	switch {
	case br.TotalClusters < 4085:
		br.Format = Format12
	case br.TotalClusters < 65525:
		br.Format = Format16
	default:
		br.Format = Format32
	}

	if br.Format == Format32 {
		br.VolumeLabel = trimFATString(buf[71:82])
	} else {
		br.VolumeLabel = trimFATString(buf[43:54])
	}

	return br, nil
}

func trimFATString(b []byte) string {
	i := len(b)
	for i > 0 && b[i-1] == ' ' {
		i--
	}
	return string(b[:i])
}

// ClusterOffset returns the byte offset of cluster in the media, where
// cluster numbers start at 2 (0 and 1 are reserved).
func (br *BootRecord) ClusterOffset(cluster uint32) int64 {
	sector := br.FirstDataSector + uint64(cluster-2)*uint64(br.SectorsPerCluster)
	return int64(sector) * int64(br.BytesPerSector)
}
