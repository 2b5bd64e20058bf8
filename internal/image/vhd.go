package image

import (
	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	vhdFooterSize = 512

	vhdDiskTypeFixed        = 2
	vhdDiskTypeDynamic      = 3
	vhdDiskTypeDifferential = 4

	vhdDynamicHeaderSize = 1024
	vhdSectorSize        = 512
	vhdBATUnallocated    = 0xFFFFFFFF
)

// VHD is an opened Virtual Hard Disk (pre-VHDX) layer: fixed disks
// read straight through, dynamic/differencing disks resolve each
// sector through a Block Allocation Table plus per-block sector
// bitmap.
type VHD struct {
	media  fsio.DataStream
	Parent fsio.DataStream

	DiskType    uint32
	CurrentSize int64
	DiskID      types.Uuid

	blockSize      int64
	bitmapSectors  int64
	bat            []uint32
}

func (v *VHD) Size() int64 { return v.CurrentSize }

// BytesPerSector is fixed at 512 for VHD; exposed for callers that
// print it alongside other format metadata.
func (v *VHD) BytesPerSector() int64 { return vhdSectorSize }

// DiskTypeName returns a human-readable label for DiskType, the form
// the info tool prints.
func (v *VHD) DiskTypeName() string {
	switch v.DiskType {
	case vhdDiskTypeFixed:
		return "Fixed"
	case vhdDiskTypeDynamic:
		return "Dynamic"
	case vhdDiskTypeDifferential:
		return "Differential"
	default:
		return "Unknown"
	}
}

// OpenVHD parses a VHD footer (and, for dynamic/differencing disks,
// the dynamic disk header and BAT that follow it). The footer is
// mirrored at file offset 0 for dynamic/differencing disks and is
// the sole copy — at the end of the file — for fixed disks; both
// layouts are read from the end, which always holds a footer.
func OpenVHD(media fsio.DataStream) (*VHD, error) {
	footerOffset := media.Size() - vhdFooterSize
	if footerOffset < 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhd", "file too small for a VHD footer")
	}
	footer := make([]byte, vhdFooterSize)
	if err := fsio.ReadExactAt(media, footerOffset, footer); err != nil {
		return nil, kerr.Wrap(err, "image.vhd", "reading file footer")
	}
	if string(footer[0:8]) != "conectix" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhd", "bad VHD footer signature")
	}
	storedChecksum := types.U32BE(footer[64:68])
	scratch := append([]byte(nil), footer...)
	scratch[64], scratch[65], scratch[66], scratch[67] = 0, 0, 0, 0
	if calc := checksum.VHDChecksum(scratch); calc != storedChecksum {
		return nil, kerr.New(kerr.KindChecksumMismatch, "image.vhd", "footer checksum mismatch")
	}

	v := &VHD{media: media}
	v.CurrentSize = int64(types.U64BE(footer[48:56]))
	v.DiskType = types.U32BE(footer[60:64])
	v.DiskID = types.UuidFromBytesBE([16]byte(footer[68:84]))

	switch v.DiskType {
	case vhdDiskTypeFixed:
		return v, nil
	case vhdDiskTypeDynamic, vhdDiskTypeDifferential:
		dataOffset := int64(types.U64BE(footer[16:24]))
		if err := v.readDynamicHeader(media, dataOffset); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, kerr.New(kerr.KindUnsupported, "image.vhd", "unsupported VHD disk type")
	}
}

func (v *VHD) readDynamicHeader(media fsio.DataStream, offset int64) error {
	header := make([]byte, vhdDynamicHeaderSize)
	if err := fsio.ReadExactAt(media, offset, header); err != nil {
		return kerr.Wrap(err, "image.vhd", "reading dynamic disk header")
	}
	if string(header[0:8]) != "cxsparse" {
		return kerr.New(kerr.KindFormatInvalid, "image.vhd", "bad dynamic disk header signature")
	}
	storedChecksum := types.U32BE(header[36:40])
	scratch := append([]byte(nil), header...)
	scratch[36], scratch[37], scratch[38], scratch[39] = 0, 0, 0, 0
	if calc := checksum.VHDChecksum(scratch); calc != storedChecksum {
		return kerr.New(kerr.KindChecksumMismatch, "image.vhd", "dynamic disk header checksum mismatch")
	}

	tableOffset := int64(types.U64BE(header[16:24]))
	maxTableEntries := types.U32BE(header[28:32])
	v.blockSize = int64(types.U32BE(header[32:36]))

	sectorsPerBlock := v.blockSize / vhdSectorSize
	bitmapBytes := (sectorsPerBlock + 7) / 8
	v.bitmapSectors = (bitmapBytes + vhdSectorSize - 1) / vhdSectorSize

	batBuf := make([]byte, int64(maxTableEntries)*4)
	if err := fsio.ReadExactAt(media, tableOffset, batBuf); err != nil {
		return kerr.Wrap(err, "image.vhd", "reading block allocation table")
	}
	v.bat = make([]uint32, maxTableEntries)
	for i := range v.bat {
		v.bat[i] = types.U32BE(batBuf[i*4 : i*4+4])
	}
	return nil
}

func (v *VHD) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(v.CurrentSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	if v.DiskType == vhdDiskTypeFixed {
		return v.media.ReadAt(offset, window)
	}

	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		blockIndex := pos / v.blockSize
		intra := pos % v.blockSize
		n, err := v.readWithinBlock(blockIndex, intra, window[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (v *VHD) ReadExactAt(offset int64, buf []byte) error { return fsio.ReadExactAt(v, offset, buf) }

func (v *VHD) readWithinBlock(blockIndex, intra int64, buf []byte) (int, error) {
	avail := v.blockSize - intra
	want := buf
	if int64(len(want)) > avail {
		want = want[:avail]
	}

	if blockIndex >= int64(len(v.bat)) || v.bat[blockIndex] == vhdBATUnallocated {
		return v.readFromParentOrZero(blockIndex*v.blockSize+intra, want)
	}
	blockSectorOffset := int64(v.bat[blockIndex]) * vhdSectorSize
	bitmapOffset := blockSectorOffset
	dataOffset := blockSectorOffset + v.bitmapSectors*vhdSectorSize

	sectorIndex := intra / vhdSectorSize
	sectorByte := sectorIndex / 8
	sectorBit := uint(sectorIndex % 8)

	bitmapByte := make([]byte, 1)
	if err := fsio.ReadExactAt(v.media, bitmapOffset+sectorByte, bitmapByte); err != nil {
		return 0, kerr.Wrap(err, "image.vhd", "reading sector bitmap")
	}
	set := (bitmapByte[0]>>sectorBit)&1 != 0

	sectorRemaining := vhdSectorSize - intra%vhdSectorSize
	if int64(len(want)) > sectorRemaining {
		want = want[:sectorRemaining]
	}
	if set {
		return v.media.ReadAt(dataOffset+intra, want)
	}
	return v.readFromParentOrZero(blockIndex*v.blockSize+intra, want)
}

func (v *VHD) readFromParentOrZero(absOffset int64, buf []byte) (int, error) {
	if v.Parent != nil {
		return v.Parent.ReadAt(absOffset, buf)
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}
