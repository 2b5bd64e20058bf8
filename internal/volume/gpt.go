package volume

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	gptHeaderLBA         = 1
	gptSignature         = "EFI PART"
	gptHeaderCRCOffset   = 16
	gptPartitionEntryLBA = 72
	gptEntryCountOffset  = 80
	gptEntrySizeOffset   = 84
	gptEntryArrayCRC     = 88

	// gptMaxEntryArraySize bounds the partition-entry-array allocation.
	// The UEFI spec itself caps a conforming implementation at 16384
	// bytes (128 entries of 128 bytes); images doubling that several
	// times over are already nonconforming, so this rejects a corrupt
	// or crafted entryCount/entrySize pair before the multi-GB
	// allocation they'd otherwise request.
	gptMaxEntryArraySize = 16 * 1024 * 1024
)

type gptHeader struct {
	headerSize       uint32
	myLBA            uint64
	diskGUID         types.Uuid
	partitionLBA     uint64
	entryCount       uint32
	entrySize        uint32
	entryArrayCRC32  uint32
}

// DecodeGPT decodes the primary GPT header at LBA 1 and its partition
// entry array, verifying both CRC-32 checksums against the on-disk
// values (the header's own checksum field is zeroed before recomputing,
// per the format).
func DecodeGPT(media fsio.DataStream) ([]Partition, error) {
	sectorBuf := make([]byte, SectorSize)
	if err := fsio.ReadExactAt(media, gptHeaderLBA*SectorSize, sectorBuf); err != nil {
		return nil, kerr.Wrap(err, "volume.gpt", "reading GPT header sector")
	}
	if !bytes.Equal(sectorBuf[0:8], []byte(gptSignature)) {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.gpt", "missing EFI PART signature")
	}

	hdr := gptHeader{
		headerSize:      types.U32LE(sectorBuf[12:16]),
		myLBA:           types.U64LE(sectorBuf[24:32]),
		partitionLBA:    types.U64LE(sectorBuf[gptPartitionEntryLBA : gptPartitionEntryLBA+8]),
		entryCount:      types.U32LE(sectorBuf[gptEntryCountOffset : gptEntryCountOffset+4]),
		entrySize:       types.U32LE(sectorBuf[gptEntrySizeOffset : gptEntrySizeOffset+4]),
		entryArrayCRC32: types.U32LE(sectorBuf[gptEntryArrayCRC : gptEntryArrayCRC+4]),
	}
	var guidRaw [16]byte
	copy(guidRaw[:], sectorBuf[56:72])
	hdr.diskGUID = types.UuidFromBytesLE(guidRaw)

	if hdr.headerSize < gptEntryArrayCRC+4 || int(hdr.headerSize) > len(sectorBuf) {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.gpt", "implausible header size")
	}
	storedCRC := types.U32LE(sectorBuf[gptHeaderCRCOffset : gptHeaderCRCOffset+4])
	headerCopy := make([]byte, hdr.headerSize)
	copy(headerCopy, sectorBuf[:hdr.headerSize])
	types.PutU32LE(headerCopy[gptHeaderCRCOffset:gptHeaderCRCOffset+4], 0)
	if checksum.CRC32(headerCopy) != storedCRC {
		return nil, kerr.New(kerr.KindChecksumMismatch, "volume.gpt", "header CRC-32 mismatch")
	}

	if hdr.entrySize == 0 || hdr.entryCount == 0 {
		return nil, nil
	}
	arraySize := int64(hdr.entryCount) * int64(hdr.entrySize)
	if arraySize > gptMaxEntryArraySize {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.gpt", "implausible partition entry array size")
	}
	entries := make([]byte, arraySize)
	if err := fsio.ReadExactAt(media, int64(hdr.partitionLBA)*SectorSize, entries); err != nil {
		return nil, kerr.Wrap(err, "volume.gpt", "reading partition entry array")
	}
	if checksum.CRC32(entries) != hdr.entryArrayCRC32 {
		return nil, kerr.New(kerr.KindChecksumMismatch, "volume.gpt", "partition entry array CRC-32 mismatch")
	}

	var parts []Partition
	for i := uint32(0); i < hdr.entryCount; i++ {
		raw := entries[int64(i)*int64(hdr.entrySize) : int64(i)*int64(hdr.entrySize)+int64(hdr.entrySize)]
		var typeGUID [16]byte
		copy(typeGUID[:], raw[0:16])
		if allZero(typeGUID[:]) {
			// An all-zero type GUID marks an unused entry slot.
			continue
		}
		var idGUID [16]byte
		copy(idGUID[:], raw[16:32])

		startLBA := types.U64LE(raw[32:40])
		endLBA := types.U64LE(raw[40:48])
		attrs := types.U64LE(raw[48:56])
		name := strings.TrimRight(types.NewUtf16String(raw[56:128]).ToString(), "\x00")

		sizeLBA := uint64(0)
		if endLBA >= startLBA {
			sizeLBA = endLBA - startLBA + 1
		}

		parts = append(parts, Partition{
			Index:      len(parts) + 1,
			Name:       name,
			Type:       fmt.Sprintf("{%s}", types.UuidFromBytesLE(typeGUID).String()),
			Identifier: types.UuidFromBytesLE(idGUID),
			StartLBA:   startLBA,
			SizeLBA:    sizeLBA,
			Flags:      uint32(attrs),
			Stream:     windowFor(media, startLBA, sizeLBA),
		})
	}
	return parts, nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
