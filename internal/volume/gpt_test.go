package volume

import (
	"hash/crc32"
	"testing"

	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

// buildGPTImage assembles a minimal primary GPT with one partition
// entry and returns the backing image bytes, valid header/array CRCs.
func buildGPTImage(t *testing.T, entryCount uint32, startLBA, endLBA uint64, typeGUID, idGUID [16]byte, name string) []byte {
	t.Helper()

	const headerSize = 92
	const entrySize = 128
	const entryLBA = 2

	header := make([]byte, SectorSize)
	copy(header[0:8], []byte("EFI PART"))
	types.PutU32LE(header[8:12], 0x00010000)
	types.PutU32LE(header[12:16], headerSize)
	types.PutU64LE(header[24:32], gptHeaderLBA)
	diskGUID := types.UuidFromBytesLE([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}).BytesLE()
	copy(header[56:72], diskGUID[:])
	types.PutU64LE(header[72:80], entryLBA)
	types.PutU32LE(header[gptEntryCountOffset:gptEntryCountOffset+4], entryCount)
	types.PutU32LE(header[gptEntrySizeOffset:gptEntrySizeOffset+4], entrySize)

	entries := make([]byte, int(entryCount)*entrySize)
	copy(entries[0:16], typeGUID[:])
	copy(entries[16:32], idGUID[:])
	types.PutU64LE(entries[32:40], startLBA)
	types.PutU64LE(entries[40:48], endLBA)
	nameUTF16 := encodeUTF16LE(name)
	copy(entries[56:56+len(nameUTF16)], nameUTF16)

	entryCRC := crc32.ChecksumIEEE(entries)
	types.PutU32LE(header[gptEntryArrayCRC:gptEntryArrayCRC+4], entryCRC)

	headerCRC := crc32.ChecksumIEEE(header[:headerSize])
	types.PutU32LE(header[gptHeaderCRCOffset:gptHeaderCRCOffset+4], headerCRC)

	imgSize := int64(entryLBA)*SectorSize + int64(len(entries))
	if imgSize < (entryLBA+1)*SectorSize {
		imgSize = (entryLBA + 1) * SectorSize
	}
	img := make([]byte, imgSize)
	copy(img[SectorSize:2*SectorSize], header)
	copy(img[entryLBA*SectorSize:], entries)
	return img
}

func encodeUTF16LE(s string) []byte {
	out := make([]byte, 0, len(s)*2)
	for _, r := range s {
		// Test fixture names are ASCII-only; no surrogate pairs needed.
		out = append(out, byte(r), byte(r>>8))
	}
	return out
}

func TestDecodeGPTSinglePartition(t *testing.T) {
	typeGUID := [16]byte{0xAF, 0x3D, 0xC6, 0x0F, 0x83, 0x84, 0x72, 0x47, 0x8E, 0x79, 0x3D, 0x69, 0xD8, 0x47, 0x7D, 0xE4}
	idGUID := [16]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	img := buildGPTImage(t, 1, 34, 1033, typeGUID, idGUID, "root")

	parts, err := DecodeGPT(fsio.NewMemoryStream(img))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions, want 1", len(parts))
	}
	p := parts[0]
	if p.StartLBA != 34 || p.SizeLBA != 1000 {
		t.Fatalf("partition = %+v", p)
	}
	if p.Name != "root" {
		t.Fatalf("name = %q, want %q", p.Name, "root")
	}
	if p.Stream.Size() != 1000*SectorSize {
		t.Fatalf("stream size = %d, want %d", p.Stream.Size(), 1000*SectorSize)
	}
}

func TestDecodeGPTHeaderCRCMismatch(t *testing.T) {
	typeGUID := [16]byte{1}
	idGUID := [16]byte{2}
	img := buildGPTImage(t, 1, 34, 100, typeGUID, idGUID, "x")
	img[SectorSize+gptHeaderCRCOffset] ^= 0xFF // corrupt the stored header CRC

	if _, err := DecodeGPT(fsio.NewMemoryStream(img)); err == nil {
		t.Fatal("expected a checksum-mismatch error")
	}
}

func TestDecodeGPTMissingSignature(t *testing.T) {
	img := make([]byte, 3*SectorSize)
	if _, err := DecodeGPT(fsio.NewMemoryStream(img)); err == nil {
		t.Fatal("expected a format-invalid error for a missing EFI PART signature")
	}
}
