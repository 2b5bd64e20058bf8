package image

import (
	"testing"

	"github.com/google/uuid"
	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

func putU16LE(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func uuidLE(t *testing.T, s string) [16]byte {
	t.Helper()
	return types.Uuid{UUID: uuid.MustParse(s)}.BytesLE()
}

// buildVHDXImage assembles a minimal single-block, no-parent VHDX
// image: one valid header, a two-entry region table (BAT + metadata),
// a metadata table naming a 4096-byte block size and 512-byte logical
// sectors, and a one-chunk, nine-slot BAT whose only used payload
// entry is fully present.
func buildVHDXImage(t *testing.T, content string) []byte {
	t.Helper()
	const (
		blockSize     = 4096
		sectorSize    = 512
		headerOffset  = 64 * 1024
		regionOffset  = 192 * 1024
		metadataOffset = 320 * 1024
		batOffset     = 512 * 1024
		dataOffset    = 1024 * 1024
	)

	img := make([]byte, dataOffset+blockSize)

	// Header block.
	header := img[headerOffset : headerOffset+vhdxHeaderRegionSize]
	copy(header[0:4], "head")
	types.PutU32LE(header[8:12], 1) // sequence_number low 32 bits

	// Region table block.
	region := img[regionOffset : regionOffset+vhdxHeaderRegionSize]
	copy(region[0:4], "regi")
	types.PutU32LE(region[8:12], 2) // entry count
	batID := uuidLE(t, vhdxBATRegionUUID)
	copy(region[16:32], batID[:])
	types.PutU64LE(region[32:40], uint64(batOffset))
	metaID := uuidLE(t, vhdxMetadataRegionUUID)
	copy(region[48:64], metaID[:])
	types.PutU64LE(region[64:72], uint64(metadataOffset))

	// Metadata table: header + 3 item entries (file-parameters,
	// virtual-disk-size, logical-sector-size), payloads placed past
	// the 64 KiB minimum item offset.
	meta := img[metadataOffset : metadataOffset+vhdxHeaderRegionSize]
	copy(meta[0:8], "metadata")
	putU16LE(meta[10:12], 3)

	writeItem := func(slot int, id [16]byte, itemOffset, itemSize uint32) {
		off := 32 + slot*32
		copy(meta[off:off+16], id[:])
		types.PutU32LE(meta[off+16:off+20], itemOffset)
		types.PutU32LE(meta[off+20:off+24], itemSize)
	}
	fileParamsID := uuidLE(t, vhdxFileParametersItem)
	vdSizeID := uuidLE(t, vhdxVirtualDiskSizeItem)
	sectorSizeID := uuidLE(t, vhdxLogicalSectorSizeItem)
	writeItem(0, fileParamsID, 65536, 8)
	writeItem(1, vdSizeID, 65536+16, 8)
	writeItem(2, sectorSizeID, 65536+32, 4)

	// Item payloads live past the metadata table's own 64 KiB block, at
	// absolute offset metadataOffset+itemOffset.
	base := metadataOffset + 65536
	types.PutU32LE(img[base:base+4], blockSize)      // file-parameters.block_size
	types.PutU32LE(img[base+4:base+8], 0)            // flags: no parent
	types.PutU64LE(img[base+16:base+24], blockSize)  // virtual_disk_size
	types.PutU32LE(img[base+32:base+36], sectorSize) // logical_sector_size

	// BAT: one data block (dataBlocks=1), chunkRatio=blockSize/sectorSize=8,
	// so one chunk occupies 9 slots: 8 payload slots (only slot 0 used)
	// plus a trailing sector-bitmap slot.
	const chunkRatio = blockSize / sectorSize
	bat := img[batOffset : batOffset+(chunkRatio+1)*8]
	payloadEntry := (uint64(dataOffset/vhdxFileOffsetUnit) << 20) | vhdxStatePayload
	types.PutU64LE(bat[0:8], payloadEntry)

	copy(img[dataOffset:], content)

	// Stamp the header checksum last, over the full 64 KiB block with
	// the checksum field zeroed, matching readVHDXHeader's check.
	scratch := append([]byte(nil), header...)
	scratch[4], scratch[5], scratch[6], scratch[7] = 0, 0, 0, 0
	types.PutU32LE(header[4:8], checksum.CRC32C(scratch))

	regionScratch := append([]byte(nil), region...)
	regionScratch[4], regionScratch[5], regionScratch[6], regionScratch[7] = 0, 0, 0, 0
	types.PutU32LE(region[4:8], checksum.CRC32C(regionScratch))

	return img
}

func TestOpenVHDXReadsFullyPresentBlock(t *testing.T) {
	content := "hello vhdx\n"
	img := buildVHDXImage(t, content)

	v, err := OpenVHDX(fsio.NewMemoryStream(img))
	if err != nil {
		t.Fatalf("OpenVHDX: %v", err)
	}
	if v.BlockSize != 4096 {
		t.Fatalf("BlockSize = %d, want 4096", v.BlockSize)
	}
	if v.VirtualDiskSize != 4096 {
		t.Fatalf("VirtualDiskSize = %d, want 4096", v.VirtualDiskSize)
	}

	buf := make([]byte, len(content))
	if err := v.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != content {
		t.Fatalf("content = %q, want %q", buf, content)
	}
}

func TestOpenVHDXRejectsBadRegionChecksum(t *testing.T) {
	img := buildVHDXImage(t, "x")
	img[192*1024+16] ^= 0xFF // corrupt the first region entry's UUID
	if _, err := OpenVHDX(fsio.NewMemoryStream(img)); err == nil {
		t.Fatal("expected a checksum-mismatch error")
	}
}
