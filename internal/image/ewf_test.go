package image

import (
	"testing"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

func putEWFSectionDescriptor(buf []byte, sectionType string, next, size int64) {
	copy(buf[0:16], sectionType)
	types.PutU64LE(buf[16:24], uint64(next))
	types.PutU64LE(buf[24:32], uint64(size))
	types.PutU32LE(buf[72:76], checksum.Adler32(buf[0:72]))
}

// buildEWFImage assembles a minimal single-segment E01 image: a file
// header, a "volume" section describing one 4096-byte chunk, a
// "sectors" section holding that chunk's raw bytes plus its Adler-32
// trailer, a "table" section pointing back at it, and a "done"
// section closing the chain.
func buildEWFImage(t *testing.T, content string) []byte {
	t.Helper()
	const (
		sectorsPerChunk = 8
		bytesPerSector  = 512
		chunkSize       = sectorsPerChunk * bytesPerSector // 4096
	)

	fileHeaderOffset := int64(0)
	volumeOffset := fileHeaderOffset + ewfFileHeaderSize
	volumeSize := int64(ewfSectionDescriptorSize + 24)

	sectorsOffset := volumeOffset + volumeSize
	sectorsDataOffset := sectorsOffset + ewfSectionDescriptorSize
	sectorsSize := int64(ewfSectionDescriptorSize + chunkSize + ewfChunkTrailerSize)
	sectorsDataEnd := sectorsOffset + sectorsSize

	tableOffset := sectorsOffset + sectorsSize
	tableHeaderSize := int64(24)
	tableEntriesSize := int64(4)
	tableSize := int64(ewfSectionDescriptorSize) + tableHeaderSize + tableEntriesSize

	doneOffset := tableOffset + tableSize
	doneSize := int64(ewfSectionDescriptorSize)

	img := make([]byte, doneOffset+doneSize)

	copy(img[0:8], "\x45\x56\x46\x09\x0d\x0a\xff\x00")
	img[8] = 1

	putEWFSectionDescriptor(img[volumeOffset:volumeOffset+ewfSectionDescriptorSize], "volume", sectorsOffset, volumeSize)
	volumeData := img[volumeOffset+ewfSectionDescriptorSize : volumeOffset+volumeSize]
	types.PutU32LE(volumeData[4:8], 1) // chunk count
	types.PutU32LE(volumeData[8:12], sectorsPerChunk)
	types.PutU32LE(volumeData[12:16], bytesPerSector)
	types.PutU64LE(volumeData[16:24], sectorsPerChunk) // number of sectors

	putEWFSectionDescriptor(img[sectorsOffset:sectorsOffset+ewfSectionDescriptorSize], "sectors", tableOffset, sectorsSize)
	payload := make([]byte, chunkSize)
	copy(payload, content)
	copy(img[sectorsDataOffset:sectorsDataOffset+chunkSize], payload)
	types.PutU32LE(img[sectorsDataOffset+chunkSize:sectorsDataOffset+chunkSize+ewfChunkTrailerSize], checksum.Adler32(payload))

	putEWFSectionDescriptor(img[tableOffset:tableOffset+ewfSectionDescriptorSize], "table", doneOffset, tableSize)
	tableHeader := img[tableOffset+ewfSectionDescriptorSize : tableOffset+ewfSectionDescriptorSize+tableHeaderSize]
	types.PutU32LE(tableHeader[0:4], 1) // number of entries
	types.PutU64LE(tableHeader[8:16], uint64(sectorsDataOffset))
	types.PutU32LE(tableHeader[20:24], checksum.Adler32(tableHeader[0:20]))
	tableEntries := img[tableOffset+ewfSectionDescriptorSize+tableHeaderSize : tableOffset+tableSize]
	types.PutU32LE(tableEntries[0:4], 0) // uncompressed, offset 0 from base

	putEWFSectionDescriptor(img[doneOffset:doneOffset+doneSize], "done", 0, doneSize)

	_ = sectorsDataEnd
	return img
}

func TestOpenEWFReadsUncompressedChunk(t *testing.T) {
	content := "hello ewf\n"
	img := buildEWFImage(t, content)

	e, err := OpenEWF([]fsio.DataStream{fsio.NewMemoryStream(img)})
	if err != nil {
		t.Fatalf("OpenEWF: %v", err)
	}
	if e.MediaSize != 8*512 {
		t.Fatalf("MediaSize = %d, want %d", e.MediaSize, 8*512)
	}
	buf := make([]byte, len(content))
	if err := e.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != content {
		t.Fatalf("content = %q, want %q", buf, content)
	}
}

func TestOpenEWFHonorsError2BadSectors(t *testing.T) {
	content := "hello ewf\n"
	img := buildEWFImage(t, content)

	e, err := OpenEWF([]fsio.DataStream{fsio.NewMemoryStream(img)})
	if err != nil {
		t.Fatalf("OpenEWF: %v", err)
	}
	e.badSectors[0] = true
	buf := make([]byte, len(content))
	if err := e.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 for a catalogued bad sector", i, b)
		}
	}
}

func TestOpenEWFRejectsBadSectionChecksum(t *testing.T) {
	img := buildEWFImage(t, "x")
	img[ewfFileHeaderSize] ^= 0xFF // corrupt the volume section descriptor
	if _, err := OpenEWF([]fsio.DataStream{fsio.NewMemoryStream(img)}); err == nil {
		t.Fatal("expected a checksum error for a corrupted section descriptor")
	}
}
