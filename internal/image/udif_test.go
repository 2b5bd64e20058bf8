package image

import (
	"encoding/base64"
	"testing"

	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/pkg/types"
)

// buildUDIFMish assembles a single-entry "mish" block table: a raw
// (uncompressed) run covering sectorCount sectors starting at
// relative file offset dataOffset.
func buildUDIFMish(sectorCount int64, dataOffset int64) []byte {
	mish := make([]byte, udifMishHeaderSize+udifBlockEntrySize)
	copy(mish[0:4], "mish")
	types.PutU64BE(mish[8:16], 0) // first sector
	types.PutU32BE(mish[200:204], 1)

	entry := mish[udifMishHeaderSize : udifMishHeaderSize+udifBlockEntrySize]
	types.PutU32BE(entry[0:4], udifEntryRaw)
	types.PutU64BE(entry[8:16], 0) // start sector (relative to mish firstSector)
	types.PutU64BE(entry[16:24], uint64(sectorCount))
	types.PutU64BE(entry[24:32], uint64(dataOffset))
	types.PutU64BE(entry[32:40], uint64(sectorCount*udifSectorSize))
	return mish
}

func buildUDIFPlist(mish []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(mish)
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>resource-fork</key>
	<dict>
		<key>blkx</key>
		<array>
			<dict>
				<key>Data</key>
				<data>` + encoded + `</data>
			</dict>
		</array>
	</dict>
</dict>
</plist>`
	return []byte(xml)
}

func buildUDIFImage(t *testing.T, content string) []byte {
	t.Helper()
	const sectorCount = 2 // 1024 bytes

	data := make([]byte, sectorCount*udifSectorSize)
	copy(data, content)

	mish := buildUDIFMish(sectorCount, 0)
	xml := buildUDIFPlist(mish)

	xmlOffset := int64(len(data))
	img := append([]byte(nil), data...)
	img = append(img, xml...)

	footer := make([]byte, udifFooterSize)
	copy(footer[0:4], "koly")
	types.PutU64BE(footer[24:32], 0) // data fork offset
	types.PutU64BE(footer[216:224], uint64(xmlOffset))
	types.PutU64BE(footer[224:232], uint64(len(xml)))
	types.PutU64BE(footer[492:500], sectorCount)

	img = append(img, footer...)
	return img
}

func TestOpenUDIFReadsRawBlock(t *testing.T) {
	content := "hello udif\n"
	img := buildUDIFImage(t, content)

	u, err := OpenUDIF(fsio.NewMemoryStream(img))
	if err != nil {
		t.Fatalf("OpenUDIF: %v", err)
	}
	if u.MediaSize != 2*udifSectorSize {
		t.Fatalf("MediaSize = %d, want %d", u.MediaSize, 2*udifSectorSize)
	}
	buf := make([]byte, len(content))
	if err := u.ReadExactAt(0, buf); err != nil {
		t.Fatalf("ReadExactAt: %v", err)
	}
	if string(buf) != content {
		t.Fatalf("content = %q, want %q", buf, content)
	}
}

func TestOpenUDIFRejectsBadFooterSignature(t *testing.T) {
	img := buildUDIFImage(t, "x")
	img[len(img)-udifFooterSize] = 'x'
	if _, err := OpenUDIF(fsio.NewMemoryStream(img)); err == nil {
		t.Fatal("expected a format error for a corrupted koly signature")
	}
}
