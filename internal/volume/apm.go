package volume

import (
	"bytes"
	"strings"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	apmFirstEntryLBA = 1
	apmEntrySize     = SectorSize
	apmSignature     = "PM"
)

// DecodeAPM decodes the Apple Partition Map: 512-byte entries starting
// at sector 1, all multi-byte fields big-endian. Entry 0 self-declares
// the map's total entry count.
func DecodeAPM(media fsio.DataStream) ([]Partition, error) {
	first := make([]byte, apmEntrySize)
	if err := fsio.ReadExactAt(media, apmFirstEntryLBA*SectorSize, first); err != nil {
		return nil, kerr.Wrap(err, "volume.apm", "reading first partition map entry")
	}
	if !bytes.Equal(first[0:2], []byte(apmSignature)) {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.apm", "missing PM signature")
	}
	mapEntryCount := types.U32BE(first[4:8])
	if mapEntryCount == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.apm", "partition map declares zero entries")
	}

	var parts []Partition
	for i := uint32(0); i < mapEntryCount; i++ {
		raw, err := readAPMEntry(media, uint64(apmFirstEntryLBA+int64(i)))
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(raw[0:2], []byte(apmSignature)) {
			return nil, kerr.New(kerr.KindFormatInvalid, "volume.apm", "missing PM signature in entry")
		}

		startLBA := uint64(types.U32BE(raw[8:12]))
		sizeLBA := uint64(types.U32BE(raw[12:16]))
		name := nullTerminatedASCII(raw[16:48])
		typ := nullTerminatedASCII(raw[48:80])
		status := types.U32BE(raw[88:92])

		parts = append(parts, Partition{
			Index:    int(i) + 1,
			Name:     name,
			Type:     typ,
			StartLBA: startLBA,
			SizeLBA:  sizeLBA,
			Flags:    status,
			Stream:   windowFor(media, startLBA, sizeLBA),
		})
	}
	return parts, nil
}

func readAPMEntry(media fsio.DataStream, lba uint64) ([]byte, error) {
	raw := make([]byte, apmEntrySize)
	if err := fsio.ReadExactAt(media, int64(lba)*SectorSize, raw); err != nil {
		return nil, kerr.Wrap(err, "volume.apm", "reading partition map entry")
	}
	return raw, nil
}

func nullTerminatedASCII(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}
