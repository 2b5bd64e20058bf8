package ntfs

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// Well-known MFT entry indices.
const (
	EntryMFT    = 0
	EntryVolume = 3
	EntryUpCase = 10
	EntryRoot   = 5
)

// RawEntry is a fixed-up MFT entry's bytes plus its header fields.
type RawEntry struct {
	Index       uint64
	Data        []byte // fixed-up, ready to parse attributes from
	AttrsOffset uint16
	Flags       uint16 // bit 0 = in use, bit 1 = directory
	BaseEntry   uint64 // for attribute-list fragments; 0 if this is a base entry
}

func (e *RawEntry) InUse() bool     { return e.Flags&0x0001 != 0 }
func (e *RawEntry) IsDirectory() bool { return e.Flags&0x0002 != 0 }

// ReadRawEntry reads entry at index from mftStream (mftEntrySize bytes
// each), verifies the FILE signature, and applies the fix-up array.
func ReadRawEntry(mftStream fsio.DataStream, entrySize int64, sectorSize uint16, index uint64) (*RawEntry, error) {
	buf := make([]byte, entrySize)
	if err := fsio.ReadExactAt(mftStream, int64(index)*entrySize, buf); err != nil {
		return nil, kerr.Wrap(err, "ntfs.mft", "reading MFT entry")
	}

	sig := string(buf[0:4])
	switch sig {
	case "FILE":
		// ok
	case "BAAD":
		return nil, kerr.New(kerr.KindCorruption, "ntfs.mft", "MFT entry marked BAAD")
	default:
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.mft", "bad MFT entry signature")
	}

	fixupOffset := types.U16LE(buf[4:6])
	fixupCount := types.U16LE(buf[6:8])
	if err := applyFixups(buf, int(fixupOffset), int(fixupCount), int(sectorSize)); err != nil {
		return nil, err
	}

	flags := types.U16LE(buf[22:24])
	attrsOffset := types.U16LE(buf[20:22])
	baseRef := types.U64LE(buf[32:40]) & 0x0000FFFFFFFFFFFF

	return &RawEntry{
		Index:       index,
		Data:        buf,
		AttrsOffset: attrsOffset,
		Flags:       flags,
		BaseEntry:   baseRef,
	}, nil
}

// applyFixups validates and replaces the per-sector "update sequence"
// bytes: the last two bytes of each sector must equal the fixup
// array's stamp value, and are overwritten with the original bytes
// stored in the array.
func applyFixups(buf []byte, fixupOffset, fixupCount, sectorSize int) error {
	if fixupCount == 0 {
		return nil
	}
	if fixupOffset+fixupCount*2 > len(buf) {
		return kerr.New(kerr.KindFormatInvalid, "ntfs.mft", "fix-up array out of bounds")
	}
	stamp := buf[fixupOffset : fixupOffset+2]
	values := buf[fixupOffset+2 : fixupOffset+fixupCount*2]

	for i := 0; i < fixupCount-1; i++ {
		sectorEnd := (i+1)*sectorSize - 2
		if sectorEnd+2 > len(buf) {
			break
		}
		if buf[sectorEnd] != stamp[0] || buf[sectorEnd+1] != stamp[1] {
			return kerr.New(kerr.KindFormatInvalid, "ntfs.mft", "fix-up stamp mismatch")
		}
		buf[sectorEnd] = values[i*2]
		buf[sectorEnd+1] = values[i*2+1]
	}
	return nil
}
