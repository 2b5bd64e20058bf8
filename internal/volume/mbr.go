package volume

import (
	"fmt"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	mbrSignatureOffset = 510
	mbrTableOffset     = 446
	mbrEntrySize       = 16
	mbrEntryCount      = 4

	mbrTypeExtendedCHS  = 0x05
	mbrTypeExtendedLBA  = 0x0F
	mbrTypeExtendedLinx = 0x85
)

type mbrEntry struct {
	typ      byte
	startLBA uint32
	sizeLBA  uint32
}

func isExtendedType(typ byte) bool {
	return typ == mbrTypeExtendedCHS || typ == mbrTypeExtendedLBA || typ == mbrTypeExtendedLinx
}

func readMBRSector(media fsio.DataStream, lba uint64) ([SectorSize]byte, error) {
	var sector [SectorSize]byte
	if err := fsio.ReadExactAt(media, int64(lba)*SectorSize, sector[:]); err != nil {
		return sector, kerr.Wrap(err, "volume.mbr", fmt.Sprintf("reading sector %d", lba))
	}
	return sector, nil
}

func parseMBREntry(raw []byte) mbrEntry {
	return mbrEntry{
		typ:      raw[4],
		startLBA: types.U32LE(raw[8:12]),
		sizeLBA:  types.U32LE(raw[12:16]),
	}
}

// DecodeMBR decodes the classic 512-byte boot sector plus the
// extended-partition EBR chain (types 0x05, 0x0F, 0x85) into a flat,
// 1-based-indexed partition list.
func DecodeMBR(media fsio.DataStream) ([]Partition, error) {
	sector, err := readMBRSector(media, 0)
	if err != nil {
		return nil, err
	}
	if sector[mbrSignatureOffset] != 0x55 || sector[mbrSignatureOffset+1] != 0xAA {
		return nil, kerr.New(kerr.KindFormatInvalid, "volume.mbr", "missing 55 AA boot signature")
	}

	var parts []Partition
	index := 1
	for i := 0; i < mbrEntryCount; i++ {
		raw := sector[mbrTableOffset+i*mbrEntrySize : mbrTableOffset+(i+1)*mbrEntrySize]
		e := parseMBREntry(raw)
		if e.typ == 0 {
			continue
		}
		if isExtendedType(e.typ) {
			logical, err := walkExtendedChain(media, uint64(e.startLBA))
			if err != nil {
				return nil, err
			}
			for _, l := range logical {
				l.Index = index
				index++
				parts = append(parts, l)
			}
			continue
		}
		parts = append(parts, Partition{
			Index:    index,
			Type:     fmt.Sprintf("0x%02x", e.typ),
			StartLBA: uint64(e.startLBA),
			SizeLBA:  uint64(e.sizeLBA),
			Stream:   windowFor(media, uint64(e.startLBA), uint64(e.sizeLBA)),
		})
		index++
	}
	return parts, nil
}

// walkExtendedChain follows the EBR linked list starting at
// extendedStart (absolute LBA of the primary extended partition).
// Each EBR's first entry is one logical partition relative to the
// current EBR; its second entry, when present, links to the next EBR
// at an offset relative to extendedStart itself.
func walkExtendedChain(media fsio.DataStream, extendedStart uint64) ([]Partition, error) {
	var out []Partition
	relOffset := uint64(0)
	seen := map[uint64]bool{}
	for {
		ebrLBA := extendedStart + relOffset
		if seen[ebrLBA] {
			return nil, kerr.New(kerr.KindFormatInvalid, "volume.mbr", "EBR chain cycle detected")
		}
		seen[ebrLBA] = true

		sector, err := readMBRSector(media, ebrLBA)
		if err != nil {
			return nil, err
		}
		if sector[mbrSignatureOffset] != 0x55 || sector[mbrSignatureOffset+1] != 0xAA {
			return nil, kerr.New(kerr.KindFormatInvalid, "volume.mbr", "missing 55 AA signature in EBR")
		}

		first := parseMBREntry(sector[mbrTableOffset : mbrTableOffset+mbrEntrySize])
		if first.typ != 0 {
			logicalStart := ebrLBA + uint64(first.startLBA)
			out = append(out, Partition{
				Type:     fmt.Sprintf("0x%02x", first.typ),
				StartLBA: logicalStart,
				SizeLBA:  uint64(first.sizeLBA),
				Stream:   windowFor(media, logicalStart, uint64(first.sizeLBA)),
			})
		}

		second := parseMBREntry(sector[mbrTableOffset+mbrEntrySize : mbrTableOffset+2*mbrEntrySize])
		if second.typ == 0 || !isExtendedType(second.typ) {
			return out, nil
		}
		relOffset = uint64(second.startLBA)
	}
}
