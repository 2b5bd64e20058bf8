package fat

import (
	"strings"

	"github.com/keramics/keramics/pkg/types"
)

const (
	attrVolumeLabel = 0x08
	attrDirectory   = 0x10
	attrLongName    = 0x0F // read-only|hidden|system|volume-label
)

type entryKind int

const (
	entryUnallocated entryKind = iota
	entryTerminator
	entryLongName
	entryShortName
)

// classifyEntry mirrors the reference decoder's raw-byte discriminant:
// 0xE5 marks unallocated, an all-zero record terminates the directory,
// attribute byte 0x0F with reserved fields zeroed and a plausible
// sequence-number byte marks a VFAT long-name fragment, anything else
// is a short-name (8.3) entry.
func classifyEntry(data []byte) entryKind {
	if data[0] == 0xE5 {
		return entryUnallocated
	}
	if data[11] == attrLongName && data[26] == 0 && data[27] == 0 &&
		((data[0] >= 0x01 && data[0] <= 0x13) || (data[0] >= 0x41 && data[0] <= 0x54)) {
		return entryLongName
	}
	if isAllZero(data) {
		return entryTerminator
	}
	return entryShortName
}

func isAllZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// ShortNameEntry is a parsed 32-byte 8.3 directory record.
type ShortNameEntry struct {
	Name       string // "NAME.EXT" joined form
	Attributes byte
	Cluster    uint32
	Size       uint32
}

func (e ShortNameEntry) IsDirectory() bool { return e.Attributes&attrDirectory != 0 }
func (e ShortNameEntry) IsVolumeLabel() bool { return e.Attributes&attrVolumeLabel != 0 }

func parseShortNameEntry(data []byte) ShortNameEntry {
	name := strings.TrimRight(string(data[0:8]), " ")
	ext := strings.TrimRight(string(data[8:11]), " ")
	full := name
	if ext != "" {
		full = name + "." + ext
	}
	attrs := data[11]
	clusterHi := types.U16LE(data[20:22])
	clusterLo := types.U16LE(data[26:28])
	cluster := uint32(clusterHi)<<16 | uint32(clusterLo)
	size := types.U32LE(data[28:32])
	return ShortNameEntry{Name: full, Attributes: attrs, Cluster: cluster, Size: size}
}

// longNameFragment is one VFAT long-name directory record, holding up
// to 13 UTF-16 code units of the name.
type longNameFragment struct {
	sequence uint8
	units    []uint16
}

func parseLongNameFragment(data []byte) longNameFragment {
	var units []uint16
	collect := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			u := uint16(b[i]) | uint16(b[i+1])<<8
			if u == 0x0000 || u == 0xFFFF {
				return
			}
			units = append(units, u)
		}
	}
	collect(data[1:11])
	collect(data[14:26])
	collect(data[28:32])
	return longNameFragment{sequence: data[0], units: units}
}

// DirEntry is a fully-resolved directory entry: the short-name record
// plus its VFAT long name, if one preceded it.
type DirEntry struct {
	ShortNameEntry
	LongName string
}

func (e DirEntry) DisplayName() string {
	if e.LongName != "" {
		return e.LongName
	}
	return e.ShortNameEntry.Name
}

// parseDirectoryBlock decodes one directory data region (a sequence of
// 32-byte records) into resolved entries, reassembling VFAT long-name
// fragments (stored highest-sequence-first, immediately preceding
// their short-name entry) in reverse order.
func parseDirectoryBlock(buf []byte) []DirEntry {
	var entries []DirEntry
	var pending []longNameFragment

	for offset := 0; offset+32 <= len(buf); offset += 32 {
		rec := buf[offset : offset+32]
		switch classifyEntry(rec) {
		case entryTerminator:
			return entries
		case entryUnallocated:
			pending = nil
		case entryLongName:
			pending = append(pending, parseLongNameFragment(rec))
		case entryShortName:
			short := parseShortNameEntry(rec)
			de := DirEntry{ShortNameEntry: short}
			if len(pending) > 0 {
				var units []uint16
				for i := len(pending) - 1; i >= 0; i-- {
					units = append(units, pending[i].units...)
				}
				de.LongName = types.NewUtf16String(uint16sToBytes(units)).ToString()
			}
			pending = nil
			entries = append(entries, de)
		}
	}
	return entries
}

func uint16sToBytes(units []uint16) []byte {
	b := make([]byte, len(units)*2)
	for i, u := range units {
		b[i*2] = byte(u)
		b[i*2+1] = byte(u >> 8)
	}
	return b
}
