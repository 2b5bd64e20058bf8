package types

import (
	"unicode/utf16"
)

// CaseFoldTable maps a 16-bit code unit to its upper-case form. NTFS
// sources this from the volume's $UpCase file; FAT uses a fixed built-in
// VFAT table. ASCIIFoldTable is the fallback used when no table is
// available.
type CaseFoldTable interface {
	ToUpper(unit uint16) uint16
}

// ASCIIFoldTable upper-cases only the ASCII range, leaving every other
// code unit untouched. Used as the soft-fail fallback when a format's own
// case-folding table cannot be loaded.
type ASCIIFoldTable struct{}

// ToUpper implements CaseFoldTable.
func (ASCIIFoldTable) ToUpper(unit uint16) uint16 {
	if unit >= 'a' && unit <= 'z' {
		return unit - ('a' - 'A')
	}
	return unit
}

// Ucs2String is an ordered sequence of 16-bit code units where surrogate
// pairs are not interpreted as a single code point (each unit stands on
// its own, matching NTFS filename comparison semantics).
type Ucs2String struct {
	Units []uint16
}

// NewUcs2String decodes little-endian 16-bit code units from raw bytes.
func NewUcs2String(raw []byte) Ucs2String {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return Ucs2String{Units: units}
}

// ToString renders the code units as a Go string, each unit standing
// alone (surrogate halves render as individual replacement-adjacent
// runes rather than being paired).
func (s Ucs2String) ToString() string {
	runes := make([]rune, len(s.Units))
	for i, u := range s.Units {
		runes[i] = rune(u)
	}
	return string(runes)
}

// CaseFold returns a copy of s with every unit upper-cased via table.
func (s Ucs2String) CaseFold(table CaseFoldTable) Ucs2String {
	out := make([]uint16, len(s.Units))
	for i, u := range s.Units {
		out[i] = table.ToUpper(u)
	}
	return Ucs2String{Units: out}
}

// CompareCaseFold lexicographically compares s and other after folding
// both through table, returning -1, 0 or 1.
func (s Ucs2String) CompareCaseFold(other Ucs2String, table CaseFoldTable) int {
	a, b := s.CaseFold(table), other.CaseFold(table)
	n := len(a.Units)
	if len(b.Units) < n {
		n = len(b.Units)
	}
	for i := 0; i < n; i++ {
		if a.Units[i] != b.Units[i] {
			if a.Units[i] < b.Units[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a.Units) < len(b.Units):
		return -1
	case len(a.Units) > len(b.Units):
		return 1
	default:
		return 0
	}
}

// Utf16String is an ordered sequence of 16-bit units where surrogate
// pairs are interpreted as a single code point, matching GPT partition
// names and other UTF-16LE on-disk strings.
type Utf16String struct {
	Units []uint16
}

// NewUtf16String decodes little-endian 16-bit code units from raw bytes.
func NewUtf16String(raw []byte) Utf16String {
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	return Utf16String{Units: units}
}

// ToString decodes the units, interpreting surrogate pairs.
func (s Utf16String) ToString() string {
	return string(utf16.Decode(s.Units))
}
