// Package types provides the byte-level value types shared by every format
// decoder: encoded byte strings, UCS-2/UTF-16 strings with case-folded
// comparison, and the two on-disk UUID byte orders.
package types

import (
	"bytes"
	"unicode/utf8"
)

// Encoding identifies how a ByteString's bytes decode into text.
type Encoding int

const (
	// EncodingASCII decodes each byte as its own code point.
	EncodingASCII Encoding = iota
	// EncodingUTF8 decodes the bytes as UTF-8.
	EncodingUTF8
	// EncodingLatin1 decodes each byte as a Latin-1 code point.
	EncodingLatin1
)

// ByteString is an ordered sequence of 8-bit units carrying an attached
// character encoding. Equality and ordering are always byte-wise,
// regardless of encoding; only ToString consults the encoding.
type ByteString struct {
	Bytes    []byte
	Encoding Encoding
}

// NewByteString wraps raw bytes with an encoding tag.
func NewByteString(b []byte, enc Encoding) ByteString {
	return ByteString{Bytes: b, Encoding: enc}
}

// Equal reports byte-wise equality, ignoring encoding.
func (s ByteString) Equal(other ByteString) bool {
	return bytes.Equal(s.Bytes, other.Bytes)
}

// Compare returns -1, 0 or 1 comparing the raw bytes of s and other.
func (s ByteString) Compare(other ByteString) int {
	return bytes.Compare(s.Bytes, other.Bytes)
}

// ToString decodes the byte string using its attached encoding.
func (s ByteString) ToString() string {
	switch s.Encoding {
	case EncodingUTF8:
		if utf8.Valid(s.Bytes) {
			return string(s.Bytes)
		}
		return string(bytes.ToValidUTF8(s.Bytes, []byte{0xEF, 0xBF, 0xBD}))
	case EncodingLatin1:
		runes := make([]rune, len(s.Bytes))
		for i, b := range s.Bytes {
			runes[i] = rune(b)
		}
		return string(runes)
	default: // EncodingASCII
		runes := make([]rune, len(s.Bytes))
		for i, b := range s.Bytes {
			if b < 0x80 {
				runes[i] = rune(b)
			} else {
				runes[i] = utf8.RuneError
			}
		}
		return string(runes)
	}
}

// Len returns the number of bytes.
func (s ByteString) Len() int { return len(s.Bytes) }

// IsEmpty reports whether the byte string holds no bytes.
func (s ByteString) IsEmpty() bool { return len(s.Bytes) == 0 }
