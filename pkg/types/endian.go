package types

import "encoding/binary"

// U16LE reads a little-endian uint16 at the start of b.
func U16LE(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// U32LE reads a little-endian uint32 at the start of b.
func U32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// U64LE reads a little-endian uint64 at the start of b.
func U64LE(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// U16BE reads a big-endian uint16 at the start of b.
func U16BE(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// U32BE reads a big-endian uint32 at the start of b.
func U32BE(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

// U64BE reads a big-endian uint64 at the start of b.
func U64BE(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// PutU32LE writes v little-endian into the start of b.
func PutU32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }

// PutU64LE writes v little-endian into the start of b.
func PutU64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

// PutU32BE writes v big-endian into the start of b.
func PutU32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// PutU64BE writes v big-endian into the start of b.
func PutU64BE(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }
