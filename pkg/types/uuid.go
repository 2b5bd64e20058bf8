package types

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Uuid is a 128-bit identifier. On-disk formats disagree about byte
// order: GPT and VHDX store the first three fields little-endian
// (Microsoft layout), while APM-adjacent and RFC 4122 contexts store all
// sixteen bytes in big-endian network order. The two constructors below
// normalize both into the same in-memory representation so that
// Equal/String are layout-independent.
type Uuid struct {
	uuid.UUID
}

// Nil is the all-zero UUID, used as a sentinel "absent" value (e.g. VHDX
// layers with no parent).
var Nil = Uuid{uuid.Nil}

// UuidFromBytesLE reads a 16-byte Microsoft-layout UUID: the first three
// fields (4, 2, 2 bytes) are little-endian; the final eight bytes are
// taken verbatim.
func UuidFromBytesLE(b [16]byte) Uuid {
	var out [16]byte
	binary.BigEndian.PutUint32(out[0:4], binary.LittleEndian.Uint32(b[0:4]))
	binary.BigEndian.PutUint16(out[4:6], binary.LittleEndian.Uint16(b[4:6]))
	binary.BigEndian.PutUint16(out[6:8], binary.LittleEndian.Uint16(b[6:8]))
	copy(out[8:16], b[8:16])
	return Uuid{uuid.UUID(out)}
}

// UuidFromBytesBE reads a 16-byte RFC 4122 big-endian UUID verbatim.
func UuidFromBytesBE(b [16]byte) Uuid {
	return Uuid{uuid.UUID(b)}
}

// BytesLE renders the UUID back into Microsoft little-endian layout.
func (u Uuid) BytesLE() [16]byte {
	b := [16]byte(u.UUID)
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:4], binary.BigEndian.Uint32(b[0:4]))
	binary.LittleEndian.PutUint16(out[4:6], binary.BigEndian.Uint16(b[4:6]))
	binary.LittleEndian.PutUint16(out[6:8], binary.BigEndian.Uint16(b[6:8]))
	copy(out[8:16], b[8:16])
	return out
}

// BytesBE renders the UUID in RFC 4122 big-endian layout.
func (u Uuid) BytesBE() [16]byte {
	return [16]byte(u.UUID)
}

// IsNil reports whether u is the all-zero UUID.
func (u Uuid) IsNil() bool {
	return u.UUID == uuid.Nil
}
