package ntfs

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// Attribute type codes relevant to decoding.
const (
	AttrStandardInformation = 0x10
	AttrAttributeList       = 0x20
	AttrFileName            = 0x30
	AttrVolumeName          = 0x60
	AttrVolumeInformation   = 0x70
	AttrData                = 0x80
	AttrIndexRoot           = 0x90
	AttrIndexAllocation     = 0xA0
	attrEndMarker           = 0xFFFFFFFF
)

// Attribute is one parsed attribute header plus its payload: either
// inline Resident bytes, or a non-resident Runs list over cluster
// numbers.
type Attribute struct {
	Type       uint32
	Name       string
	Resident   bool
	Data       []byte  // resident payload
	Runs       []run   // non-resident data runs, in logical order
	LogicalSize int64  // non-resident: real/allocated size of the stream
	Compressed bool
	Flags      uint16
}

type run struct {
	lengthClusters int64
	startCluster   int64 // -1 means sparse
}

// ParseAttributes walks an MFT entry's attribute vector starting at
// AttrsOffset, stopping at the 0xFFFFFFFF end marker or entry bounds.
func ParseAttributes(entry *RawEntry) ([]Attribute, error) {
	var out []Attribute
	buf := entry.Data
	offset := int(entry.AttrsOffset)

	for offset+4 <= len(buf) {
		typ := types.U32LE(buf[offset : offset+4])
		if typ == attrEndMarker {
			break
		}
		if offset+16 > len(buf) {
			return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.attr", "truncated attribute header")
		}
		totalSize := types.U32LE(buf[offset+4 : offset+8])
		if totalSize == 0 || offset+int(totalSize) > len(buf) {
			return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.attr", "attribute size out of bounds")
		}
		nonResidentFlag := buf[offset+8]
		nameLen := buf[offset+9]
		nameOffset := types.U16LE(buf[offset+10 : offset+12])
		flags := types.U16LE(buf[offset+12 : offset+14])

		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+int(nameOffset) : offset+int(nameOffset)+int(nameLen)*2]
			name = types.NewUtf16String(nameBytes).ToString()
		}

		attr := Attribute{Type: typ, Name: name, Flags: flags}
		if nonResidentFlag == 0 {
			attr.Resident = true
			contentSize := types.U32LE(buf[offset+16 : offset+20])
			contentOffset := types.U16LE(buf[offset+20 : offset+22])
			start := offset + int(contentOffset)
			end := start + int(contentSize)
			if end > offset+int(totalSize) || end > len(buf) {
				return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.attr", "resident content out of bounds")
			}
			attr.Data = append([]byte(nil), buf[start:end]...)
		} else {
			attr.Resident = false
			attr.Compressed = flags&0x0001 != 0
			attr.LogicalSize = int64(types.U64LE(buf[offset+48 : offset+56]))
			runListOffset := types.U16LE(buf[offset+32 : offset+34])
			runsBuf := buf[offset+int(runListOffset) : offset+int(totalSize)]
			runs, err := decodeDataRuns(runsBuf)
			if err != nil {
				return nil, err
			}
			attr.Runs = runs
		}

		out = append(out, attr)
		offset += int(totalSize)
	}
	return out, nil
}

// decodeDataRuns parses the run-list encoding described in the
// header-byte split (high nibble = block-number-delta byte count, low
// nibble = run-length byte count); the list terminates at a 0x00
// header byte.
func decodeDataRuns(buf []byte) ([]run, error) {
	var runs []run
	var cluster int64
	offset := 0
	for offset < len(buf) {
		h := buf[offset]
		if h == 0 {
			break
		}
		lowLen := int(h & 0x0f)
		highLen := int(h >> 4)
		offset++
		if lowLen == 0 {
			return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.attr", "zero-length data run")
		}
		if offset+lowLen+highLen > len(buf) {
			return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.attr", "data run out of bounds")
		}
		length := decodeUnsignedLE(buf[offset : offset+lowLen])
		offset += lowLen

		if highLen == 0 {
			runs = append(runs, run{lengthClusters: length, startCluster: -1})
			continue
		}
		delta := decodeSignedLE(buf[offset : offset+highLen])
		offset += highLen
		cluster += delta
		runs = append(runs, run{lengthClusters: length, startCluster: cluster})
	}
	return runs, nil
}

func decodeUnsignedLE(b []byte) int64 {
	var v int64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | int64(b[i])
	}
	return v
}

func decodeSignedLE(b []byte) int64 {
	v := decodeUnsignedLE(b)
	signBit := int64(1) << uint(len(b)*8-1)
	if v&signBit != 0 {
		v -= signBit << 1
	}
	return v
}

// DataStream assembles a non-resident attribute's runs into an
// fsio.DataStream over the backing media, in cluster units.
func (a *Attribute) DataStream(media fsio.DataStream, clusterSize int64) (fsio.DataStream, error) {
	if a.Resident {
		return fsio.NewMemoryStream(a.Data), nil
	}
	var extents []fsio.Extent
	var logical int64
	for _, r := range a.Runs {
		length := r.lengthClusters * clusterSize
		if r.startCluster >= 0 {
			extents = append(extents, fsio.Extent{
				FileOffset:   logical,
				ParentOffset: r.startCluster * clusterSize,
				Length:       length,
			})
		}
		logical += length
	}
	return fsio.NewBlockMappedStream(media, extents, a.LogicalSize, nil), nil
}
