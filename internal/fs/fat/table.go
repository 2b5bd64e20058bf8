package fat

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// clusterFree marks an unallocated FAT entry. End-of-chain values keep
// their on-disk form; isEndOfChain tests them against the range for
// the table's format.
const clusterFree = 0

// Table is an in-memory copy of FAT #0, decoded to a flat []uint32
// chain regardless of on-disk entry width.
type Table struct {
	format  Format
	entries []uint32
}

// ReadTable reads the first file allocation table (FAT #0) in full.
func ReadTable(media fsio.DataStream, br *BootRecord) (*Table, error) {
	size := br.SectorsPerFAT * uint64(br.BytesPerSector)
	buf := make([]byte, size)
	if err := fsio.ReadExactAt(media, int64(br.FirstFATSector)*int64(br.BytesPerSector), buf); err != nil {
		return nil, kerr.Wrap(err, "fat.table", "reading file allocation table")
	}

	t := &Table{format: br.Format}
	switch br.Format {
	case Format12:
		count := len(buf) * 2 / 3
		t.entries = make([]uint32, count)
		for i := 0; i < count; i++ {
			t.entries[i] = uint32(readFAT12Entry(buf, i))
		}
	case Format16:
		count := len(buf) / 2
		t.entries = make([]uint32, count)
		for i := 0; i < count; i++ {
			t.entries[i] = uint32(types.U16LE(buf[i*2 : i*2+2]))
		}
	case Format32:
		count := len(buf) / 4
		t.entries = make([]uint32, count)
		for i := 0; i < count; i++ {
			t.entries[i] = types.U32LE(buf[i*4:i*4+4]) & 0x0FFFFFFF
		}
	}
	return t, nil
}

func readFAT12Entry(buf []byte, index int) uint16 {
	offset := index + index/2
	if offset+1 >= len(buf) {
		return 0
	}
	packed := types.U16LE(buf[offset : offset+2])
	if index%2 == 0 {
		return packed & 0x0FFF
	}
	return packed >> 4
}

// isEndOfChain reports whether v marks the end of a cluster chain for
// t's format.
func (t *Table) isEndOfChain(v uint32) bool {
	switch t.format {
	case Format12:
		return v >= 0x0FF8
	case Format16:
		return v >= 0xFFF8
	default:
		return v >= 0x0FFFFFF8
	}
}

// Chain returns the ordered list of cluster numbers starting at
// start, stopping at the end-of-chain marker. A cycle (a cluster
// revisited) is treated as corruption rather than looping forever.
func (t *Table) Chain(start uint32) ([]uint32, error) {
	var chain []uint32
	seen := make(map[uint32]bool)
	cluster := start
	for cluster >= 2 && int(cluster) < len(t.entries) {
		if seen[cluster] {
			return nil, kerr.New(kerr.KindCorruption, "fat.table", "cluster chain cycle detected")
		}
		seen[cluster] = true
		chain = append(chain, cluster)
		next := t.entries[cluster]
		if t.isEndOfChain(next) || next == clusterFree {
			break
		}
		cluster = next
	}
	return chain, nil
}
