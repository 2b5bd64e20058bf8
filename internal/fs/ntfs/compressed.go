package ntfs

import (
	"github.com/keramics/keramics/internal/codec"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
)

const defaultCompressionUnitClusters = 16

// compressedDataStream decodes a $DATA attribute whose runs are
// organised into fixed-size compression units: within a unit, a
// trailing sparse run marks the unit as LZNT1-compressed; a unit with
// no sparse run is stored uncompressed.
type compressedDataStream struct {
	media       fsio.DataStream
	clusterSize int64
	unitClusters int64
	runs        []run
	size        int64

	cachedUnit  int64
	cachedBytes []byte
}

func newCompressedDataStream(media fsio.DataStream, clusterSize int64, a *Attribute) *compressedDataStream {
	return &compressedDataStream{
		media:        media,
		clusterSize:  clusterSize,
		unitClusters: defaultCompressionUnitClusters,
		runs:         a.Runs,
		size:         a.LogicalSize,
		cachedUnit:   -1,
	}
}

func (c *compressedDataStream) Size() int64 { return c.size }

func (c *compressedDataStream) ReadAt(offset int64, buf []byte) (int, error) {
	if offset >= c.size || offset < 0 {
		return 0, nil
	}
	want := len(buf)
	if int64(want) > c.size-offset {
		want = int(c.size - offset)
	}
	unitSize := c.unitClusters * c.clusterSize
	total := 0
	for total < want {
		pos := offset + int64(total)
		unit := pos / unitSize
		unitBytes, err := c.readUnit(unit)
		if err != nil {
			return total, err
		}
		within := int(pos % unitSize)
		n := copy(buf[total:want], unitBytes[within:])
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (c *compressedDataStream) ReadExactAt(offset int64, buf []byte) error {
	return fsio.ReadExactAt(c, offset, buf)
}

// readUnit materialises one compression unit's decompressed bytes,
// caching the most recently decoded unit.
func (c *compressedDataStream) readUnit(unit int64) ([]byte, error) {
	if unit == c.cachedUnit {
		return c.cachedUnit1(), nil
	}
	unitSize := c.unitClusters * c.clusterSize
	runsInUnit, hasSparse := runsForUnit(c.runs, unit, c.unitClusters)

	if !hasSparse {
		buf := make([]byte, unitSize)
		if err := c.readPhysical(runsInUnit, buf); err != nil {
			return nil, err
		}
		c.cachedUnit = unit
		c.cachedBytes = buf
		return buf, nil
	}

	compressed := make([]byte, 0, unitSize)
	for _, r := range runsInUnit {
		if r.startCluster < 0 {
			continue // sparse trailer carries no compressed bytes
		}
		chunk := make([]byte, r.lengthClusters*c.clusterSize)
		if err := fsio.ReadExactAt(c.media, r.startCluster*c.clusterSize, chunk); err != nil {
			return nil, kerr.Wrap(err, "ntfs.compressed", "reading compressed unit")
		}
		compressed = append(compressed, chunk...)
	}
	decoded, err := codec.DecompressLZNT1(compressed)
	if err != nil {
		return nil, kerr.Wrap(err, "ntfs.compressed", "LZNT1 decode failed")
	}
	if int64(len(decoded)) < unitSize {
		padded := make([]byte, unitSize)
		copy(padded, decoded)
		decoded = padded
	}
	c.cachedUnit = unit
	c.cachedBytes = decoded[:unitSize]
	return c.cachedBytes, nil
}

func (c *compressedDataStream) cachedUnit1() []byte { return c.cachedBytes }

func (c *compressedDataStream) readPhysical(runs []run, buf []byte) error {
	offset := int64(0)
	for _, r := range runs {
		length := r.lengthClusters * c.clusterSize
		if r.startCluster < 0 {
			offset += length
			continue
		}
		if err := fsio.ReadExactAt(c.media, r.startCluster*c.clusterSize, buf[offset:offset+length]); err != nil {
			return kerr.Wrap(err, "ntfs.compressed", "reading physical unit run")
		}
		offset += length
	}
	return nil
}

// runsForUnit returns the subset of runs covering the given
// compression-unit index, plus whether any of them is sparse (the
// unit-is-compressed signal).
func runsForUnit(runs []run, unit, unitClusters int64) ([]run, bool) {
	unitStart := unit * unitClusters
	unitEnd := unitStart + unitClusters
	var out []run
	hasSparse := false
	cluster := int64(0)
	for _, r := range runs {
		runStart := cluster
		runEnd := cluster + r.lengthClusters
		cluster = runEnd
		if runEnd <= unitStart || runStart >= unitEnd {
			continue
		}
		trimmedLen := r.lengthClusters
		if runStart < unitStart {
			trimmedLen -= unitStart - runStart
		}
		if runEnd > unitEnd {
			trimmedLen -= runEnd - unitEnd
		}
		trimmed := run{lengthClusters: trimmedLen, startCluster: r.startCluster}
		if r.startCluster >= 0 && runStart < unitStart {
			trimmed.startCluster += unitStart - runStart
		}
		out = append(out, trimmed)
		if r.startCluster < 0 {
			hasSparse = true
		}
	}
	return out, hasSparse
}
