package image

import (
	"github.com/keramics/keramics/internal/codec"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	qcowSignature = "QFI\xfb"

	qcowL2CompressedFlag = uint64(1) << 62
	qcowL2CopiedFlag     = uint64(1) << 63
	qcowOffsetMask       = uint64(0x00FFFFFFFFFFFE00)
)

// QCOW2 is an opened QEMU Copy-On-Write v2/v3 layer, big-endian
// throughout (the one storage-image format in this package that
// isn't little-endian).
type QCOW2 struct {
	media fsio.DataStream
	Parent fsio.DataStream

	Version           uint32
	ClusterBits       uint32
	clusterSize       int64
	MediaSize         int64
	CryptMethod       uint32
	BackingFileName   string

	l1Table []uint64
	l2Bits  uint32
}

func (q *QCOW2) Size() int64 { return q.MediaSize }

// EncryptionMethodName returns a human-readable label for CryptMethod
// (0 = none, 1 = AES-CBC 128-bit; QCOW2's only other defined value,
// LUKS, was added in a later spec revision this decoder does not
// parse the per-header LUKS fields for).
func (q *QCOW2) EncryptionMethodName() string {
	switch q.CryptMethod {
	case 0:
		return "None"
	case 1:
		return "AES-CBC 128-bit"
	case 2:
		return "Linux Unified Key Setup (LUKS)"
	default:
		return "Unknown"
	}
}

// OpenQCOW2 parses a QCOW2 file header, its L1 table, and (if any)
// its backing-file name. Parent resolution from BackingFileName is
// the caller's responsibility, same as VHDX's ParentLocator.
func OpenQCOW2(media fsio.DataStream) (*QCOW2, error) {
	header := make([]byte, 104)
	if err := fsio.ReadExactAt(media, 0, header); err != nil {
		return nil, kerr.Wrap(err, "image.qcow", "reading file header")
	}
	if string(header[0:4]) != qcowSignature {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.qcow", "bad QCOW2 signature")
	}

	q := &QCOW2{media: media}
	q.Version = types.U32BE(header[4:8])
	if q.Version < 2 {
		return nil, kerr.New(kerr.KindUnsupported, "image.qcow", "QCOW version 1 is not supported")
	}
	backingFileOffset := types.U64BE(header[8:16])
	backingFileSize := types.U32BE(header[16:20])
	q.ClusterBits = types.U32BE(header[20:24])
	q.clusterSize = int64(1) << q.ClusterBits
	q.MediaSize = int64(types.U64BE(header[24:32]))
	q.CryptMethod = types.U32BE(header[32:36])
	l1Size := types.U32BE(header[36:40])
	l1TableOffset := types.U64BE(header[40:48])

	q.l2Bits = q.ClusterBits - 3

	if backingFileSize > 0 {
		buf := make([]byte, backingFileSize)
		if err := fsio.ReadExactAt(media, int64(backingFileOffset), buf); err != nil {
			return nil, kerr.Wrap(err, "image.qcow", "reading backing file name")
		}
		q.BackingFileName = string(buf)
	}

	l1 := make([]byte, int64(l1Size)*8)
	if err := fsio.ReadExactAt(media, int64(l1TableOffset), l1); err != nil {
		return nil, kerr.Wrap(err, "image.qcow", "reading L1 table")
	}
	q.l1Table = make([]uint64, l1Size)
	for i := range q.l1Table {
		q.l1Table[i] = types.U64BE(l1[i*8 : i*8+8])
	}
	return q, nil
}

func (q *QCOW2) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(q.MediaSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		clusterIndex := uint64(pos) / uint64(q.clusterSize)
		intra := pos % q.clusterSize
		n, err := q.readWithinCluster(clusterIndex, intra, window[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

func (q *QCOW2) ReadExactAt(offset int64, buf []byte) error { return fsio.ReadExactAt(q, offset, buf) }

func (q *QCOW2) readWithinCluster(clusterIndex uint64, intra int64, buf []byte) (int, error) {
	avail := q.clusterSize - intra
	want := buf
	if int64(len(want)) > avail {
		want = want[:avail]
	}

	l2Index := clusterIndex & ((uint64(1) << q.l2Bits) - 1)
	l1Index := clusterIndex >> q.l2Bits
	if l1Index >= uint64(len(q.l1Table)) {
		return q.readFromParentOrZero(int64(clusterIndex)*q.clusterSize+intra, want)
	}

	l2TableOffset := q.l1Table[l1Index] & qcowOffsetMask
	if l2TableOffset == 0 {
		return q.readFromParentOrZero(int64(clusterIndex)*q.clusterSize+intra, want)
	}

	entryBuf := make([]byte, 8)
	if err := fsio.ReadExactAt(q.media, int64(l2TableOffset+l2Index*8), entryBuf); err != nil {
		return 0, kerr.Wrap(err, "image.qcow", "reading L2 table entry")
	}
	entry := types.U64BE(entryBuf)

	switch {
	case entry&qcowL2CompressedFlag != 0:
		return q.readCompressedCluster(entry, intra, want)
	case entry&qcowOffsetMask != 0:
		clusterOffset := int64(entry & qcowOffsetMask)
		return q.media.ReadAt(clusterOffset+intra, want)
	default:
		return q.readFromParentOrZero(int64(clusterIndex)*q.clusterSize+intra, want)
	}
}

// readCompressedCluster decodes a raw-deflate compressed cluster. The
// L2 entry splits its 62 usable bits at x = 62-(clusterBits-8): the
// low x bits are the host file offset of the compressed data (not
// cluster-aligned), the remaining bits count the extra 512-byte
// sectors the compressed payload may span.
func (q *QCOW2) readCompressedCluster(entry uint64, intra int64, buf []byte) (int, error) {
	x := uint(62) - (uint(q.ClusterBits) - 8)
	mask := (uint64(1) << x) - 1
	fileOffset := int64(entry & mask)
	sectorCount := (entry >> x) & ((uint64(1) << (62 - x)) - 1)

	compressedSize := int64(sectorCount+1) * 512
	compressed := make([]byte, compressedSize)
	n, err := q.media.ReadAt(fileOffset, compressed)
	if err != nil {
		return 0, kerr.Wrap(err, "image.qcow", "reading compressed cluster")
	}
	compressed = compressed[:n]

	decompressed, err := codec.InflateRaw(compressed)
	if err != nil {
		return 0, kerr.Wrap(err, "image.qcow", "inflating compressed cluster")
	}
	if int64(len(decompressed)) > q.clusterSize {
		decompressed = decompressed[:q.clusterSize]
	}
	if intra >= int64(len(decompressed)) {
		return 0, nil
	}
	return copy(buf, decompressed[intra:]), nil
}

func (q *QCOW2) readFromParentOrZero(absOffset int64, buf []byte) (int, error) {
	if q.Parent != nil {
		return q.Parent.ReadAt(absOffset, buf)
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}
