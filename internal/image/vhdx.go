package image

import (
	"strings"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	vhdxHeaderRegionSize = 64 * 1024
	vhdxHeader1Offset    = 64 * 1024
	vhdxHeader2Offset    = 128 * 1024
	vhdxRegionTable1Offset = 192 * 1024

	vhdxMetadataItemMinOffset = 65536
)

var (
	vhdxBATRegionUUID      = "2dc27766-f623-4200-9d64-115e9bfd4a08"
	vhdxMetadataRegionUUID = "8b7ca206-4790-4b9a-b8fe-575f050f886e"

	vhdxFileParametersItem       = "caa16737-fa36-4d43-b3b6-33f0aa44e76b"
	vhdxVirtualDiskSizeItem      = "2fa54224-cd1b-4876-b211-5dbed83bf4b8"
	vhdxVirtualDiskIdentifierItem = "beca12ab-b2e6-4523-93ef-c309e000c746"
	vhdxLogicalSectorSizeItem    = "8141bf1d-a96f-4709-ba47-f233a8faab5f"
	vhdxPhysicalSectorSizeItem   = "cda348c7-445d-4471-9cc9-e9885251c556"
	vhdxParentLocatorItem        = "a8d35f2d-b30b-454d-abf7-d3d84834ab0c"
)

// VHDX BAT entry states (the subset spec 4.8 defines; any other value
// is rejected as invalid).
const (
	vhdxStateNotPresent uint64 = 0
	vhdxStateUndefined  uint64 = 1
	vhdxStatePayload    uint64 = 6
	vhdxStatePartial    uint64 = 7
)

// ParentLocatorEntry is one (key, value) pair from a VHDX
// differencing disk's parent locator metadata item.
type ParentLocatorEntry struct {
	Key   string
	Value string
}

// VHDX is an opened Virtual Hard Disk v2 layer, not yet linked to its
// parent (if any).
type VHDX struct {
	media fsio.DataStream
	Parent fsio.DataStream

	BlockSize          uint64
	LogicalSectorSize  uint32
	PhysicalSectorSize uint32
	VirtualDiskSize    uint64
	VirtualDiskID      types.Uuid
	HasParent          bool
	LeaveBlocksAllocated bool
	ParentLocator      []ParentLocatorEntry

	chunkRatio uint64
	bat        []uint64
}

// Size implements fsio.DataStream.
func (v *VHDX) Size() int64 { return int64(v.VirtualDiskSize) }

// DiskTypeName returns a human-readable label for the layer's disk
// type. VHDX metadata never states this directly the way a VHD footer
// does; HasParent is the only signal this decoder tracks, so a disk
// with a parent locator is reported as Differential and any other
// disk as Dynamic (VHDX has no on-disk "fixed" encoding distinct from
// a parentless dynamic disk).
func (v *VHDX) DiskTypeName() string {
	if v.HasParent {
		return "Differential"
	}
	return "Dynamic"
}

// ParentName returns the most useful path string out of the parent
// locator, the same preference order the VFS resolver uses to find
// the sibling file on disk.
func (v *VHDX) ParentName() (string, bool) {
	for _, e := range v.ParentLocator {
		if strings.Contains(strings.ToLower(e.Key), "relative") {
			return e.Value, true
		}
	}
	for _, e := range v.ParentLocator {
		if strings.Contains(strings.ToLower(e.Key), "path") {
			return e.Value, true
		}
	}
	return "", false
}

// OpenVHDX parses the VHDX header/region/metadata/BAT structures and
// returns a layer ready to read. Parent resolution (setting v.Parent)
// is the caller's responsibility once HasParent/ParentLocator are
// inspected.
func OpenVHDX(media fsio.DataStream) (*VHDX, error) {
	h1, err1 := readVHDXHeader(media, vhdxHeader1Offset)
	h2, err2 := readVHDXHeader(media, vhdxHeader2Offset)
	if err1 != nil && err2 != nil {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "no valid image header found")
	}
	_ = pickNewerVHDXHeader(h1, err1, h2, err2)

	regionBuf := make([]byte, vhdxHeaderRegionSize)
	if err := fsio.ReadExactAt(media, vhdxRegionTable1Offset, regionBuf); err != nil {
		return nil, kerr.Wrap(err, "image.vhdx", "reading region table")
	}
	regions, err := parseVHDXRegionTable(regionBuf)
	if err != nil {
		return nil, err
	}

	batRegion, ok := regions[vhdxBATRegionUUID]
	if !ok {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "missing BAT region")
	}
	metaRegion, ok := regions[vhdxMetadataRegionUUID]
	if !ok {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "missing metadata region")
	}

	metaBuf := make([]byte, vhdxHeaderRegionSize)
	if err := fsio.ReadExactAt(media, int64(metaRegion.dataOffset), metaBuf); err != nil {
		return nil, kerr.Wrap(err, "image.vhdx", "reading metadata table")
	}
	items, err := parseVHDXMetadataTable(metaBuf)
	if err != nil {
		return nil, err
	}

	v := &VHDX{media: media}
	if err := v.bindMetadataItems(media, metaRegion.dataOffset, items); err != nil {
		return nil, err
	}
	if v.BlockSize == 0 || v.LogicalSectorSize == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "missing required metadata items")
	}

	v.chunkRatio = v.BlockSize / uint64(v.LogicalSectorSize)
	if err := v.readBAT(media, batRegion.dataOffset); err != nil {
		return nil, err
	}
	return v, nil
}

type vhdxHeader struct {
	sequence uint64
}

func readVHDXHeader(media fsio.DataStream, offset int64) (*vhdxHeader, error) {
	buf := make([]byte, vhdxHeaderRegionSize)
	if err := fsio.ReadExactAt(media, offset, buf); err != nil {
		return nil, kerr.Wrap(err, "image.vhdx", "reading image header block")
	}
	if string(buf[0:4]) != "head" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "bad image header signature")
	}
	stored := types.U32LE(buf[4:8])
	scratch := append([]byte(nil), buf...)
	scratch[4], scratch[5], scratch[6], scratch[7] = 0, 0, 0, 0
	calc := checksum.CRC32C(scratch)
	if stored != calc {
		return nil, kerr.New(kerr.KindChecksumMismatch, "image.vhdx", "image header checksum mismatch")
	}
	return &vhdxHeader{sequence: types.U64LE(buf[8:16])}, nil
}

func pickNewerVHDXHeader(h1 *vhdxHeader, err1 error, h2 *vhdxHeader, err2 error) *vhdxHeader {
	switch {
	case err1 == nil && err2 == nil:
		if h2.sequence > h1.sequence {
			return h2
		}
		return h1
	case err1 == nil:
		return h1
	default:
		return h2
	}
}

type vhdxRegion struct {
	dataOffset uint64
	dataSize   uint32
	required   bool
}

func parseVHDXRegionTable(buf []byte) (map[string]vhdxRegion, error) {
	if string(buf[0:4]) != "regi" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "bad region table signature")
	}
	storedChecksum := types.U32LE(buf[4:8])
	scratch := append([]byte(nil), buf...)
	scratch[4], scratch[5], scratch[6], scratch[7] = 0, 0, 0, 0
	calc := checksum.CRC32C(scratch)
	if storedChecksum != calc {
		return nil, kerr.New(kerr.KindChecksumMismatch, "image.vhdx", "region table checksum mismatch")
	}
	count := types.U32LE(buf[8:12])

	out := make(map[string]vhdxRegion, count)
	offset := 16
	for i := uint32(0); i < count; i++ {
		if offset+32 > len(buf) {
			return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "region table entry out of bounds")
		}
		id := types.UuidFromBytesLE([16]byte(buf[offset : offset+16]))
		dataOffset := types.U64LE(buf[offset+16 : offset+24])
		dataSize := types.U32LE(buf[offset+24 : offset+28])
		requiredFlag := types.U32LE(buf[offset+28 : offset+32])
		out[id.String()] = vhdxRegion{dataOffset: dataOffset, dataSize: dataSize, required: requiredFlag&1 != 0}
		offset += 32
	}
	return out, nil
}

type vhdxMetadataItem struct {
	offset uint32
	size   uint32
}

func parseVHDXMetadataTable(buf []byte) (map[string]vhdxMetadataItem, error) {
	if string(buf[0:8]) != "metadata" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "bad metadata table signature")
	}
	count := types.U16LE(buf[10:12])

	out := make(map[string]vhdxMetadataItem, count)
	offset := 32
	for i := uint16(0); i < count; i++ {
		if offset+32 > len(buf) {
			return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "metadata entry out of bounds")
		}
		id := types.UuidFromBytesLE([16]byte(buf[offset : offset+16]))
		itemOffset := types.U32LE(buf[offset+16 : offset+20])
		itemSize := types.U32LE(buf[offset+20 : offset+24])
		if itemOffset < vhdxMetadataItemMinOffset {
			return nil, kerr.New(kerr.KindFormatInvalid, "image.vhdx", "metadata item offset out of bounds")
		}
		out[id.String()] = vhdxMetadataItem{offset: itemOffset, size: itemSize}
		offset += 32
	}
	return out, nil
}

func (v *VHDX) bindMetadataItems(media fsio.DataStream, regionBase uint64, items map[string]vhdxMetadataItem) error {
	read := func(item vhdxMetadataItem) ([]byte, error) {
		buf := make([]byte, item.size)
		if err := fsio.ReadExactAt(media, int64(regionBase+uint64(item.offset)), buf); err != nil {
			return nil, kerr.Wrap(err, "image.vhdx", "reading metadata item")
		}
		return buf, nil
	}

	if item, ok := items[vhdxFileParametersItem]; ok {
		buf, err := read(item)
		if err != nil {
			return err
		}
		v.BlockSize = uint64(types.U32LE(buf[0:4]))
		flags := types.U32LE(buf[4:8])
		v.LeaveBlocksAllocated = flags&0x01 != 0
		v.HasParent = flags&0x02 != 0
	}
	if item, ok := items[vhdxVirtualDiskSizeItem]; ok {
		buf, err := read(item)
		if err != nil {
			return err
		}
		v.VirtualDiskSize = types.U64LE(buf[0:8])
	}
	if item, ok := items[vhdxLogicalSectorSizeItem]; ok {
		buf, err := read(item)
		if err != nil {
			return err
		}
		v.LogicalSectorSize = types.U32LE(buf[0:4])
	}
	if item, ok := items[vhdxPhysicalSectorSizeItem]; ok {
		buf, err := read(item)
		if err != nil {
			return err
		}
		v.PhysicalSectorSize = types.U32LE(buf[0:4])
	}
	if item, ok := items[vhdxVirtualDiskIdentifierItem]; ok {
		buf, err := read(item)
		if err != nil {
			return err
		}
		v.VirtualDiskID = types.UuidFromBytesLE([16]byte(buf[0:16]))
	}
	if v.HasParent {
		if item, ok := items[vhdxParentLocatorItem]; ok {
			buf, err := read(item)
			if err != nil {
				return err
			}
			v.ParentLocator = parseVHDXParentLocator(buf)
		}
	}
	return nil
}

func parseVHDXParentLocator(buf []byte) []ParentLocatorEntry {
	if len(buf) < 20 {
		return nil
	}
	count := types.U16LE(buf[18:20])
	var out []ParentLocatorEntry
	offset := 20
	for i := uint16(0); i < count && offset+8 <= len(buf); i++ {
		keyOffset := types.U16LE(buf[offset : offset+2])
		valueOffset := types.U16LE(buf[offset+2 : offset+4])
		keyLen := types.U16LE(buf[offset+4 : offset+6])
		valueLen := types.U16LE(buf[offset+6 : offset+8])
		offset += 8

		key := decodeUTF16LEField(buf, int(keyOffset), int(keyLen))
		value := decodeUTF16LEField(buf, int(valueOffset), int(valueLen))
		out = append(out, ParentLocatorEntry{Key: key, Value: value})
	}
	return out
}

func decodeUTF16LEField(buf []byte, offset, byteLen int) string {
	if offset < 0 || offset+byteLen > len(buf) {
		return ""
	}
	return types.NewUtf16String(buf[offset : offset+byteLen]).ToString()
}

// readBAT reads the full Block Allocation Table: one payload entry
// per data block, interleaved with a sector-bitmap entry after every
// chunkRatio payload entries.
func (v *VHDX) readBAT(media fsio.DataStream, batOffset uint64) error {
	dataBlocks := (uint64(v.VirtualDiskSize) + v.BlockSize - 1) / v.BlockSize
	chunks := (dataBlocks + v.chunkRatio - 1) / v.chunkRatio
	// Each chunk reserves a full chunkRatio run of payload slots plus
	// one trailing sector-bitmap slot, even when its last group of
	// data blocks doesn't fill the chunk — payloadEntryIndex/
	// bitmapEntryIndex below assume this fixed stride.
	totalEntries := chunks * (v.chunkRatio + 1)

	buf := make([]byte, totalEntries*8)
	if err := fsio.ReadExactAt(media, int64(batOffset), buf); err != nil {
		return kerr.Wrap(err, "image.vhdx", "reading block allocation table")
	}
	v.bat = make([]uint64, totalEntries)
	for i := range v.bat {
		v.bat[i] = types.U64LE(buf[i*8 : i*8+8])
	}
	return nil
}

func (v *VHDX) payloadEntryIndex(blockIndex uint64) uint64 {
	chunk := blockIndex / v.chunkRatio
	return chunk*(v.chunkRatio+1) + blockIndex%v.chunkRatio
}

func (v *VHDX) bitmapEntryIndex(blockIndex uint64) uint64 {
	chunk := blockIndex / v.chunkRatio
	return chunk*(v.chunkRatio+1) + v.chunkRatio
}

const vhdxFileOffsetUnit = 1024 * 1024

func vhdxEntryState(entry uint64) uint64    { return entry & 0x7 }
func vhdxEntryFileOffset(entry uint64) int64 { return int64(entry>>20) * vhdxFileOffsetUnit }

func (v *VHDX) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(int64(v.VirtualDiskSize), offset, buf)
	if window == nil {
		return 0, nil
	}
	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		blockIndex := uint64(pos) / v.BlockSize
		intra := int64(pos) % int64(v.BlockSize)
		n, err := v.readWithinBlock(blockIndex, intra, window[total:])
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

func (v *VHDX) ReadExactAt(offset int64, buf []byte) error { return fsio.ReadExactAt(v, offset, buf) }

// readWithinBlock services a read that does not cross a block
// boundary, dispatching on the payload BAT entry's state.
func (v *VHDX) readWithinBlock(blockIndex uint64, intra int64, buf []byte) (int, error) {
	avail := int64(v.BlockSize) - intra
	want := buf
	if int64(len(want)) > avail {
		want = want[:avail]
	}

	entry := v.bat[v.payloadEntryIndex(blockIndex)]
	state := vhdxEntryState(entry)
	fileOffset := vhdxEntryFileOffset(entry)
	absOffset := int64(blockIndex)*int64(v.BlockSize) + intra

	switch state {
	case vhdxStatePayload:
		return v.media.ReadAt(fileOffset+intra, want)
	case vhdxStatePartial:
		return v.readPartialBlock(blockIndex, intra, fileOffset, absOffset, want)
	case vhdxStateNotPresent, vhdxStateUndefined:
		return v.readFromParentOrZero(absOffset, want)
	default:
		return 0, kerr.New(kerr.KindCorruption, "image.vhdx", "invalid BAT entry state")
	}
}

func (v *VHDX) readPartialBlock(blockIndex uint64, intra, fileOffset, absOffset int64, buf []byte) (int, error) {
	bitmapEntry := v.bat[v.bitmapEntryIndex(blockIndex)]
	bitmapOffset := vhdxEntryFileOffset(bitmapEntry)

	sectorSize := int64(v.LogicalSectorSize)
	sectorIndex := intra / sectorSize
	sectorByte := sectorIndex / 8
	sectorBit := uint(sectorIndex % 8)

	bitmapByte := make([]byte, 1)
	if err := fsio.ReadExactAt(v.media, bitmapOffset+sectorByte, bitmapByte); err != nil {
		return 0, kerr.Wrap(err, "image.vhdx", "reading sector bitmap")
	}
	set := bitmapByte[0]&(1<<sectorBit) != 0

	sectorRemaining := sectorSize - intra%sectorSize
	want := buf
	if int64(len(want)) > sectorRemaining {
		want = want[:sectorRemaining]
	}
	if set {
		return v.media.ReadAt(fileOffset+intra, want)
	}
	return v.readFromParentOrZero(absOffset, want)
}

func (v *VHDX) readFromParentOrZero(absOffset int64, buf []byte) (int, error) {
	if v.Parent != nil {
		return v.Parent.ReadAt(absOffset, buf)
	}
	for i := range buf {
		buf[i] = 0
	}
	return len(buf), nil
}
