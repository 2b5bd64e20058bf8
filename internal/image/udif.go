package image

import (
	"sort"

	"howett.net/plist"

	"github.com/keramics/keramics/internal/codec"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	udifFooterSize     = 512
	udifSectorSize     = 512
	udifMishHeaderSize = 204
	udifBlockEntrySize = 40

	udifEntryZeroFill   = 0x00000000
	udifEntryRaw        = 0x00000001
	udifEntryIgnore     = 0x00000002
	udifEntryComment    = 0x7ffffffe
	udifEntryTerminator = 0xffffffff
	udifEntryADC        = 0x80000004
	udifEntryZlib       = 0x80000005
	udifEntryBzip2      = 0x80000006
	udifEntryLZFSE      = 0x80000007
)

type udifBlockEntry struct {
	entryType       uint32
	startSector     int64
	numberOfSectors int64
	dataOffset      int64
	dataSize        int64
}

// UDIF is an opened Universal Disk Image Format ("koly"-footed DMG)
// image: a flat list of block-table entries, one per compressed or
// raw run of sectors, recovered from every "blkx" resource in the
// trailing property list.
type UDIF struct {
	media fsio.DataStream

	MediaSize      int64
	BytesPerSector int64

	entries []udifBlockEntry

	cachedIndex int
	cachedData  []byte
}

func (u *UDIF) Size() int64 { return u.MediaSize }

// CompressionMethodName reports the compression method of the image's
// first compressed block entry, mirroring the single method a koly
// footer's own fields never actually state (UDIF tracks compression
// per block-table entry, not per image). Images without a compressed
// entry — raw or zero-fill only — report "Uncompressed".
func (u *UDIF) CompressionMethodName() string {
	for _, e := range u.entries {
		switch e.entryType {
		case udifEntryADC:
			return "ADC"
		case udifEntryZlib:
			return "zlib"
		case udifEntryBzip2:
			return "bzip2"
		case udifEntryLZFSE:
			return "LZFSE/LZVN"
		}
	}
	return "Uncompressed"
}

type udifPlistRoot struct {
	ResourceFork struct {
		Blkx []struct {
			Data []byte `plist:"Data"`
		} `plist:"blkx"`
	} `plist:"resource-fork"`
}

// OpenUDIF parses the trailing 512-byte "koly" footer, decodes the
// property list it points at, and walks each "blkx" resource's binary
// "mish" block table into a flat, sector-ordered entry list.
func OpenUDIF(media fsio.DataStream) (*UDIF, error) {
	footerOffset := media.Size() - udifFooterSize
	if footerOffset < 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.udif", "file too small for a koly footer")
	}
	footer := make([]byte, udifFooterSize)
	if err := fsio.ReadExactAt(media, footerOffset, footer); err != nil {
		return nil, kerr.Wrap(err, "image.udif", "reading koly footer")
	}
	if string(footer[0:4]) != "koly" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.udif", "bad UDIF footer signature")
	}
	dataForkOffset := int64(types.U64BE(footer[24:32]))
	xmlOffset := int64(types.U64BE(footer[216:224]))
	xmlLength := int64(types.U64BE(footer[224:232]))
	sectorCount := int64(types.U64BE(footer[492:500]))

	u := &UDIF{media: media, BytesPerSector: udifSectorSize, MediaSize: sectorCount * udifSectorSize, cachedIndex: -1}

	xml := make([]byte, xmlLength)
	if err := fsio.ReadExactAt(media, xmlOffset, xml); err != nil {
		return nil, kerr.Wrap(err, "image.udif", "reading property list")
	}
	var root udifPlistRoot
	if err := plist.Unmarshal(xml, &root); err != nil {
		return nil, kerr.Wrap(err, "image.udif", "decoding property list")
	}

	for _, blkx := range root.ResourceFork.Blkx {
		entries, err := parseUDIFMish(blkx.Data, dataForkOffset)
		if err != nil {
			return nil, err
		}
		u.entries = append(u.entries, entries...)
	}
	sort.Slice(u.entries, func(i, j int) bool { return u.entries[i].startSector < u.entries[j].startSector })

	return u, nil
}

func parseUDIFMish(data []byte, dataForkOffset int64) ([]udifBlockEntry, error) {
	if len(data) < udifMishHeaderSize {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.udif", "block table shorter than mish header")
	}
	if string(data[0:4]) != "mish" {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.udif", "bad mish signature")
	}
	firstSector := int64(types.U64BE(data[8:16]))
	numberOfChunks := types.U32BE(data[200:204])

	var entries []udifBlockEntry
	offset := udifMishHeaderSize
	for i := uint32(0); i < numberOfChunks; i++ {
		if offset+udifBlockEntrySize > len(data) {
			return nil, kerr.New(kerr.KindFormatInvalid, "image.udif", "block table entry past end of data")
		}
		raw := data[offset : offset+udifBlockEntrySize]
		entryType := types.U32BE(raw[0:4])
		if entryType == udifEntryTerminator {
			break
		}
		offset += udifBlockEntrySize
		if entryType == udifEntryComment {
			continue
		}
		entries = append(entries, udifBlockEntry{
			entryType:       entryType,
			startSector:     firstSector + int64(types.U64BE(raw[8:16])),
			numberOfSectors: int64(types.U64BE(raw[16:24])),
			dataOffset:      dataForkOffset + int64(types.U64BE(raw[24:32])),
			dataSize:        int64(types.U64BE(raw[32:40])),
		})
	}
	return entries, nil
}

func (u *UDIF) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(u.MediaSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		index := u.findEntry(pos / udifSectorSize)
		if index < 0 {
			window[total] = 0
			total++
			continue
		}
		e := u.entries[index]
		entryStart := e.startSector * udifSectorSize
		entryEnd := entryStart + e.numberOfSectors*udifSectorSize
		intra := pos - entryStart
		avail := entryEnd - pos
		want := window[total:]
		if int64(len(want)) > avail {
			want = want[:avail]
		}

		data, err := u.readEntry(index)
		if err != nil {
			return total, err
		}
		n := copy(want, data[intra:])
		total += n
		if n == 0 {
			break
		}
	}
	return total, nil
}

func (u *UDIF) ReadExactAt(offset int64, buf []byte) error { return fsio.ReadExactAt(u, offset, buf) }

// findEntry returns the index of the entry covering sector, or -1 if
// sector falls in a gap between entries (treated as a hole).
func (u *UDIF) findEntry(sector int64) int {
	i := sort.Search(len(u.entries), func(i int) bool {
		return u.entries[i].startSector+u.entries[i].numberOfSectors > sector
	})
	if i < len(u.entries) && u.entries[i].startSector <= sector {
		return i
	}
	return -1
}

func (u *UDIF) readEntry(index int) ([]byte, error) {
	if index == u.cachedIndex {
		return u.cachedData, nil
	}
	e := u.entries[index]
	plainSize := e.numberOfSectors * udifSectorSize

	var data []byte
	switch e.entryType {
	case udifEntryZeroFill, udifEntryIgnore:
		data = make([]byte, plainSize)
	case udifEntryRaw:
		data = make([]byte, e.dataSize)
		if err := fsio.ReadExactAt(u.media, e.dataOffset, data); err != nil {
			return nil, kerr.Wrap(err, "image.udif", "reading raw block")
		}
	case udifEntryADC:
		raw := make([]byte, e.dataSize)
		if err := fsio.ReadExactAt(u.media, e.dataOffset, raw); err != nil {
			return nil, kerr.Wrap(err, "image.udif", "reading ADC block")
		}
		decoded, err := codec.InflateADC(raw, int(plainSize))
		if err != nil {
			return nil, kerr.Wrap(err, "image.udif", "inflating ADC block")
		}
		data = decoded
	case udifEntryZlib:
		raw := make([]byte, e.dataSize)
		if err := fsio.ReadExactAt(u.media, e.dataOffset, raw); err != nil {
			return nil, kerr.Wrap(err, "image.udif", "reading zlib block")
		}
		decoded, err := codec.InflateZlib(raw)
		if err != nil {
			return nil, kerr.Wrap(err, "image.udif", "inflating zlib block")
		}
		data = decoded
	case udifEntryBzip2:
		raw := make([]byte, e.dataSize)
		if err := fsio.ReadExactAt(u.media, e.dataOffset, raw); err != nil {
			return nil, kerr.Wrap(err, "image.udif", "reading bzip2 block")
		}
		decoded, err := codec.InflateBzip2(raw)
		if err != nil {
			return nil, kerr.Wrap(err, "image.udif", "inflating bzip2 block")
		}
		data = decoded
	case udifEntryLZFSE:
		raw := make([]byte, e.dataSize)
		if err := fsio.ReadExactAt(u.media, e.dataOffset, raw); err != nil {
			return nil, kerr.Wrap(err, "image.udif", "reading LZFSE/LZVN block")
		}
		var decoded []byte
		var err error
		if len(raw) >= 3 && string(raw[0:3]) == "bvx" {
			decoded, err = codec.DecompressLZFSE(raw)
		} else {
			decoded, err = codec.DecompressLZVN(raw, int(plainSize))
		}
		if err != nil {
			return nil, kerr.Wrap(err, "image.udif", "decompressing LZFSE/LZVN block")
		}
		data = decoded
	default:
		return nil, kerr.New(kerr.KindUnsupported, "image.udif", "unsupported block table entry type")
	}

	if int64(len(data)) > plainSize {
		data = data[:plainSize]
	}
	u.cachedIndex = index
	u.cachedData = data
	return data, nil
}
