package image

import (
	"strings"

	"github.com/keramics/keramics/internal/checksum"
	"github.com/keramics/keramics/internal/codec"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	ewfFileHeaderSize        = 13
	ewfSectionDescriptorSize = 76
	ewfChunkTrailerSize      = 4
)

type ewfChunk struct {
	segment    int
	offset     int64
	length     int64
	compressed bool
}

// EWF is an opened Expert Witness Compression Format (E01) image,
// possibly spanning multiple numbered segment files sharing a base
// name (segments[0] is the first).
type EWF struct {
	segments []fsio.DataStream

	MediaSize       int64
	sectorSize      int64
	chunkSize       int64
	sectorsPerChunk int64

	chunks     []ewfChunk
	badSectors map[int64]bool

	cachedChunkIndex int64
	cachedChunkData  []byte

	acquisitionHeader  *Acquisition
	acquisitionHeader2 *Acquisition
	acquisitionMD5     []byte
}

func (e *EWF) Size() int64 { return e.MediaSize }

// SectorSize is the bytes-per-sector field from the volume/disk
// section.
func (e *EWF) SectorSize() int64 { return e.sectorSize }

// ChunkSize is the compression unit size in bytes
// (sectorsPerChunk * sectorSize).
func (e *EWF) ChunkSize() int64 { return e.chunkSize }

// SegmentCount is the number of segment files making up this image.
func (e *EWF) SegmentCount() int { return len(e.segments) }

// OpenEWF reads the section chain of every segment file in order,
// building a flat list of chunk references and a volume-geometry
// summary. segments must be given in ascending segment-number order.
func OpenEWF(segments []fsio.DataStream) (*EWF, error) {
	if len(segments) == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.ewf", "no segment files given")
	}
	e := &EWF{segments: segments, badSectors: make(map[int64]bool), cachedChunkIndex: -1}

	for segIndex, media := range segments {
		if err := e.readSegment(segIndex, media); err != nil {
			return nil, err
		}
	}
	if e.chunkSize == 0 {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.ewf", "no volume section found")
	}
	return e, nil
}

func (e *EWF) readSegment(segIndex int, media fsio.DataStream) error {
	header := make([]byte, ewfFileHeaderSize)
	if err := fsio.ReadExactAt(media, 0, header); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading segment file header")
	}
	if string(header[0:8]) != "\x45\x56\x46\x09\x0d\x0a\xff\x00" {
		return kerr.New(kerr.KindFormatInvalid, "image.ewf", "bad EWF segment signature")
	}
	if header[8] != 1 {
		return kerr.New(kerr.KindFormatInvalid, "image.ewf", "bad EWF start-of-fields byte")
	}

	var pendingSectorsEnd int64
	offset := int64(ewfFileHeaderSize)
	seen := map[int64]bool{}
	for {
		if seen[offset] {
			return kerr.New(kerr.KindFormatInvalid, "image.ewf", "section chain cycle detected")
		}
		seen[offset] = true

		descriptor := make([]byte, ewfSectionDescriptorSize)
		if err := fsio.ReadExactAt(media, offset, descriptor); err != nil {
			return kerr.Wrap(err, "image.ewf", "reading section descriptor")
		}
		sectionType := strings.TrimRight(string(descriptor[0:16]), "\x00")
		next := int64(types.U64LE(descriptor[16:24]))
		size := int64(types.U64LE(descriptor[24:32]))
		storedChecksum := types.U32LE(descriptor[72:76])
		if calc := checksum.Adler32(descriptor[0:72]); calc != storedChecksum {
			return kerr.New(kerr.KindChecksumMismatch, "image.ewf", "section descriptor checksum mismatch: "+sectionType)
		}

		dataStart := offset + ewfSectionDescriptorSize
		dataEnd := offset + size

		switch sectionType {
		case "volume", "disk":
			if err := e.readVolumeSection(media, dataStart); err != nil {
				return err
			}
		case "sectors":
			pendingSectorsEnd = dataEnd
		case "table":
			if err := e.readTableSection(segIndex, media, dataStart, pendingSectorsEnd, dataEnd); err != nil {
				return err
			}
		case "table2":
			// table2 is libewf's redundant copy of the preceding table
			// section's chunk offsets, kept for error recovery; the
			// chunk list is already built from table, so table2 is not
			// parsed again here (doing so would double e.chunks).
		case "error2":
			if err := e.readError2Section(media, dataStart, dataEnd); err != nil {
				return err
			}
		case "header":
			if err := e.readHeaderSection(media, dataStart, dataEnd, false); err != nil {
				return err
			}
		case "header2":
			if err := e.readHeaderSection(media, dataStart, dataEnd, true); err != nil {
				return err
			}
		case "hash":
			if err := e.readHashSection(media, dataStart); err != nil {
				return err
			}
		case "done":
			return nil
		}

		if next == 0 || next == offset {
			return nil
		}
		offset = next
	}
}

// readVolumeSection parses the media-geometry fields common to EWF
// "volume"/"disk" sections: a one-byte media type, a chunk count, the
// sectors-per-chunk and bytes-per-sector that together define chunk
// size, and the total sector count.
func (e *EWF) readVolumeSection(media fsio.DataStream, offset int64) error {
	buf := make([]byte, 24)
	if err := fsio.ReadExactAt(media, offset, buf); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading volume section")
	}
	e.sectorsPerChunk = int64(types.U32LE(buf[8:12]))
	e.sectorSize = int64(types.U32LE(buf[12:16]))
	numberOfSectors := int64(types.U64LE(buf[16:24]))
	e.chunkSize = e.sectorsPerChunk * e.sectorSize
	e.MediaSize = numberOfSectors * e.sectorSize
	return nil
}

func (e *EWF) readTableSection(segIndex int, media fsio.DataStream, offset, pendingSectorsEnd, sectionEnd int64) error {
	header := make([]byte, 24)
	if err := fsio.ReadExactAt(media, offset, header); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading table header")
	}
	storedChecksum := types.U32LE(header[20:24])
	if calc := checksum.Adler32(header[0:20]); calc != storedChecksum {
		return kerr.New(kerr.KindChecksumMismatch, "image.ewf", "table header checksum mismatch")
	}
	numberOfEntries := types.U32LE(header[0:4])
	baseOffset := int64(types.U64LE(header[8:16]))

	entriesBuf := make([]byte, int64(numberOfEntries)*4)
	if err := fsio.ReadExactAt(media, offset+24, entriesBuf); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading table entries")
	}

	lastChunkEnd := pendingSectorsEnd
	if lastChunkEnd == 0 {
		lastChunkEnd = sectionEnd
	}

	absOffsets := make([]int64, numberOfEntries)
	compressed := make([]bool, numberOfEntries)
	for i := uint32(0); i < numberOfEntries; i++ {
		raw := types.U32LE(entriesBuf[i*4 : i*4+4])
		compressed[i] = raw&0x80000000 != 0
		absOffsets[i] = baseOffset + int64(raw&0x7fffffff)
	}
	for i := uint32(0); i < numberOfEntries; i++ {
		var end int64
		if i+1 < numberOfEntries {
			end = absOffsets[i+1]
		} else {
			end = lastChunkEnd
		}
		e.chunks = append(e.chunks, ewfChunk{
			segment:    segIndex,
			offset:     absOffsets[i],
			length:     end - absOffsets[i],
			compressed: compressed[i],
		})
	}
	return nil
}

// readError2Section catalogues known-bad sector ranges: a 4-byte
// entry count followed by (first_sector, number_of_sectors) pairs.
func (e *EWF) readError2Section(media fsio.DataStream, offset, sectionEnd int64) error {
	header := make([]byte, 8)
	if err := fsio.ReadExactAt(media, offset, header); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading error2 section header")
	}
	count := types.U32LE(header[0:4])

	entries := make([]byte, int64(count)*8)
	if err := fsio.ReadExactAt(media, offset+8, entries); err != nil {
		return kerr.Wrap(err, "image.ewf", "reading error2 entries")
	}
	for i := uint32(0); i < count; i++ {
		first := int64(types.U32LE(entries[i*8 : i*8+4]))
		n := int64(types.U32LE(entries[i*8+4 : i*8+8]))
		for s := first; s < first+n; s++ {
			e.badSectors[s] = true
		}
	}
	return nil
}

func (e *EWF) ReadAt(offset int64, buf []byte) (int, error) {
	window := clampRead(e.MediaSize, offset, buf)
	if window == nil {
		return 0, nil
	}
	total := 0
	for total < len(window) {
		pos := offset + int64(total)
		chunkIndex := pos / e.chunkSize
		intra := pos % e.chunkSize
		data, err := e.readChunk(chunkIndex)
		if err != nil {
			return total, err
		}
		avail := int64(len(data)) - intra
		if avail <= 0 {
			break
		}
		n := copy(window[total:], data[intra:])
		total += n
		if int64(n) < avail {
			break
		}
	}
	return total, nil
}

func (e *EWF) ReadExactAt(offset int64, buf []byte) error { return fsio.ReadExactAt(e, offset, buf) }

// readChunk decodes chunk index into plain bytes, zeroing any sector
// ranges catalogued bad by an "error2" section, and caches the most
// recently decoded chunk (reads are overwhelmingly sequential).
func (e *EWF) readChunk(index int64) ([]byte, error) {
	if index == e.cachedChunkIndex {
		return e.cachedChunkData, nil
	}
	if index < 0 || index >= int64(len(e.chunks)) {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.ewf", "chunk index out of range")
	}
	c := e.chunks[index]
	raw := make([]byte, c.length)
	if err := fsio.ReadExactAt(e.segments[c.segment], c.offset, raw); err != nil {
		return nil, kerr.Wrap(err, "image.ewf", "reading chunk data")
	}
	if len(raw) < ewfChunkTrailerSize {
		return nil, kerr.New(kerr.KindFormatInvalid, "image.ewf", "chunk shorter than its Adler-32 trailer")
	}
	payload := raw[:len(raw)-ewfChunkTrailerSize]
	trailer := types.U32LE(raw[len(raw)-ewfChunkTrailerSize:])
	if calc := checksum.Adler32(payload); calc != trailer {
		return nil, kerr.New(kerr.KindChecksumMismatch, "image.ewf", "chunk checksum mismatch")
	}

	var data []byte
	if c.compressed {
		decoded, err := codec.InflateRaw(payload)
		if err != nil {
			return nil, kerr.Wrap(err, "image.ewf", "inflating chunk")
		}
		data = decoded
	} else {
		data = payload
	}
	if int64(len(data)) > e.chunkSize {
		data = data[:e.chunkSize]
	}

	if len(e.badSectors) > 0 {
		data = append([]byte(nil), data...)
		firstSector := index * e.sectorsPerChunk
		for i := int64(0); i < e.sectorsPerChunk; i++ {
			if e.badSectors[firstSector+i] {
				start := i * e.sectorSize
				end := start + e.sectorSize
				if end > int64(len(data)) {
					end = int64(len(data))
				}
				for b := start; b < end; b++ {
					data[b] = 0
				}
			}
		}
	}

	e.cachedChunkIndex = index
	e.cachedChunkData = data
	return data, nil
}
