package ntfs

import (
	"strings"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const collationFilename = 1

// IndexEntry is one resolved directory entry: the referenced MFT
// entry, its long (Win32) name, and — when present — a shadow DOS
// 8.3 name.
type IndexEntry struct {
	MFTRef    uint64
	Name      string
	DOSName   string
	IsSubnode bool
	SubnodeVCN uint64
}

// ReadDirectory resolves dirEntry's $INDEX_ROOT and (if present)
// $INDEX_ALLOCATION attributes into a flat list of file-name entries.
// The comparator is case-folded UCS-2, approximated here with
// strings.ToUpper over the decoded UTF-16 text.
func ReadDirectory(fs *FileSystem, attrs []Attribute) ([]IndexEntry, error) {
	var root *Attribute
	var alloc *Attribute
	for i := range attrs {
		switch attrs[i].Type {
		case AttrIndexRoot:
			if attrs[i].Name == "$I30" || attrs[i].Name == "" {
				root = &attrs[i]
			}
		case AttrIndexAllocation:
			if attrs[i].Name == "$I30" || attrs[i].Name == "" {
				alloc = &attrs[i]
			}
		}
	}
	if root == nil {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.index", "missing $INDEX_ROOT")
	}

	buf := root.Data
	if len(buf) < 16 {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.index", "truncated $INDEX_ROOT")
	}
	collation := types.U32LE(buf[0:4])
	if collation != collationFilename {
		return nil, kerr.New(kerr.KindUnsupported, "ntfs.index", "unsupported collation type")
	}
	indexBlockSize := types.U32LE(buf[8:12])

	nodeHeaderOffset := 16
	entries, subnodeVCNs, err := parseIndexNode(buf[nodeHeaderOffset:])
	if err != nil {
		return nil, err
	}

	if len(subnodeVCNs) > 0 {
		if alloc == nil {
			return nil, kerr.New(kerr.KindCorruption, "ntfs.index", "index has subnodes but no $INDEX_ALLOCATION")
		}
		allocStream, err := alloc.DataStream(fs.media, fs.boot.ClusterSize)
		if err != nil {
			return nil, err
		}
		for _, vcn := range subnodeVCNs {
			sub, err := readIndexBlock(allocStream, vcn, int64(indexBlockSize), fs.boot.BytesPerSector)
			if err != nil {
				return nil, err
			}
			entries = append(entries, sub...)
		}
	}
	return entries, nil
}

// parseIndexNode parses the entries following an INDEX_HEADER, which
// start at the header's declared entries-offset (relative to the
// header, i.e. the byte right after the 16-byte root/node preamble).
func parseIndexNode(buf []byte) ([]IndexEntry, []uint64, error) {
	if len(buf) < 16 {
		return nil, nil, kerr.New(kerr.KindFormatInvalid, "ntfs.index", "truncated index node header")
	}
	entriesOffset := types.U32LE(buf[0:4])
	totalSize := types.U32LE(buf[4:8])
	if int(totalSize) > len(buf) {
		totalSize = uint32(len(buf))
	}

	var entries []IndexEntry
	var subnodes []uint64
	offset := int(entriesOffset)
	for offset+16 <= int(totalSize) {
		entryLen := types.U16LE(buf[offset+8 : offset+10])
		flags := types.U16LE(buf[offset+12 : offset+14])
		const flagSubnode = 0x0001
		const flagLast = 0x0002

		if flags&flagLast == 0 && offset+16+66 <= len(buf) {
			mftRef := types.U64LE(buf[offset:offset+8]) & 0x0000FFFFFFFFFFFF
			nameLen := int(buf[offset+16+64])
			nameStart := offset + 16 + 66
			namespace := buf[offset+16+65]
			if nameStart+nameLen*2 <= len(buf) {
				name := types.NewUtf16String(buf[nameStart : nameStart+nameLen*2]).ToString()
				e := IndexEntry{MFTRef: mftRef, Name: name}
				if namespace == 2 { // DOS namespace only
					e.DOSName = name
				}
				entries = append(entries, e)
			}
		}
		if flags&flagSubnode != 0 {
			vcnOffset := offset + int(entryLen) - 8
			if vcnOffset >= 0 && vcnOffset+8 <= len(buf) {
				vcn := types.U64LE(buf[vcnOffset : vcnOffset+8])
				subnodes = append(subnodes, vcn)
			}
		}
		if entryLen == 0 {
			break
		}
		offset += int(entryLen)
	}
	return entries, subnodes, nil
}

func readIndexBlock(allocStream fsio.DataStream, vcn uint64, indexBlockSize int64, sectorSize uint16) ([]IndexEntry, error) {
	buf := make([]byte, indexBlockSize)
	if err := fsio.ReadExactAt(allocStream, int64(vcn)*indexBlockSize, buf); err != nil {
		return nil, kerr.Wrap(err, "ntfs.index", "reading INDX block")
	}
	if string(buf[0:4]) != "INDX" {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs.index", "bad INDX signature")
	}
	fixupOffset := types.U16LE(buf[4:6])
	fixupCount := types.U16LE(buf[6:8])
	if err := applyFixups(buf, int(fixupOffset), int(fixupCount), int(sectorSize)); err != nil {
		return nil, err
	}
	entries, _, err := parseIndexNode(buf[24:])
	return entries, err
}

// findInDirectory does a case-insensitive linear scan of dir's
// entries for name (sufficient for the supported B-tree node sizes;
// a production index would binary-search the sorted node instead).
func findInDirectory(entries []IndexEntry, name string) (uint64, bool) {
	upper := strings.ToUpper(name)
	for _, e := range entries {
		if strings.ToUpper(e.Name) == upper || strings.ToUpper(e.DOSName) == upper {
			return e.MFTRef, true
		}
	}
	return 0, false
}
