package ntfs

import (
	"strings"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// FileSystem is an opened NTFS volume, past UPCASE_LOADED.
type FileSystem struct {
	media     fsio.DataStream
	boot      *BootSector
	mft       fsio.DataStream // the full Master File Table as a byte stream
	upcase    []uint16        // nil if $UpCase could not be loaded (soft-fail)
	volumeName string
}

// Open drives the BOOT_READ -> MFT_BOOTSTRAP -> MFT_COMPLETE ->
// UPCASE_LOADED state machine and returns a READY volume.
func Open(media fsio.DataStream) (*FileSystem, error) {
	boot, err := ReadBootSector(media)
	if err != nil {
		return nil, err
	}

	// Entry 0 ($MFT itself) is located directly by its start cluster;
	// everything from entry 1 onward is read through the stream its
	// own $DATA attribute describes.
	bootstrap := fsio.NewWindowStream(media, int64(boot.MFTStartCluster)*boot.ClusterSize, boot.MFTEntrySize)
	entry0, err := ReadRawEntry(bootstrap, boot.MFTEntrySize, boot.BytesPerSector, 0)
	if err != nil {
		return nil, kerr.Wrap(err, "ntfs", "MFT bootstrap: reading entry 0 from raw media")
	}
	attrs0, err := ParseAttributes(entry0)
	if err != nil {
		return nil, err
	}
	dataAttr := findAttribute(attrs0, AttrData, "")
	if dataAttr == nil {
		return nil, kerr.New(kerr.KindFormatInvalid, "ntfs", "MFT entry 0 missing $DATA")
	}
	mftStream, err := dataAttr.DataStream(media, boot.ClusterSize)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{media: media, boot: boot, mft: mftStream}

	if volAttrs, err := fs.readAttributes(EntryVolume); err == nil {
		if vn := findAttribute(volAttrs, AttrVolumeName, ""); vn != nil {
			fs.volumeName = decodeUtf16Resident(vn.Data)
		}
	}

	if upAttrs, err := fs.readAttributes(EntryUpCase); err == nil {
		if up := findAttribute(upAttrs, AttrData, ""); up != nil {
			stream, err := up.DataStream(media, boot.ClusterSize)
			if err == nil {
				buf := make([]byte, stream.Size())
				if err := stream.ReadExactAt(0, buf); err == nil {
					fs.upcase = decodeUpcaseTable(buf)
				}
			}
		}
	}
	// A missing or unreadable $UpCase is a soft-fail: Open still
	// succeeds and fs.upcase stays nil.

	return fs, nil
}

func decodeUpcaseTable(buf []byte) []uint16 {
	table := make([]uint16, len(buf)/2)
	for i := range table {
		table[i] = uint16(buf[i*2]) | uint16(buf[i*2+1])<<8
	}
	return table
}

func decodeUtf16Resident(buf []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(buf); i += 2 {
		u := uint16(buf[i]) | uint16(buf[i+1])<<8
		if u == 0 {
			break
		}
		sb.WriteRune(rune(u))
	}
	return sb.String()
}

func findAttribute(attrs []Attribute, typ uint32, name string) *Attribute {
	for i := range attrs {
		if attrs[i].Type == typ && attrs[i].Name == name {
			return &attrs[i]
		}
	}
	return nil
}

// readAttributes reads and parses the attribute vector of entry
// index, chasing $ATTRIBUTE_LIST fragments into the returned set when
// present.
func (fs *FileSystem) readAttributes(index uint64) ([]Attribute, error) {
	entry, err := ReadRawEntry(fs.mft, fs.boot.MFTEntrySize, fs.boot.BytesPerSector, index)
	if err != nil {
		return nil, err
	}
	attrs, err := ParseAttributes(entry)
	if err != nil {
		return nil, err
	}

	list := findAttribute(attrs, AttrAttributeList, "")
	if list == nil {
		return attrs, nil
	}

	listStream, err := list.DataStream(fs.media, fs.boot.ClusterSize)
	if err != nil {
		return attrs, nil
	}
	raw := make([]byte, listStream.Size())
	if err := listStream.ReadExactAt(0, raw); err != nil {
		return attrs, nil
	}
	fragments := parseAttributeList(raw)
	for _, frag := range fragments {
		if frag.entryRef == index {
			continue // already covered by the base entry's own vector
		}
		fragEntry, err := ReadRawEntry(fs.mft, fs.boot.MFTEntrySize, fs.boot.BytesPerSector, frag.entryRef)
		if err != nil {
			continue
		}
		fragAttrs, err := ParseAttributes(fragEntry)
		if err != nil {
			continue
		}
		for i := range fragAttrs {
			if fragAttrs[i].Type == frag.attrType && fragAttrs[i].Name == frag.name {
				attrs = append(attrs, fragAttrs[i])
			}
		}
	}
	return attrs, nil
}

type attrListFragment struct {
	attrType uint32
	name     string
	entryRef uint64
}

// parseAttributeList decodes $ATTRIBUTE_LIST records: type(4),
// recordLen(2), nameLen(1), nameOffset(1), starting-VCN(8),
// MFT-reference(8), attribute-id(2), then the name itself.
func parseAttributeList(buf []byte) []attrListFragment {
	var out []attrListFragment
	offset := 0
	for offset+26 <= len(buf) {
		typ := uint32(buf[offset]) | uint32(buf[offset+1])<<8 | uint32(buf[offset+2])<<16 | uint32(buf[offset+3])<<24
		recLen := uint16(buf[offset+4]) | uint16(buf[offset+5])<<8
		nameLen := buf[offset+6]
		nameOffset := buf[offset+7]
		mftRef := uint64(0)
		for i := 0; i < 6; i++ {
			mftRef |= uint64(buf[offset+16+i]) << (8 * i)
		}
		var name string
		if nameLen > 0 {
			start := offset + int(nameOffset)
			name = decodeUtf16Resident(buf[start : start+int(nameLen)*2])
		}
		out = append(out, attrListFragment{attrType: typ, name: name, entryRef: mftRef})
		if recLen == 0 {
			break
		}
		offset += int(recLen)
	}
	return out
}

// Lookup resolves a backslash-separated path from the root directory
// (entry 5), returning the resolved MFT entry's attribute vector.
func (fs *FileSystem) Lookup(path string) (uint64, []Attribute, error) {
	current := uint64(EntryRoot)
	parts := splitPath(path)
	for i, name := range parts {
		attrs, err := fs.readAttributes(current)
		if err != nil {
			return 0, nil, err
		}
		entries, err := ReadDirectory(fs, attrs)
		if err != nil {
			return 0, nil, err
		}
		ref, ok := findInDirectory(entries, name)
		if !ok {
			return 0, nil, kerr.New(kerr.KindNotFound, "ntfs", "no such file or directory: "+name)
		}
		current = ref
		if i == len(parts)-1 {
			attrs, err := fs.readAttributes(current)
			return current, attrs, err
		}
	}
	attrs, err := fs.readAttributes(current)
	return current, attrs, err
}

// splitPath splits an NTFS path in NTFS's own convention: components
// separated by backslashes, e.g. `\Users\foo\NTUSER.DAT`.
func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, `\`) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// OpenFile resolves path and returns its unnamed $DATA stream,
// transparently decoding LZNT1 compression units when the attribute's
// compressed flag is set.
func (fs *FileSystem) OpenFile(path string) (fsio.DataStream, error) {
	_, attrs, err := fs.Lookup(path)
	if err != nil {
		return nil, err
	}
	data := findAttribute(attrs, AttrData, "")
	if data == nil {
		return nil, kerr.New(kerr.KindNotFound, "ntfs", "no unnamed $DATA attribute")
	}
	if !data.Resident && data.Compressed {
		return newCompressedDataStream(fs.media, fs.boot.ClusterSize, data), nil
	}
	return data.DataStream(fs.media, fs.boot.ClusterSize)
}

// BootSector returns the parsed boot sector fields.
func (fs *FileSystem) BootSector() *BootSector { return fs.boot }

// VolumeName returns the volume label decoded from MFT entry 3's
// $VOLUME_NAME attribute, or "" if unavailable.
func (fs *FileSystem) VolumeName() string { return fs.volumeName }

// UpcaseLoaded reports whether $UpCase was successfully read. Directory
// lookups do not consult the loaded table: findInDirectory compares
// names with strings.ToUpper whether or not it was read.
func (fs *FileSystem) UpcaseLoaded() bool { return fs.upcase != nil }
