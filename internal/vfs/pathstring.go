package vfs

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

var (
	reUUIDSegment  = regexp.MustCompile(`^([a-z]+)\{([0-9a-fA-F-]+)\}$`)
	reIndexSegment = regexp.MustCompile(`^([a-z]+)(\d+)$`)
)

// containerTagByName maps a path-syntax prefix to its Tag. "p" (MBR)
// and the image-layer prefixes never carry a UUID form; only apm and
// gpt do.
func containerTagByName(name string) (Tag, bool) {
	switch name {
	case "p":
		return TagMBR, true
	case "apm":
		return TagAPM, true
	case "gpt":
		return TagGPT, true
	case "ewf":
		return TagEWF, true
	case "qcow":
		return TagQCOW, true
	case "vhd":
		return TagVHD, true
	case "vhdx":
		return TagVHDX, true
	case "udif":
		return TagUDIF, true
	default:
		return TagOS, false
	}
}

// ParsePathString builds a VfsLocation from osPath (the platform-native
// root, opened as TagOS) and vfsPathStr, a slash-separated chain of
// volume/image-layer segments (per the path syntax: "/apm{uuid}" or
// "/apm<index>", "/p<index>", "/gpt{uuid}" or "/gpt<index>", "/ewf1",
// "/qcow<index>", "/vhd<index>", "/vhdx<index>", "/udif1") followed,
// optionally, by a file-system-relative path. The path syntax names no
// segment for the file system itself — which of ext/fat/ntfs is
// actually present is auto-detected the same way the scanner
// validates a candidate, by trying to open each in turn.
func ParsePathString(r *Resolver, osPath, vfsPathStr string) (*VfsLocation, error) {
	cur := &VfsLocation{Path: VfsPath{Tag: TagOS, OSPath: osPath}}
	trimmed := strings.TrimPrefix(vfsPathStr, "/")
	if trimmed == "" {
		return cur, nil
	}
	segments := strings.Split(trimmed, "/")

	i := 0
	for i < len(segments) {
		tag, index, identifier, ok, err := parseContainerSegment(segments[i])
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if tag == TagEWF {
			cur = &VfsLocation{Path: VfsPath{Tag: TagEWF, OSPath: osPath}, Parent: cur}
		} else {
			cur = &VfsLocation{Path: VfsPath{Tag: tag, Index: index, Identifier: identifier}, Parent: cur}
		}
		i++
	}
	if i == len(segments) {
		return cur, nil
	}
	return detectFileSystemLocation(r, cur, segments[i:])
}

func parseContainerSegment(seg string) (Tag, int, types.Uuid, bool, error) {
	if m := reUUIDSegment.FindStringSubmatch(seg); m != nil {
		tag, ok := containerTagByName(m[1])
		if !ok || (tag != TagAPM && tag != TagGPT) {
			return TagOS, 0, types.Uuid{}, false, nil
		}
		parsed, err := uuid.Parse(m[2])
		if err != nil {
			return TagOS, 0, types.Uuid{}, false, kerr.Wrap(err, "vfs.pathstring", "parsing partition identifier")
		}
		return tag, 0, types.Uuid{UUID: parsed}, true, nil
	}
	if m := reIndexSegment.FindStringSubmatch(seg); m != nil {
		tag, ok := containerTagByName(m[1])
		if !ok {
			return TagOS, 0, types.Uuid{}, false, nil
		}
		index, err := strconv.Atoi(m[2])
		if err != nil {
			return TagOS, 0, types.Uuid{}, false, nil
		}
		return tag, index, types.Uuid{}, true, nil
	}
	return TagOS, 0, types.Uuid{}, false, nil
}

// fsPathSeparator returns the path separator the given file-system
// tag uses in its own path convention: backslash for NTFS/FAT,
// matching Windows/DOS convention, slash for ext.
func fsPathSeparator(tag Tag) string {
	switch tag {
	case TagNTFS, TagFAT:
		return `\`
	default:
		return "/"
	}
}

// detectFileSystemLocation tries ext, then ntfs, then fat — the order
// the companion test corpus's images appear in — returning the first
// that opens cleanly over parent with segments joined using that file
// system's own path separator.
func detectFileSystemLocation(r *Resolver, parent *VfsLocation, segments []string) (*VfsLocation, error) {
	for _, tag := range []Tag{TagEXT, TagNTFS, TagFAT} {
		fsPath := strings.Join(segments, fsPathSeparator(tag))
		loc := &VfsLocation{Path: VfsPath{Tag: tag, FSPath: fsPath}, Parent: parent}
		if _, err := r.OpenFileSystem(loc); err == nil {
			return loc, nil
		}
	}
	return nil, kerr.New(kerr.KindUnsupported, "vfs.pathstring", "no file system found at this location")
}
