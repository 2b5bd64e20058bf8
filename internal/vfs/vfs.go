// Package vfs composes the format decoders in internal/image,
// internal/volume, and internal/fs into a single addressable tree:
// an OS file can hold a volume system, whose partitions can hold
// image layers, whose media can hold a file system, whose files can
// in turn be opened by path. A VfsLocation names one node of that
// tree; the Resolver opens it, caching along the way.
package vfs

import (
	"fmt"

	"github.com/keramics/keramics/pkg/types"
)

// Tag identifies the kind of container or file system a VfsPath
// names. It is the discriminant of the tagged union the composition
// engine dispatches on.
type Tag int

const (
	TagOS Tag = iota
	TagAPM
	TagEWF
	TagEXT
	TagFAKE
	TagFAT
	TagGPT
	TagMBR
	TagNTFS
	TagQCOW
	TagSPARSEBUNDLE
	TagSPARSEIMAGE
	TagUDIF
	TagVHD
	TagVHDX
)

func (t Tag) String() string {
	switch t {
	case TagOS:
		return "os"
	case TagAPM:
		return "apm"
	case TagEWF:
		return "ewf"
	case TagEXT:
		return "ext"
	case TagFAKE:
		return "fake"
	case TagFAT:
		return "fat"
	case TagGPT:
		return "gpt"
	case TagMBR:
		return "mbr"
	case TagNTFS:
		return "ntfs"
	case TagQCOW:
		return "qcow"
	case TagSPARSEBUNDLE:
		return "sparsebundle"
	case TagSPARSEIMAGE:
		return "sparseimage"
	case TagUDIF:
		return "udif"
	case TagVHD:
		return "vhd"
	case TagVHDX:
		return "vhdx"
	default:
		return "unknown"
	}
}

// isFileSystemTag reports whether tag names a file system rather
// than an image or volume-system container.
func (t Tag) isFileSystemTag() bool {
	return t == TagEXT || t == TagFAT || t == TagNTFS
}

// VfsPath is one tagged location. Which fields are meaningful
// depends on Tag: OS/EWF/SPARSEBUNDLE/FAKE carry OSPath; APM/GPT/MBR
// carry Index (1-based) or Identifier; QCOW/VHD/VHDX/UDIF/SPARSEIMAGE
// carry Index when a container can hold more than one addressable
// layer (most have exactly one, at index 1); EXT/FAT/NTFS carry
// FSPath, the file's path in that file system's own convention.
type VfsPath struct {
	Tag        Tag
	OSPath     string
	Index      int
	Identifier types.Uuid
	FSPath     string
}

func (p VfsPath) String() string {
	switch {
	case p.Tag == TagOS || p.Tag == TagEWF || p.Tag == TagSPARSEBUNDLE || p.Tag == TagFAKE:
		return fmt.Sprintf("%s:%s", p.Tag, p.OSPath)
	case p.Tag == TagAPM || p.Tag == TagGPT || p.Tag == TagMBR:
		if !p.Identifier.IsNil() {
			return fmt.Sprintf("%s:{%s}", p.Tag, p.Identifier)
		}
		return fmt.Sprintf("%s:%d", p.Tag, p.Index)
	case p.Tag.isFileSystemTag():
		return fmt.Sprintf("%s:%s", p.Tag, p.FSPath)
	default:
		return fmt.Sprintf("%s:%d", p.Tag, p.Index)
	}
}

// VfsLocation composes a VfsPath with the parent location its bytes
// are read through. A nil Parent means Tag must be self-sufficient
// (only TagOS and TagFAKE qualify).
type VfsLocation struct {
	Path   VfsPath
	Parent *VfsLocation
}

// cacheKey is the string the resolver's stream cache keys on: the
// full parent chain plus this location's own discriminant.
func (l *VfsLocation) cacheKey() string {
	if l == nil {
		return ""
	}
	return l.Parent.cacheKey() + "/" + l.Path.String()
}

// containerKey is cacheKey with FSPath stripped, so every file
// opened within the same file system shares one cached FileSystem
// instance instead of reopening the volume per lookup.
func (l *VfsLocation) containerKey() string {
	if l == nil {
		return ""
	}
	stripped := l.Path
	stripped.FSPath = ""
	return l.Parent.cacheKey() + "/" + stripped.String()
}
