package ext

import (
	"strings"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// RootInode is the well-known root directory inode number.
const RootInode = 2

// FileSystem is an opened ext2/3/4 volume.
type FileSystem struct {
	media fsio.DataStream
	sb    *Superblock
	gdt   []GroupDescriptor
}

// Open reads the superblock and group descriptor table.
func Open(media fsio.DataStream) (*FileSystem, error) {
	sb, err := ReadSuperblock(media)
	if err != nil {
		return nil, err
	}
	gdt, err := ReadGroupDescriptorTable(media, sb)
	if err != nil {
		return nil, err
	}
	return &FileSystem{media: media, sb: sb, gdt: gdt}, nil
}

func (fs *FileSystem) Superblock() *Superblock { return fs.sb }

func (fs *FileSystem) Inode(ino uint32) (*Inode, error) {
	return ReadInode(fs.media, fs.sb, fs.gdt, ino)
}

// Lookup resolves a "/"-separated path (case-sensitive byte-string
// comparison) from the root, returning the inode it names.
func (fs *FileSystem) Lookup(path string) (*Inode, error) {
	in, err := fs.Inode(RootInode)
	if err != nil {
		return nil, err
	}
	for _, name := range splitPath(path) {
		if !in.IsDir() {
			return nil, kerr.New(kerr.KindNotFound, "ext", "path component is not a directory")
		}
		entries, err := ReadDir(fs.media, fs.sb, in)
		if err != nil {
			return nil, err
		}
		next, ok := findEntry(entries, name)
		if !ok {
			return nil, kerr.New(kerr.KindNotFound, "ext", "no such file or directory: "+name)
		}
		in, err = fs.Inode(next)
		if err != nil {
			return nil, err
		}
	}
	return in, nil
}

func findEntry(entries []DirEntry, name string) (uint32, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e.Inode, true
		}
	}
	return 0, false
}

func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// OpenFile resolves path and returns its contents as a DataStream.
func (fs *FileSystem) OpenFile(path string) (fsio.DataStream, error) {
	in, err := fs.Lookup(path)
	if err != nil {
		return nil, err
	}
	if !in.IsRegular() {
		return nil, kerr.New(kerr.KindUnsupported, "ext", "not a regular file")
	}
	return DataStream(fs.media, fs.sb, in)
}
