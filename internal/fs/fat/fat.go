package fat

import (
	"strings"

	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// FileSystem is an opened FAT12/16/32 volume.
type FileSystem struct {
	media fsio.DataStream
	boot  *BootRecord
	table *Table
}

// Open reads the boot record and the first file allocation table.
func Open(media fsio.DataStream) (*FileSystem, error) {
	boot, err := ReadBootRecord(media)
	if err != nil {
		return nil, err
	}
	table, err := ReadTable(media, boot)
	if err != nil {
		return nil, err
	}
	return &FileSystem{media: media, boot: boot, table: table}, nil
}

func (fs *FileSystem) BootRecord() *BootRecord { return fs.boot }

// clusterChainStream composes a DataStream over the bytes backing a
// cluster chain, truncated to size.
func (fs *FileSystem) clusterChainStream(chain []uint32, size int64) fsio.DataStream {
	var extents []fsio.Extent
	var logical int64
	for _, c := range chain {
		extents = append(extents, fsio.Extent{
			FileOffset:   logical,
			ParentOffset: fs.boot.ClusterOffset(c),
			Length:       fs.boot.ClusterSize,
		})
		logical += fs.boot.ClusterSize
	}
	return fsio.NewBlockMappedStream(fs.media, extents, size, nil)
}

// rootDirectoryEntries returns the root directory's entries: a fixed
// region on FAT12/16, a normal cluster chain starting at
// BootRecord.RootCluster on FAT32.
func (fs *FileSystem) rootDirectoryEntries() ([]DirEntry, error) {
	if fs.boot.Format == Format32 {
		chain, err := fs.table.Chain(fs.boot.RootCluster)
		if err != nil {
			return nil, err
		}
		return fs.readDirStream(fs.clusterChainStream(chain, int64(len(chain))*fs.boot.ClusterSize))
	}
	size := int64(fs.boot.RootEntryCount) * 32
	buf := make([]byte, size)
	offset := int64(fs.boot.RootDirSector) * int64(fs.boot.BytesPerSector)
	if err := fsio.ReadExactAt(fs.media, offset, buf); err != nil {
		return nil, kerr.Wrap(err, "fat", "reading root directory region")
	}
	return parseDirectoryBlock(buf), nil
}

func (fs *FileSystem) directoryEntries(e ShortNameEntry) ([]DirEntry, error) {
	chain, err := fs.table.Chain(e.Cluster)
	if err != nil {
		return nil, err
	}
	return fs.readDirStream(fs.clusterChainStream(chain, int64(len(chain))*fs.boot.ClusterSize))
}

func (fs *FileSystem) readDirStream(stream fsio.DataStream) ([]DirEntry, error) {
	buf := make([]byte, stream.Size())
	if err := stream.ReadExactAt(0, buf); err != nil {
		return nil, kerr.Wrap(err, "fat", "reading directory cluster chain")
	}
	return parseDirectoryBlock(buf), nil
}

// Lookup resolves a backslash-separated, case-insensitive path from
// the root directory.
func (fs *FileSystem) Lookup(path string) (ShortNameEntry, error) {
	entries, err := fs.rootDirectoryEntries()
	if err != nil {
		return ShortNameEntry{}, err
	}
	var current ShortNameEntry
	found := false
	for _, name := range splitPath(path) {
		next, ok := findEntry(entries, name)
		if !ok {
			return ShortNameEntry{}, kerr.New(kerr.KindNotFound, "fat", "no such file or directory: "+name)
		}
		current = next.ShortNameEntry
		found = true
		if next.IsDirectory() {
			entries, err = fs.directoryEntries(current)
			if err != nil {
				return ShortNameEntry{}, err
			}
		}
	}
	if !found {
		return ShortNameEntry{}, kerr.New(kerr.KindNotFound, "fat", "empty path")
	}
	return current, nil
}

func findEntry(entries []DirEntry, name string) (DirEntry, bool) {
	upper := strings.ToUpper(name)
	for _, e := range entries {
		if strings.ToUpper(e.DisplayName()) == upper {
			return e, true
		}
	}
	return DirEntry{}, false
}

// splitPath splits a FAT path in FAT's own convention: components
// separated by backslashes, e.g. `\DCIM\100CANON\IMG_0001.JPG`.
func splitPath(path string) []string {
	var out []string
	for _, part := range strings.Split(path, `\`) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// OpenFile resolves path and returns its contents as a DataStream.
func (fs *FileSystem) OpenFile(path string) (fsio.DataStream, error) {
	e, err := fs.Lookup(path)
	if err != nil {
		return nil, err
	}
	if e.IsDirectory() {
		return nil, kerr.New(kerr.KindUnsupported, "fat", "path names a directory")
	}
	if e.Size == 0 {
		return fsio.NewMemoryStream(nil), nil
	}
	chain, err := fs.table.Chain(e.Cluster)
	if err != nil {
		return nil, err
	}
	return fs.clusterChainStream(chain, int64(e.Size)), nil
}
