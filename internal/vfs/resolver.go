package vfs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/keramics/keramics/internal/cache"
	"github.com/keramics/keramics/internal/fs/ext"
	"github.com/keramics/keramics/internal/fs/fat"
	"github.com/keramics/keramics/internal/fs/ntfs"
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/internal/image"
	"github.com/keramics/keramics/internal/volume"
	kerr "github.com/keramics/keramics/pkg/errors"
)

// defaultCacheCapacity matches the "typically 128 entries each" LRU
// sizing named for the resolver's two caches.
const defaultCacheCapacity = 128

// fileSystem is the common surface ext/fat/ntfs's *FileSystem types
// all happen to share; there is no exported interface for it in
// internal/fs, so the resolver declares the slice of methods it
// actually calls.
type fileSystem interface {
	OpenFile(path string) (fsio.DataStream, error)
}

// Resolver is the only component that touches the OS file system
// directly. It opens a VfsLocation by recursively opening its
// parent, caching both opened file systems and opened data streams
// so that repeated lookups under the same container are free.
type Resolver struct {
	fsCache     *cache.LRUCache[string, any]
	streamCache *cache.LRUCache[string, fsio.DataStream]
	fixtures    map[string][]byte
}

// NewResolver builds a Resolver with no fixtures.
func NewResolver() *Resolver {
	return NewResolverWithCapacity(defaultCacheCapacity)
}

// NewResolverWithCapacity builds a Resolver whose two LRU caches hold
// capacity entries each, for callers (the CLI config layer) that size
// it away from the compiled-in default.
func NewResolverWithCapacity(capacity int) *Resolver {
	return &Resolver{
		fsCache:     cache.New[string, any](capacity),
		streamCache: cache.New[string, fsio.DataStream](capacity),
	}
}

// NewResolverWithFixtures builds a Resolver whose TagFAKE locations
// resolve against an in-memory name→bytes map, for fuzz harnesses
// and tests that need a resolver without touching disk.
func NewResolverWithFixtures(fixtures map[string][]byte) *Resolver {
	r := NewResolver()
	r.fixtures = fixtures
	return r
}

// OpenDataStream opens loc, returning the cached stream if this
// exact location (and parent chain) has been opened before.
func (r *Resolver) OpenDataStream(loc *VfsLocation) (fsio.DataStream, error) {
	if loc == nil {
		return nil, kerr.New(kerr.KindInternal, "vfs.resolver", "nil location")
	}
	key := loc.cacheKey()
	if s, ok := r.streamCache.Get(key); ok {
		return s, nil
	}
	stream, err := r.openDataStream(loc)
	if err != nil {
		return nil, err
	}
	r.streamCache.Put(key, stream)
	return stream, nil
}

func (r *Resolver) openDataStream(loc *VfsLocation) (fsio.DataStream, error) {
	switch loc.Path.Tag {
	case TagOS:
		return fsio.OpenOSStream(loc.Path.OSPath)
	case TagFAKE:
		data, ok := r.fixtures[loc.Path.OSPath]
		if !ok {
			return nil, kerr.New(kerr.KindNotFound, "vfs.resolver", "no fixture named "+loc.Path.OSPath)
		}
		return fsio.NewMemoryStream(data), nil
	case TagEWF:
		segments, err := r.openEWFSegments(loc)
		if err != nil {
			return nil, err
		}
		return image.OpenEWF(segments)
	case TagSPARSEBUNDLE:
		return image.OpenSparseBundle(fsio.NewOSResolver(loc.Path.OSPath))
	case TagAPM, TagGPT, TagMBR:
		return r.openVolumePartition(loc)
	case TagVHD:
		return r.openVHD(loc)
	case TagVHDX:
		return r.openVHDX(loc)
	case TagQCOW:
		return r.openQCOW(loc)
	case TagUDIF:
		parent, err := r.OpenDataStream(loc.Parent)
		if err != nil {
			return nil, err
		}
		return image.OpenUDIF(parent)
	case TagSPARSEIMAGE:
		parent, err := r.OpenDataStream(loc.Parent)
		if err != nil {
			return nil, err
		}
		return image.OpenSparseImage(parent)
	case TagEXT, TagFAT, TagNTFS:
		return r.openFileInFileSystem(loc)
	default:
		return nil, kerr.New(kerr.KindUnsupported, "vfs.resolver", "unrecognised tag")
	}
}

func (r *Resolver) openVolumePartition(loc *VfsLocation) (fsio.DataStream, error) {
	parent, err := r.OpenDataStream(loc.Parent)
	if err != nil {
		return nil, err
	}
	var parts []volume.Partition
	switch loc.Path.Tag {
	case TagAPM:
		parts, err = volume.DecodeAPM(parent)
	case TagGPT:
		parts, err = volume.DecodeGPT(parent)
	case TagMBR:
		parts, err = volume.DecodeMBR(parent)
	}
	if err != nil {
		return nil, err
	}
	part, err := selectPartition(parts, loc.Path)
	if err != nil {
		return nil, err
	}
	return part.Stream, nil
}

func selectPartition(parts []volume.Partition, path VfsPath) (volume.Partition, error) {
	if !path.Identifier.IsNil() {
		for _, p := range parts {
			if p.Identifier == path.Identifier {
				return p, nil
			}
		}
		return volume.Partition{}, kerr.New(kerr.KindNotFound, "vfs.resolver", "no partition with that identifier")
	}
	for _, p := range parts {
		if p.Index == path.Index {
			return p, nil
		}
	}
	return volume.Partition{}, kerr.New(kerr.KindNotFound, "vfs.resolver", fmt.Sprintf("no partition at index %d", path.Index))
}

func (r *Resolver) openVHD(loc *VfsLocation) (fsio.DataStream, error) {
	parent, err := r.OpenDataStream(loc.Parent)
	if err != nil {
		return nil, err
	}
	v, err := image.OpenVHD(parent)
	if err != nil {
		return nil, err
	}
	// Differencing-parent auto-resolution is out of scope: OpenVHD
	// never parses the dynamic header's ParentUnicodeName/parent
	// locator entries, so there is no sibling name to resolve here.
	// v.Parent stays nil; reads over an unallocated block read as
	// zero, per the DataStream contract.
	return v, nil
}

func (r *Resolver) openVHDX(loc *VfsLocation) (fsio.DataStream, error) {
	parent, err := r.OpenDataStream(loc.Parent)
	if err != nil {
		return nil, err
	}
	v, err := image.OpenVHDX(parent)
	if err != nil {
		return nil, err
	}
	if v.HasParent {
		if dir, ok := locationOSDir(loc); ok {
			if err := resolveVHDXChain(dir, v); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

func (r *Resolver) openQCOW(loc *VfsLocation) (fsio.DataStream, error) {
	parent, err := r.OpenDataStream(loc.Parent)
	if err != nil {
		return nil, err
	}
	q, err := image.OpenQCOW2(parent)
	if err != nil {
		return nil, err
	}
	if q.BackingFileName != "" {
		if dir, ok := locationOSDir(loc); ok {
			if err := resolveQCOWChain(dir, q); err != nil {
				return nil, err
			}
		}
	}
	return q, nil
}

// locationOSDir walks up loc's parent chain for the nearest concrete
// OS-filesystem directory a backing/parent file name can be resolved
// against: the directory holding an OS file or an EWF segment's base
// name, or a sparse bundle's own directory.
func locationOSDir(loc *VfsLocation) (string, bool) {
	for cur := loc; cur != nil; cur = cur.Parent {
		switch cur.Path.Tag {
		case TagOS, TagEWF:
			return filepath.Dir(cur.Path.OSPath), true
		case TagSPARSEBUNDLE:
			return cur.Path.OSPath, true
		}
	}
	return "", false
}

// resolveQCOWChain follows q's backing-file chain through sibling
// files in dir, opening each as QCOW2 if it parses as one and
// falling back to treating it as a raw (flat) parent image otherwise
// — the same fallback resolveVHDXChain gives a VHDX parent.
func resolveQCOWChain(dir string, q *image.QCOW2) error {
	cur := q
	seen := map[string]bool{}
	for cur.BackingFileName != "" {
		name := cur.BackingFileName
		if seen[name] {
			return kerr.New(kerr.KindFormatInvalid, "vfs.resolver", "cyclic QCOW2 backing chain")
		}
		seen[name] = true

		resolver := fsio.NewOSResolver(dir)
		stream, err := resolver.GetDataStream([]fsio.PathComponent{fsio.Component(name)})
		if err != nil {
			return kerr.Wrap(err, "vfs.resolver", "resolving QCOW2 backing file")
		}
		if stream == nil {
			return kerr.New(kerr.KindNotFound, "vfs.resolver", "QCOW2 backing file not found: "+name)
		}
		if backing, err := image.OpenQCOW2(stream); err == nil {
			cur.Parent = backing
			cur = backing
			continue
		}
		cur.Parent = stream
		break
	}
	return nil
}

// resolveVHDXChain mirrors resolveQCOWChain for VHDX parent-locator
// chains. Only the file-name portion of a located path is trusted —
// the locator strings frequently carry the original host's absolute
// or relative path, which this sibling-file lookup does not attempt
// to reproduce.
func resolveVHDXChain(dir string, v *image.VHDX) error {
	cur := v
	seen := map[string]bool{}
	for cur.HasParent {
		name, ok := vhdxParentPathFromLocator(cur.ParentLocator)
		if !ok {
			break
		}
		name = filepath.Base(filepath.FromSlash(name))
		if seen[name] {
			return kerr.New(kerr.KindFormatInvalid, "vfs.resolver", "cyclic VHDX parent chain")
		}
		seen[name] = true

		resolver := fsio.NewOSResolver(dir)
		stream, err := resolver.GetDataStream([]fsio.PathComponent{fsio.Component(name)})
		if err != nil {
			return kerr.Wrap(err, "vfs.resolver", "resolving VHDX parent locator")
		}
		if stream == nil {
			return kerr.New(kerr.KindNotFound, "vfs.resolver", "VHDX parent not found: "+name)
		}
		if backing, err := image.OpenVHDX(stream); err == nil {
			cur.Parent = backing
			cur = backing
			continue
		}
		cur.Parent = stream
		break
	}
	return nil
}

// vhdxParentPathFromLocator picks the most useful path string out of
// a parent-locator entry set, preferring a relative-path key (the
// one most likely to still resolve on a different host) over an
// absolute one.
func vhdxParentPathFromLocator(entries []image.ParentLocatorEntry) (string, bool) {
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), "relative") {
			return e.Value, true
		}
	}
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Key), "path") {
			return e.Value, true
		}
	}
	return "", false
}

// openEWFSegments gathers the numbered segment files sharing loc's
// base name (".E01", ".e01", ...), stopping at the first missing
// extension in sequence.
func (r *Resolver) openEWFSegments(loc *VfsLocation) ([]fsio.DataStream, error) {
	base := loc.Path.OSPath
	extension := filepath.Ext(base)
	if len(extension) != 4 {
		return nil, kerr.New(kerr.KindFormatInvalid, "vfs.resolver", "EWF path does not end in a segment extension")
	}
	lower := extension[1] == 'e'
	stem := base[:len(base)-4]
	dir := filepath.Dir(stem)
	prefix := filepath.Base(stem)
	resolver := fsio.NewOSResolver(dir)

	var segments []fsio.DataStream
	for n := 1; ; n++ {
		extStr := ewfSegmentExtension(n)
		if lower {
			extStr = strings.ToLower(extStr)
		}
		name := prefix + "." + extStr
		stream, err := resolver.GetDataStream([]fsio.PathComponent{fsio.Component(name)})
		if err != nil {
			return nil, kerr.Wrap(err, "vfs.resolver", "resolving EWF segment")
		}
		if stream == nil {
			break
		}
		segments = append(segments, stream)
	}
	if len(segments) == 0 {
		return nil, kerr.New(kerr.KindNotFound, "vfs.resolver", "no EWF segment files found")
	}
	return segments, nil
}

// ewfSegmentExtension reproduces the standard EWF segment-extension
// sequence: E01..E99, then EAA..EZZ, FAA..FZZ, and on through ZAA..ZZZ
// for later segments. Real acquisitions rarely exceed a handful of
// segments; this covers the documented sequence without attempting
// the lowercase-letter continuation past ZZZ.
func ewfSegmentExtension(n int) string {
	if n <= 99 {
		return fmt.Sprintf("E%02d", n)
	}
	n -= 100
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	first := letters[(4+n/(26*26))%26]
	second := letters[(n/26)%26]
	third := letters[n%26]
	return string([]byte{first, second, third})
}

func (r *Resolver) openFileInFileSystem(loc *VfsLocation) (fsio.DataStream, error) {
	fsObj, err := r.OpenFileSystem(loc)
	if err != nil {
		return nil, err
	}
	fsys, ok := fsObj.(fileSystem)
	if !ok {
		return nil, kerr.New(kerr.KindInternal, "vfs.resolver", "opened container does not support file lookup")
	}
	return fsys.OpenFile(loc.Path.FSPath)
}

// OpenFileSystem opens the file system container loc names (ignoring
// loc.Path.FSPath), caching by the container's own key so that every
// file looked up under the same volume reuses one opened instance.
func (r *Resolver) OpenFileSystem(loc *VfsLocation) (any, error) {
	key := loc.containerKey()
	if v, ok := r.fsCache.Get(key); ok {
		return v, nil
	}
	media, err := r.OpenDataStream(loc.Parent)
	if err != nil {
		return nil, err
	}
	var fsObj any
	switch loc.Path.Tag {
	case TagEXT:
		fsObj, err = ext.Open(media)
	case TagFAT:
		fsObj, err = fat.Open(media)
	case TagNTFS:
		fsObj, err = ntfs.Open(media)
	default:
		return nil, kerr.New(kerr.KindUnsupported, "vfs.resolver", "tag is not a file system")
	}
	if err != nil {
		return nil, err
	}
	r.fsCache.Put(key, fsObj)
	return fsObj, nil
}
