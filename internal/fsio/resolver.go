package fsio

import (
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/utils"
)

// PathComponent is one segment of a path handed to a Resolver. It is
// either an OS-style UTF-8 name (the common case: a backing-file name
// read out of a QCOW header or a VHDX parent locator) or a structured
// identifier used to step inside an already-typed VFS path.
type PathComponent struct {
	Name       string
	Structured any
}

// Component builds an OS-style PathComponent.
func Component(name string) PathComponent { return PathComponent{Name: name} }

// Resolver turns a path-component list into a DataStream without the
// caller knowing whether the bytes come from the OS, a nested VFS, or
// an in-memory fixture. Image decoders are handed a Resolver instead
// of a base directory so backing-chain traversal (QCOW backing file,
// VHDX parent locator, VHD parent file) never touches the OS directly.
type Resolver interface {
	// GetDataStream resolves components to a DataStream, or (nil, nil)
	// if no such path exists — absence is not an error.
	GetDataStream(components []PathComponent) (DataStream, error)
}

// OSResolver resolves OS-style components against a base directory,
// rejecting any path that would escape it.
type OSResolver struct {
	base string
}

// NewOSResolver roots an OSResolver at base.
func NewOSResolver(base string) *OSResolver {
	return &OSResolver{base: base}
}

func (r *OSResolver) GetDataStream(components []PathComponent) (DataStream, error) {
	parts := make([]string, 0, len(components))
	for _, c := range components {
		if c.Name == "" {
			return nil, kerr.New(kerr.KindNotFound, "fsio.resolver.os", "structured component in OS resolver")
		}
		parts = append(parts, c.Name)
	}
	joined, err := utils.JoinWithinBase(r.base, parts...)
	if err != nil {
		return nil, kerr.Wrap(err, "fsio.resolver.os", "join path")
	}
	stream, err := OpenOSStream(joined)
	if err != nil {
		if te, ok := err.(*kerr.TraceError); ok && te.Kind == kerr.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return stream, nil
}

// MemoryResolver serves a fixed name→bytes map, used by fuzz targets
// and tests that need a resolver without touching a filesystem.
type MemoryResolver struct {
	files map[string][]byte
}

// NewMemoryResolver wraps files as a Resolver. Only single-component
// (flat) lookups are supported; components are joined with "/" to form
// the lookup key.
func NewMemoryResolver(files map[string][]byte) *MemoryResolver {
	return &MemoryResolver{files: files}
}

func (r *MemoryResolver) GetDataStream(components []PathComponent) (DataStream, error) {
	key := ""
	for i, c := range components {
		if i > 0 {
			key += "/"
		}
		key += c.Name
	}
	data, ok := r.files[key]
	if !ok {
		return nil, nil
	}
	return NewMemoryStream(data), nil
}

// VFS is the minimal surface a VFS-delegating resolver needs from the
// composition engine (internal/vfs), kept here to avoid an import
// cycle: fsio is a leaf package that vfs depends on, not vice versa.
type VFS interface {
	OpenFile(components []PathComponent) (DataStream, error)
}

// VFSResolver delegates resolution to a VFS file system rooted at a
// fixed base path inside it — the variant used when an image decoder
// must follow a backing-file reference that itself lives inside an
// already-opened nested container.
type VFSResolver struct {
	vfs  VFS
	base []PathComponent
}

// NewVFSResolver roots a VFSResolver at base within vfs.
func NewVFSResolver(vfs VFS, base []PathComponent) *VFSResolver {
	return &VFSResolver{vfs: vfs, base: base}
}

func (r *VFSResolver) GetDataStream(components []PathComponent) (DataStream, error) {
	full := make([]PathComponent, 0, len(r.base)+len(components))
	full = append(full, r.base...)
	full = append(full, components...)
	return r.vfs.OpenFile(full)
}
