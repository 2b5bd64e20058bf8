package vfs

import (
	"github.com/keramics/keramics/internal/fsio"
	"github.com/keramics/keramics/internal/sigscan"
	"github.com/keramics/keramics/internal/volume"
)

// scanWindow is how much of the head and tail of a stream the
// scanner reads before running the signature scanner over it.
const scanWindow = 1 << 20

// VfsScanNode is one node of the tree produced by walking an unknown
// source with the signature scanner: a location plus every nested
// container or file system discovered within it. File-system tags
// are always leaves — nothing is scanned inside an opened file
// system, since locating files there requires a path, not a byte
// offset.
type VfsScanNode struct {
	Location *VfsLocation
	Children []*VfsScanNode
}

// Scanner drives discovery: the signature scanner proposes candidate
// tags at plausible offsets, and each candidate is opened through the
// resolver to confirm or discard it before recursing.
type Scanner struct {
	resolver *Resolver
	head     *sigscan.Scanner
	tail     *sigscan.Scanner
	window   int64
}

// NewScanner builds a Scanner backed by resolver, reading scanWindow
// bytes from each end of a candidate stream.
func NewScanner(resolver *Resolver) (*Scanner, error) {
	return NewScannerWithWindow(resolver, scanWindow)
}

// NewScannerWithWindow is NewScanner with an explicit head/tail read
// window, for callers (the CLI config layer) that size it away from
// the compiled-in default.
func NewScannerWithWindow(resolver *Resolver, window int) (*Scanner, error) {
	head, err := sigscan.Build(headSignatures)
	if err != nil {
		return nil, err
	}
	tail, err := sigscan.Build(tailSignatures)
	if err != nil {
		return nil, err
	}
	return &Scanner{resolver: resolver, head: head, tail: tail, window: int64(window)}, nil
}

// headSignatures and tailSignatures list, per tag, the candidate byte
// pattern the scanner looks for. A match only proposes a tag for
// opening; it is the decoder's own validation (signature, checksum,
// structural checks) that confirms or rejects it.
var headSignatures = []sigscan.Signature{
	{ID: int(TagMBR), Class: sigscan.HeadBound, Anchor: 510, Pattern: []byte{0x55, 0xAA}},
	{ID: int(TagGPT), Class: sigscan.HeadBound, Anchor: 512, Pattern: []byte("EFI PART")},
	{ID: int(TagAPM), Class: sigscan.HeadBound, Anchor: 512, Pattern: []byte("PM")},
	{ID: int(TagVHDX), Class: sigscan.HeadBound, Anchor: 0, Pattern: []byte("vhdxfile")},
	{ID: int(TagQCOW), Class: sigscan.HeadBound, Anchor: 0, Pattern: []byte("QFI\xfb")},
	{ID: int(TagEWF), Class: sigscan.HeadBound, Anchor: 0, Pattern: []byte("\x45\x56\x46\x09\x0d\x0a\xff\x00")},
	{ID: int(TagSPARSEIMAGE), Class: sigscan.HeadBound, Anchor: 0, Pattern: []byte("sprs")},
	{ID: int(TagEXT), Class: sigscan.HeadBound, Anchor: 1080, Pattern: []byte{0x53, 0xef}},
	{ID: int(TagNTFS), Class: sigscan.HeadBound, Anchor: 3, Pattern: []byte("NTFS    ")},
}

// tailSignatures: VHD and UDIF both identify themselves by a footer
// at the very end of the stream rather than a header at the start.
//
// FAT has no reliable signature of its own here: its boot sector
// carries the same 0x55AA terminator already claimed by MBR, and the
// "FATxx   " string that follows the BPB moves depending on FAT12/16
// vs FAT32 layout. A FAT location is only ever reached by an explicit
// FSPath, never by this scanner.
var tailSignatures = []sigscan.Signature{
	{ID: int(TagVHD), Class: sigscan.TailBound, Anchor: 512, Pattern: []byte("conectix")},
	{ID: int(TagUDIF), Class: sigscan.TailBound, Anchor: 512, Pattern: []byte("koly")},
}

// Scan walks the OS file at osPath, producing the discovered tree.
func (s *Scanner) Scan(osPath string) (*VfsScanNode, error) {
	root := &VfsLocation{Path: VfsPath{Tag: TagOS, OSPath: osPath}}
	return s.scanLocation(root)
}

func (s *Scanner) scanLocation(loc *VfsLocation) (*VfsScanNode, error) {
	node := &VfsScanNode{Location: loc}
	if loc.Path.Tag.isFileSystemTag() {
		return node, nil
	}

	stream, err := s.resolver.OpenDataStream(loc)
	if err != nil {
		return nil, err
	}

	size := stream.Size()
	headLen := size
	if headLen > s.window {
		headLen = s.window
	}
	headBuf := make([]byte, headLen)
	if err := fsio.ReadExactAt(stream, 0, headBuf); err != nil {
		return nil, err
	}

	var tailBuf []byte
	var tailBase int64
	if size > 0 {
		tailLen := size
		if tailLen > s.window {
			tailLen = s.window
		}
		tailBase = size - tailLen
		tailBuf = make([]byte, tailLen)
		if err := fsio.ReadExactAt(stream, tailBase, tailBuf); err != nil {
			return nil, err
		}
	}

	seen := map[Tag]bool{}
	for _, m := range s.head.Scan(headBuf) {
		tag := Tag(m.ID)
		if seen[tag] || (tag == TagEWF && loc.Path.Tag != TagOS) {
			continue
		}
		seen[tag] = true
		s.tryCandidate(node, loc, tag)
	}
	for _, m := range s.tail.Scan(tailBuf) {
		tag := Tag(m.ID)
		if seen[tag] {
			continue
		}
		seen[tag] = true
		s.tryCandidate(node, loc, tag)
	}
	return node, nil
}

// tryCandidate instantiates tag under loc, opens it to confirm the
// match, and on success recurses into every resulting data stream —
// every partition for a volume system, the single media stream for
// an image or file system.
func (s *Scanner) tryCandidate(node *VfsScanNode, loc *VfsLocation, tag Tag) {
	switch tag {
	case TagAPM, TagGPT, TagMBR:
		s.tryVolumeCandidate(node, loc, tag)
	case TagEXT, TagNTFS:
		s.tryFileSystemCandidate(node, loc, tag)
	case TagEWF:
		child := &VfsLocation{Path: VfsPath{Tag: TagEWF, OSPath: loc.Path.OSPath}, Parent: loc}
		s.recurseInto(node, child)
	default:
		child := &VfsLocation{Path: VfsPath{Tag: tag}, Parent: loc}
		s.recurseInto(node, child)
	}
}

func (s *Scanner) tryVolumeCandidate(node *VfsScanNode, loc *VfsLocation, tag Tag) {
	stream, err := s.resolver.OpenDataStream(loc)
	if err != nil {
		return
	}
	var parts []volume.Partition
	switch tag {
	case TagAPM:
		parts, err = volume.DecodeAPM(stream)
	case TagGPT:
		parts, err = volume.DecodeGPT(stream)
	case TagMBR:
		parts, err = volume.DecodeMBR(stream)
	}
	if err != nil || len(parts) == 0 {
		return
	}
	// The volume-system node carries Index 0; its children are the
	// partitions, each under its 1-based index.
	volNode := &VfsScanNode{Location: &VfsLocation{Path: VfsPath{Tag: tag}, Parent: loc}}
	for _, p := range parts {
		childLoc := &VfsLocation{Path: VfsPath{Tag: tag, Index: p.Index, Identifier: p.Identifier}, Parent: loc}
		s.resolver.streamCache.Put(childLoc.cacheKey(), p.Stream)
		s.recurseInto(volNode, childLoc)
	}
	node.Children = append(node.Children, volNode)
}

func (s *Scanner) tryFileSystemCandidate(node *VfsScanNode, loc *VfsLocation, tag Tag) {
	childLoc := &VfsLocation{Path: VfsPath{Tag: tag}, Parent: loc}
	if _, err := s.resolver.OpenFileSystem(childLoc); err != nil {
		return
	}
	node.Children = append(node.Children, &VfsScanNode{Location: childLoc})
}

func (s *Scanner) recurseInto(node *VfsScanNode, childLoc *VfsLocation) {
	child, err := s.scanLocation(childLoc)
	if err != nil {
		return
	}
	node.Children = append(node.Children, child)
}
