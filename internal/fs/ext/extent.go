package ext

import (
	"github.com/keramics/keramics/internal/blocktree"
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const extentMagic = 0xF30A

type extentHeader struct {
	entries uint16
	depth   uint16
}

func parseExtentHeader(raw []byte) (extentHeader, error) {
	if types.U16LE(raw[0:2]) != extentMagic {
		return extentHeader{}, kerr.New(kerr.KindFormatInvalid, "ext.extent", "bad extent header magic")
	}
	return extentHeader{
		entries: types.U16LE(raw[2:4]),
		depth:   types.U16LE(raw[6:8]),
	}, nil
}

// walkExtentTree parses the root extent node (60 bytes, in i_block),
// recurses through any depth > 0 index nodes, and returns the file's
// extents in logical-block order. Before returning, every leaf extent
// is inserted into an internal/blocktree.Tree keyed by logical file
// offset: the insert fails with KindCorruption on any overlap between
// extents, catching a class of extent-tree corruption a flat
// concatenation of leaves has no way to detect on its own.
func walkExtentTree(media fsio.DataStream, sb *Superblock, node []byte) ([]fsio.Extent, error) {
	out, err := walkExtentNode(media, sb, node)
	if err != nil {
		return nil, err
	}
	if err := checkExtentOverlap(sb, out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkExtentOverlap re-inserts every extent into a blocktree.Tree
// spanning the file's logical block range, keyed by FileOffset. A
// well-formed extent tree never has two leaves covering the same
// logical block, so any Insert conflict here means the tree was
// corrupt.
func checkExtentOverlap(sb *Superblock, extents []fsio.Extent) error {
	if len(extents) == 0 {
		return nil
	}
	blockSize := int64(sb.BlockSize)
	span := int64(0)
	for _, e := range extents {
		if end := e.FileOffset + e.Length; end > span {
			span = end
		}
	}
	tree := blocktree.New[fsio.Extent](blockSize, 1024, span)
	for _, e := range extents {
		if err := tree.Insert(e.FileOffset, e.Length, e); err != nil {
			return kerr.Wrap(err, "ext.extent", "overlapping extent in extent tree")
		}
	}
	return nil
}

// walkExtentNode parses a 60-byte (or one-block) extent node and
// returns its file as a flat, logical-block-ordered list of extents.
// Depth > 0 nodes recurse by reading one block from the indicated
// physical block number.
func walkExtentNode(media fsio.DataStream, sb *Superblock, node []byte) ([]fsio.Extent, error) {
	hdr, err := parseExtentHeader(node)
	if err != nil {
		return nil, err
	}

	blockSize := int64(sb.BlockSize)
	var out []fsio.Extent
	for i := uint16(0); i < hdr.entries; i++ {
		raw := node[12+int(i)*12 : 12+int(i+1)*12]

		if hdr.depth == 0 {
			logicalBlock := types.U32LE(raw[0:4])
			length := types.U16LE(raw[4:6])
			if length >= 32768 {
				// Uninitialized extent: allocated but logically
				// unwritten. The spec doesn't distinguish this state
				// from a fully-written extent for read purposes, so
				// the allocated range is still reported as data.
				length -= 32768
			}
			physHi := types.U16LE(raw[6:8])
			physLo := types.U32LE(raw[8:12])
			physical := uint64(physHi)<<32 | uint64(physLo)
			out = append(out, fsio.Extent{
				FileOffset:   int64(logicalBlock) * blockSize,
				ParentOffset: int64(physical) * blockSize,
				Length:       int64(length) * blockSize,
			})
			continue
		}

		leafLo := types.U32LE(raw[4:8])
		leafHi := types.U16LE(raw[8:10])
		childBlock := uint64(leafHi)<<32 | uint64(leafLo)

		childBuf := make([]byte, sb.BlockSize)
		if err := fsio.ReadExactAt(media, int64(childBlock)*blockSize, childBuf); err != nil {
			return nil, kerr.Wrap(err, "ext.extent", "reading extent tree node")
		}
		childExtents, err := walkExtentNode(media, sb, childBuf)
		if err != nil {
			return nil, err
		}
		out = append(out, childExtents...)
	}
	return out, nil
}
