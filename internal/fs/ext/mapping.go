package ext

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// DataStream returns the file's contents as an fsio.DataStream: inline
// data is wrapped in an in-memory stream, extent-mapped and
// classically-indirected files are composed over fsio.BlockMappedStream.
func DataStream(media fsio.DataStream, sb *Superblock, in *Inode) (fsio.DataStream, error) {
	if in.HasInlineData() {
		return fsio.NewMemoryStream(inlineData(in)), nil
	}

	var extents []fsio.Extent
	var err error
	if in.HasExtents() {
		extents, err = walkExtentTree(media, sb, in.IBlock[:])
	} else {
		extents, err = classicIndirection(media, sb, in)
	}
	if err != nil {
		return nil, err
	}
	return fsio.NewBlockMappedStream(media, extents, int64(in.Size), nil), nil
}

func inlineData(in *Inode) []byte {
	size := in.Size
	if size > uint64(len(in.IBlock)) {
		size = uint64(len(in.IBlock))
	}
	return append([]byte(nil), in.IBlock[:size]...)
}

// classicIndirection walks the 12 direct + single/double/triple
// indirect block pointers, producing one extent per contiguous
// physical/logical run of blocks.
func classicIndirection(media fsio.DataStream, sb *Superblock, in *Inode) ([]fsio.Extent, error) {
	blockSize := int64(sb.BlockSize)
	pointersPerBlock := int64(sb.BlockSize) / 4

	var blocks []uint64 // logical-order physical block numbers, 0 = hole
	for i := 0; i < 12; i++ {
		blocks = append(blocks, uint64(types.U32LE(in.IBlock[i*4:i*4+4])))
	}

	singleIndirect := uint64(types.U32LE(in.IBlock[48:52]))
	doubleIndirect := uint64(types.U32LE(in.IBlock[52:56]))
	tripleIndirect := uint64(types.U32LE(in.IBlock[56:60]))

	appendIndirectBlocks := func(blockNum uint64, depth int) error {
		var walk func(blockNum uint64, depth int) error
		walk = func(blockNum uint64, depth int) error {
			if blockNum == 0 {
				// A whole hole subtree: still contributes its block
				// count of implicit holes.
				count := int64(1)
				for d := 0; d < depth; d++ {
					count *= pointersPerBlock
				}
				for i := int64(0); i < count; i++ {
					blocks = append(blocks, 0)
				}
				return nil
			}
			if depth == 0 {
				blocks = append(blocks, blockNum)
				return nil
			}
			buf := make([]byte, sb.BlockSize)
			if err := fsio.ReadExactAt(media, int64(blockNum)*blockSize, buf); err != nil {
				return kerr.Wrap(err, "ext.mapping", "reading indirect block")
			}
			for i := int64(0); i < pointersPerBlock; i++ {
				ptr := uint64(types.U32LE(buf[i*4 : i*4+4]))
				if err := walk(ptr, depth-1); err != nil {
					return err
				}
			}
			return nil
		}
		return walk(blockNum, depth)
	}

	if err := appendIndirectBlocks(singleIndirect, 1); err != nil {
		return nil, err
	}
	if err := appendIndirectBlocks(doubleIndirect, 2); err != nil {
		return nil, err
	}
	if err := appendIndirectBlocks(tripleIndirect, 3); err != nil {
		return nil, err
	}

	return coalesceBlocks(blocks, blockSize), nil
}

// coalesceBlocks merges consecutive logical blocks whose physical
// block numbers are also consecutive into single extents, skipping
// holes (physical block 0).
func coalesceBlocks(blocks []uint64, blockSize int64) []fsio.Extent {
	var out []fsio.Extent
	i := 0
	for i < len(blocks) {
		if blocks[i] == 0 {
			i++
			continue
		}
		start := i
		for i+1 < len(blocks) && blocks[i+1] != 0 && blocks[i+1] == blocks[i]+1 {
			i++
		}
		out = append(out, fsio.Extent{
			FileOffset:   int64(start) * blockSize,
			ParentOffset: int64(blocks[start]) * blockSize,
			Length:       int64(i-start+1) * blockSize,
		})
		i++
	}
	return out
}
