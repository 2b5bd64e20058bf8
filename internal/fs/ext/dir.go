package ext

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

// DirEntry is one parsed directory record.
type DirEntry struct {
	Inode uint32
	Name  string
}

// ReadDir returns dirInode's entries, free-space padding records
// (inode == 0) dropped. Inline-data directories are parsed straight
// from i_block; block-mapped directories are read block_size bytes at
// a time, with each block's record chain required to consume exactly
// block_size bytes.
func ReadDir(media fsio.DataStream, sb *Superblock, in *Inode) ([]DirEntry, error) {
	if in.HasInlineData() {
		entries, _ := parseDirBlock(inlineData(in))
		return entries, nil
	}

	stream, err := DataStream(media, sb, in)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	blockSize := int64(sb.BlockSize)
	buf := make([]byte, blockSize)
	for offset := int64(0); offset < stream.Size(); offset += blockSize {
		n, err := readFullOrEOF(stream, offset, buf)
		if err != nil {
			return nil, kerr.Wrap(err, "ext.dir", "reading directory block")
		}
		blockEntries, consumed := parseDirBlock(buf[:n])
		if consumed != n {
			return nil, kerr.New(kerr.KindCorruption, "ext.dir", "directory record chain does not cover the block")
		}
		entries = append(entries, blockEntries...)
	}
	return entries, nil
}

func readFullOrEOF(s fsio.DataStream, offset int64, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.ReadAt(offset+int64(total), buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// parseDirBlock iterates (inode, rec_len, name_len, file_type, name)
// records until the rec_len chain is consumed, dropping inode == 0
// free-space padding entries. It also returns the offset where the
// chain stopped.
func parseDirBlock(block []byte) ([]DirEntry, int) {
	var out []DirEntry
	offset := 0
	for offset+8 <= len(block) {
		ino := types.U32LE(block[offset : offset+4])
		recLen := types.U16LE(block[offset+4 : offset+6])
		nameLen := block[offset+6]
		if recLen == 0 {
			break
		}
		if ino != 0 && offset+8+int(nameLen) <= len(block) {
			name := string(block[offset+8 : offset+8+int(nameLen)])
			out = append(out, DirEntry{Inode: ino, Name: name})
		}
		offset += int(recLen)
	}
	return out, offset
}
