package ext

import (
	"github.com/keramics/keramics/internal/fsio"
	kerr "github.com/keramics/keramics/pkg/errors"
	"github.com/keramics/keramics/pkg/types"
)

const (
	inodeFlagExtents    = 0x00080000
	inodeFlagInlineData = 0x10000000

	modeTypeMask = 0xF000
	modeDir      = 0x4000
	modeRegular  = 0x8000
)

// Inode holds the fields needed to resolve a file's data and, for
// directories, its entries.
type Inode struct {
	Mode    uint16
	Size    uint64
	Flags   uint32
	IBlock  [60]byte // the raw i_block[] array: extent header/entries, indirection pointers, or inline data
}

func (in *Inode) IsDir() bool     { return in.Mode&modeTypeMask == modeDir }
func (in *Inode) IsRegular() bool { return in.Mode&modeTypeMask == modeRegular }
func (in *Inode) HasExtents() bool    { return in.Flags&inodeFlagExtents != 0 }
func (in *Inode) HasInlineData() bool { return in.Flags&inodeFlagInlineData != 0 }

// ReadInode resolves inode number ino (1-based) through the group
// descriptor table and parses its fixed fields.
func ReadInode(media fsio.DataStream, sb *Superblock, gdt []GroupDescriptor, ino uint32) (*Inode, error) {
	if ino == 0 {
		return nil, kerr.New(kerr.KindNotFound, "ext.inode", "inode 0 does not exist")
	}
	group := (ino - 1) / sb.InodesPerGroup
	index := (ino - 1) % sb.InodesPerGroup
	if int(group) >= len(gdt) {
		return nil, kerr.New(kerr.KindCorruption, "ext.inode", "inode group out of range")
	}

	offset := int64(gdt[group].InodeTable)*int64(sb.BlockSize) + int64(index)*int64(sb.InodeSize)
	buf := make([]byte, sb.InodeSize)
	if err := fsio.ReadExactAt(media, offset, buf); err != nil {
		return nil, kerr.Wrap(err, "ext.inode", "reading inode")
	}

	in := &Inode{
		Mode:  types.U16LE(buf[0:2]),
		Size:  uint64(types.U32LE(buf[4:8])),
		Flags: types.U32LE(buf[32:36]),
	}
	copy(in.IBlock[:], buf[40:100])
	if in.IsRegular() {
		in.Size |= uint64(types.U32LE(buf[108:112])) << 32
	}
	return in, nil
}
