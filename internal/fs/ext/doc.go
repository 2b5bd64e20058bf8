// Package ext decodes ext2/ext3/ext4 volumes: the superblock, the
// group-descriptor table (CRC-16 verified under metadata_csum),
// inodes, extent-tree and classic-indirection block mapping, and
// directory entries. File data is exposed as an fsio.DataStream
// composed from fsio.BlockMappedStream over the resolved extents.
package ext
