// Package fat decodes FAT12/16/32 volumes: boot sector and BIOS
// parameter block, the file allocation table itself (12/16/32-bit
// entries), short-name (8.3) and VFAT long-name directory entries, and
// cluster-chain file data.
//
// This decoder is not named by the forensic decoding specification
// this module otherwise implements; it is carried over from the
// original multi-format implementation this repository was distilled
// from, where FAT sits alongside ext and NTFS as a third on-disk
// file-system format under the same storage-media composition.
package fat
