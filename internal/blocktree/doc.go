// Package blocktree implements the coarse-to-fine block-tree index used
// to assemble an in-memory extent list from a sparse allocation table:
// a VHDX BAT (entries for not-present blocks are holes) or an ext4
// extent tree (depth-first walk of variable-sized extent runs). Each
// level's element size shrinks by a fixed branching factor until it no
// longer exceeds the size of the range being inserted, at which point
// the whole subtree is stamped with one value instead of being
// subdivided down to the base element size.
package blocktree
