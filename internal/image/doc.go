// Package image decodes storage-media container formats into plain
// fsio.DataStream views of the media they carry: VHDX (two-region
// BAT + metadata table, differencing-chain aware), QCOW2 (two-level
// L1/L2 cluster table, deflate-compressed clusters, backing-file
// chain), VHD (fixed/dynamic/differencing footer + BAT + per-block
// sector bitmap), EWF/E01 (segmented section chain, chunk offset
// table, deflate-compressed chunks), UDIF/DMG (koly footer + plist
// block table, per-entry codec dispatch), and Apple sparse image /
// sparse bundle (band-indexed sparse storage).
//
// Every format in this package composes the same way: parse the
// container's own metadata, then build an fsio.DataStream (usually an
// fsio.BlockMappedStream over a table of fsio.Extent) that presents
// the decoded logical media as one flat, randomly-addressable stream
// for the volume and file-system decoders above it.
package image
