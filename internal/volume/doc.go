// Package volume decodes the three classic PC/Mac partition-table
// formats — APM, GPT, MBR (with its extended-partition EBR chain) —
// into a uniform slice of Partition records, each exposing its span of
// the underlying media as an fsio.WindowStream.
package volume
