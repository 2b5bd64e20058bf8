// Package fsio defines the DataStream abstraction and its concrete
// variants (OS-backed, in-memory, partition window, block-mapped,
// compressed-chunk), plus the file-resolver indirection that lets an
// image or file-system decoder open its constituent files without
// touching the OS directly.
//
// Every variant is read-only and safe for concurrent use: each ReadAt
// call is self-contained and positional, so two goroutines reading
// disjoint offsets of the same stream never interfere with each
// other's view.
package fsio
