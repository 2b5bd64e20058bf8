// Package sigscan implements the multi-pattern signature scanner the
// VFS uses to discover which on-disk format applies at a given offset:
// a scan tree built per pattern class (head-bound, tail-bound,
// unbound), plus a Boyer-Moore-Horspool skip table for the unbound
// class. Build partitions signatures by the byte offset that splits
// them most evenly; scan reports every (offset, signature) match in
// stream order and never fails — only Build can fail, on a pattern
// conflict.
package sigscan
