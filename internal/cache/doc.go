// Package cache provides the generic bounded LRU used by
// fsio.ChunkedStream's decoded-chunk cache and the VFS resolver's
// caches: a fixed-capacity mapping from key to value where
// eviction is strictly insertion-order, not access-order. Get does not
// reorder entries — eviction stays predictable and easy to assert on in
// tests, at the cost of a true recency-based policy.
package cache
