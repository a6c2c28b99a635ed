// Package bundlecache caches built bundle variants.
//
// Entries are addressed by bundle name, content version and variance key.
// Lookups go through an in-process LRU, then an optional shared [Store], and
// finally the caller's build function. Concurrent misses for the same key
// share one build.
package bundlecache
