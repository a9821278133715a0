// Package cache provides the memory-bounded, TTL-aware LRU cache family
// backing the resource core.
//
// Three layers build on each other:
//
//   - LRUCache: generic cache with byte-size accounting, per-entry TTL,
//     true least-recently-accessed eviction, and a recency+frequency+size
//     scoring pass (Optimize) for pressure response.
//   - GPUResourceCache: an LRUCache that disposes evicted or cleared values
//     holding GPU-side state (anything implementing Disposer).
//   - MemoryAwareLRUCache: an LRUCache that samples ambient memory pressure
//     and reactively tightens its working set.
//
// All caches are safe for concurrent use and keep two invariants at all
// times: an entry is in the backing map iff it is a node in the LRU list,
// and the sum of entry sizes equals the reported used bytes.
package cache
