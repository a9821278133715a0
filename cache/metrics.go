package cache

// EvictReason explains why an entry was removed from a cache.
type EvictReason int

const (
	// EvictLRU means the entry was removed because the entry count limit was exceeded.
	EvictLRU EvictReason = iota
	// EvictMemory means the entry was removed because the byte budget was exceeded.
	EvictMemory
	// EvictExpired means the entry was removed because the entry's TTL elapsed.
	EvictExpired
	// EvictOptimize means the entry was removed by a pressure-driven Optimize pass.
	EvictOptimize
)

// String returns a stable label for the reason.
func (r EvictReason) String() string {
	switch r {
	case EvictLRU:
		return "lru"
	case EvictMemory:
		return "memory"
	case EvictExpired:
		return "expired"
	case EvictOptimize:
		return "optimize"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int, bytes int64)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when no
// observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                        {}
func (NoopMetrics) Miss()                       {}
func (NoopMetrics) Evict(EvictReason)           {}
func (NoopMetrics) Size(entries int, bytes int64) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
