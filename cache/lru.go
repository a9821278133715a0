package cache

import (
	"container/list"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/echoVic/sky-canvas-sub001/event"
)

// Default configuration values, applied by New for zero Options fields.
const (
	// DefaultMaxItems is the default entry count limit.
	DefaultMaxItems = 1000

	// DefaultMaxMemory is the default byte budget (64 MiB).
	DefaultMaxMemory int64 = 64 * 1024 * 1024

	// DefaultItemSize is charged when no size is given and no SizeOf
	// strategy is configured (1 KiB).
	DefaultItemSize int64 = 1024

	// DefaultGCInterval is the background TTL sweep period.
	DefaultGCInterval = 30 * time.Second

	// DefaultWarnThreshold is the utilization at which a memory-warning
	// event fires.
	DefaultWarnThreshold = 0.85
)

// Event names emitted by the cache family.
const (
	EventHit           = "hit"
	EventMiss          = "miss"
	EventSet           = "set"
	EventEvict         = "evict"
	EventClear         = "clear"
	EventMemoryWarning = "memory-warning"
	EventGC            = "gc"
)

// EvictEvent is the payload of an EventEvict emission.
type EvictEvent struct {
	Key    string
	Size   int64
	Reason EvictReason
}

// GCEvent is the payload of an EventGC emission.
type GCEvent struct {
	FreedBytes   int64
	ItemsRemoved int
}

// MemoryStats is a point-in-time snapshot of cache memory accounting.
type MemoryStats struct {
	// Used is the sum of resident entry sizes in bytes.
	Used int64

	// Limit is the configured byte budget.
	Limit int64

	// Utilization is Used/Limit (0.0 to 1.0+; overshoot is transient).
	Utilization float64

	// ItemCount is the number of resident entries.
	ItemCount int

	// HitRate is hits/(hits+misses) since creation.
	HitRate float64

	// EvictedCount is the total number of entries evicted for any reason.
	EvictedCount uint64
}

// Options configures an LRUCache. Zero values are safe; defaults are
// applied in New.
type Options[V any] struct {
	// MaxItems is the entry count limit. <= 0 uses DefaultMaxItems.
	MaxItems int

	// MaxMemory is the byte budget. <= 0 uses DefaultMaxMemory.
	MaxMemory int64

	// DefaultTTL applies to Set when no per-entry TTL is given (0 = none).
	DefaultTTL time.Duration

	// SizeOf estimates the byte size of a value when Set is called without
	// WithSize. A panicking estimator is recovered and DefaultItemSize is
	// charged instead (logged at Warn).
	SizeOf func(V) int64

	// GCInterval is the background TTL sweep period. 0 uses
	// DefaultGCInterval; < 0 disables the background sweep.
	GCInterval time.Duration

	// WarnThreshold is the utilization at which memory-warning fires.
	// <= 0 uses DefaultWarnThreshold.
	WarnThreshold float64

	// OnEvict is called for every entry removed by eviction, TTL expiry,
	// Optimize, or Clear. It runs outside the cache lock; the entry is
	// already gone when it fires.
	OnEvict func(key string, value V, reason EvictReason)

	// Metrics receives observability callbacks. Nil uses NoopMetrics.
	Metrics Metrics

	// Logger receives diagnostics. Nil is silent.
	Logger *slog.Logger

	// Clock overrides the time source (tests). Nil uses time.Now.
	Clock func() time.Time
}

// item is one cache entry. It lives in the LRU list; the backing map points
// at its list element. The two structures are updated together under the
// cache lock so membership in one always implies membership in the other.
type item[V any] struct {
	key         string
	value       V
	size        int64
	createTime  time.Time
	accessTime  time.Time
	accessCount uint64
	ttl         time.Duration // 0 = no expiry
}

// expired reports whether the entry's TTL has elapsed at now.
// Expiry is measured from creation, not last access.
func (it *item[V]) expired(now time.Time) bool {
	return it.ttl > 0 && now.Sub(it.createTime) > it.ttl
}

// LRUCache is a generic, memory-bounded, TTL-aware cache with true
// least-recently-accessed eviction.
//
// LRUCache is safe for concurrent use. It must not be copied after creation
// and should be Closed when no longer needed to stop the background sweep.
type LRUCache[V any] struct {
	mu sync.Mutex

	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	used    int64

	maxItems  int
	maxMemory int64
	ttl       time.Duration
	sizeOf    func(V) int64
	threshold float64
	onEvict   func(string, V, EvictReason)
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time

	hits    uint64
	misses  uint64
	evicted uint64

	// warned latches the memory-warning so it fires once per threshold
	// crossing, re-arming when utilization drops back below.
	warned bool

	emitter *event.Emitter

	done      chan struct{}
	closeOnce sync.Once
}

// New creates an LRUCache with the given options and starts its background
// TTL sweep (unless disabled via a negative GCInterval).
func New[V any](opts Options[V]) *LRUCache[V] {
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultMaxItems
	}
	if opts.MaxMemory <= 0 {
		opts.MaxMemory = DefaultMaxMemory
	}
	if opts.WarnThreshold <= 0 {
		opts.WarnThreshold = DefaultWarnThreshold
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	interval := opts.GCInterval
	if interval == 0 {
		interval = DefaultGCInterval
	}

	c := &LRUCache[V]{
		entries:   make(map[string]*list.Element),
		lru:       list.New(),
		maxItems:  opts.MaxItems,
		maxMemory: opts.MaxMemory,
		ttl:       opts.DefaultTTL,
		sizeOf:    opts.SizeOf,
		threshold: opts.WarnThreshold,
		onEvict:   opts.OnEvict,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Clock,
		emitter:   event.NewEmitter(),
		done:      make(chan struct{}),
	}

	if interval > 0 {
		go c.gcLoop(interval)
	}
	return c
}

// Events returns the cache's event emitter. Events: hit, miss, set,
// evict (EvictEvent), clear, memory-warning (MemoryStats), gc (GCEvent).
func (c *LRUCache[V]) Events() *event.Emitter { return c.emitter }

// SetOption customizes a single Set call.
type SetOption func(*setConfig)

type setConfig struct {
	size   int64
	hasSz  bool
	ttl    time.Duration
	hasTTL bool
}

// WithSize charges the entry the given byte size instead of consulting the
// SizeOf strategy.
func WithSize(size int64) SetOption {
	return func(sc *setConfig) { sc.size = size; sc.hasSz = true }
}

// WithTTL gives the entry its own TTL, overriding the cache default.
// Zero disables expiry for the entry.
func WithTTL(ttl time.Duration) SetOption {
	return func(sc *setConfig) { sc.ttl = ttl; sc.hasTTL = true }
}

// Get returns the cached value and marks it most recently used.
// A TTL-expired entry is removed and counted as a miss.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		c.metrics.Miss()
		c.emitter.Emit(EventMiss, key)
		var zero V
		return zero, false
	}

	it := elem.Value.(*item[V])
	now := c.now()
	if it.expired(now) {
		c.removeLocked(elem)
		c.evicted++
		c.misses++
		c.mu.Unlock()
		c.metrics.Miss()
		c.metrics.Evict(EvictExpired)
		c.notifyEvict(it, EvictExpired)
		c.emitter.Emit(EventMiss, key)
		var zero V
		return zero, false
	}

	it.accessTime = now
	it.accessCount++
	c.lru.MoveToFront(elem)
	c.hits++
	value := it.value
	c.mu.Unlock()

	c.metrics.Hit()
	c.emitter.Emit(EventHit, key)
	return value, true
}

// Set inserts or overwrites an entry and then enforces the count and byte
// limits, evicting from the least-recently-accessed tail.
func (c *LRUCache[V]) Set(key string, value V, opts ...SetOption) {
	var sc setConfig
	for _, o := range opts {
		o(&sc)
	}

	size := sc.size
	if !sc.hasSz {
		size = c.estimateSize(value)
	}
	ttl := c.ttl
	if sc.hasTTL {
		ttl = sc.ttl
	}

	now := c.now()

	c.mu.Lock()
	if elem, ok := c.entries[key]; ok {
		it := elem.Value.(*item[V])
		c.used += size - it.size
		it.value = value
		it.size = size
		it.ttl = ttl
		it.createTime = now
		it.accessTime = now
		c.lru.MoveToFront(elem)
	} else {
		it := &item[V]{
			key:        key,
			value:      value,
			size:       size,
			createTime: now,
			accessTime: now,
			ttl:        ttl,
		}
		c.entries[key] = c.lru.PushFront(it)
		c.used += size
	}

	evictedItems := c.enforceLimitsLocked()
	stats := c.statsLocked()
	c.mu.Unlock()

	c.metrics.Size(stats.ItemCount, stats.Used)
	c.emitter.Emit(EventSet, key)
	for _, ev := range evictedItems {
		c.metrics.Evict(ev.reason)
		c.notifyEvict(ev.it, ev.reason)
	}
	c.maybeWarn(stats)
}

// evictedItem pairs a removed entry with its eviction reason for dispatch
// after the lock is dropped.
type evictedItem[V any] struct {
	it     *item[V]
	reason EvictReason
}

// enforceLimitsLocked evicts the LRU tail while either limit is exceeded.
// Caller must hold mu.
func (c *LRUCache[V]) enforceLimitsLocked() []evictedItem[V] {
	var out []evictedItem[V]
	for c.lru.Len() > c.maxItems {
		it := c.evictTailLocked()
		if it == nil {
			break
		}
		out = append(out, evictedItem[V]{it, EvictLRU})
	}
	for c.used > c.maxMemory && c.lru.Len() > 0 {
		it := c.evictTailLocked()
		if it == nil {
			break
		}
		out = append(out, evictedItem[V]{it, EvictMemory})
	}
	return out
}

// evictTailLocked removes and returns the least-recently-used entry.
func (c *LRUCache[V]) evictTailLocked() *item[V] {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	it := elem.Value.(*item[V])
	c.removeLocked(elem)
	c.evicted++
	return it
}

// removeLocked unlinks an element from both structures and adjusts used.
// Dropping below the warning threshold re-arms the memory-warning latch.
func (c *LRUCache[V]) removeLocked(elem *list.Element) {
	it := elem.Value.(*item[V])
	c.lru.Remove(elem)
	delete(c.entries, it.key)
	c.used -= it.size
	if c.warned && float64(c.used) < c.threshold*float64(c.maxMemory) {
		c.warned = false
	}
}

// notifyEvict fires the OnEvict hook and evict event for a removed entry.
func (c *LRUCache[V]) notifyEvict(it *item[V], reason EvictReason) {
	if c.onEvict != nil {
		c.onEvict(it.key, it.value, reason)
	}
	c.emitter.Emit(EventEvict, EvictEvent{Key: it.key, Size: it.size, Reason: reason})
}

// maybeWarn fires memory-warning once per threshold crossing.
func (c *LRUCache[V]) maybeWarn(stats MemoryStats) {
	c.mu.Lock()
	fire := false
	if stats.Utilization >= c.threshold {
		if !c.warned {
			c.warned = true
			fire = true
		}
	} else {
		c.warned = false
	}
	c.mu.Unlock()

	if fire {
		if c.logger != nil {
			c.logger.Warn("cache memory utilization above threshold",
				"used", stats.Used, "limit", stats.Limit, "utilization", stats.Utilization)
		}
		c.emitter.Emit(EventMemoryWarning, stats)
	}
}

// estimateSize consults the SizeOf strategy, falling back to
// DefaultItemSize when it is absent or panics.
func (c *LRUCache[V]) estimateSize(value V) (size int64) {
	if c.sizeOf == nil {
		return DefaultItemSize
	}
	defer func() {
		if r := recover(); r != nil {
			if c.logger != nil {
				c.logger.Warn("size estimator panicked, charging default", "panic", r)
			}
			size = DefaultItemSize
		}
	}()
	size = c.sizeOf(value)
	if size <= 0 {
		size = DefaultItemSize
	}
	return size
}

// Has reports whether the key is resident and unexpired, without touching
// recency.
func (c *LRUCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	return !elem.Value.(*item[V]).expired(c.now())
}

// Delete removes an entry. Returns true if it was resident.
func (c *LRUCache[V]) Delete(key string) bool {
	_, ok := c.deleteReturning(key)
	return ok
}

// deleteReturning removes an entry and returns its value. Used by
// in-package specializations that must act on deleted values.
func (c *LRUCache[V]) deleteReturning(key string) (V, bool) {
	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	value := elem.Value.(*item[V]).value
	c.removeLocked(elem)
	stats := c.statsLocked()
	c.mu.Unlock()

	c.metrics.Size(stats.ItemCount, stats.Used)
	return value, true
}

// UpdateTTL replaces the TTL of a resident entry, restarting its expiry
// clock. Returns false if the key is absent.
func (c *LRUCache[V]) UpdateTTL(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	it := elem.Value.(*item[V])
	it.ttl = ttl
	it.createTime = c.now()
	return true
}

// Keys returns a snapshot of resident keys in most-recently-used order.
func (c *LRUCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*item[V]).key)
	}
	return keys
}

// Values returns a snapshot of resident values in most-recently-used order.
func (c *LRUCache[V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	values := make([]V, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		values = append(values, elem.Value.(*item[V]).value)
	}
	return values
}

// Clear removes every entry. OnEvict hooks are not called on Clear; use
// GPUResourceCache for disposal-on-clear semantics.
func (c *LRUCache[V]) Clear() {
	c.clearReturning()
}

// clearReturning empties the cache and returns the removed items. Used by
// in-package specializations that must act on cleared values.
func (c *LRUCache[V]) clearReturning() []*item[V] {
	c.mu.Lock()
	cleared := c.drainLocked()
	c.mu.Unlock()

	c.metrics.Size(0, 0)
	c.emitter.Emit(EventClear, nil)
	return cleared
}

// drainLocked empties both structures and returns the removed items.
func (c *LRUCache[V]) drainLocked() []*item[V] {
	items := make([]*item[V], 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		items = append(items, elem.Value.(*item[V]))
	}
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.used = 0
	c.warned = false
	return items
}

// Len returns the number of resident entries.
func (c *LRUCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// UsedBytes returns the sum of resident entry sizes.
func (c *LRUCache[V]) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// GetMemoryStats returns a snapshot of cache accounting.
func (c *LRUCache[V]) GetMemoryStats() MemoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// statsLocked builds a MemoryStats snapshot. Caller must hold mu.
func (c *LRUCache[V]) statsLocked() MemoryStats {
	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	var utilization float64
	if c.maxMemory > 0 {
		utilization = float64(c.used) / float64(c.maxMemory)
	}
	return MemoryStats{
		Used:         c.used,
		Limit:        c.maxMemory,
		Utilization:  utilization,
		ItemCount:    c.lru.Len(),
		HitRate:      hitRate,
		EvictedCount: c.evicted,
	}
}

// ForceGC sweeps every entry for TTL expiry irrespective of recency and
// reports what was freed. Safe to call concurrently with the background
// sweep; each pass recomputes candidates from current state.
func (c *LRUCache[V]) ForceGC() (freedBytes int64, itemsRemoved int) {
	now := c.now()

	c.mu.Lock()
	var removed []*item[V]
	for elem := c.lru.Front(); elem != nil; {
		next := elem.Next()
		it := elem.Value.(*item[V])
		if it.expired(now) {
			c.removeLocked(elem)
			c.evicted++
			removed = append(removed, it)
			freedBytes += it.size
		}
		elem = next
	}
	stats := c.statsLocked()
	c.mu.Unlock()

	for _, it := range removed {
		c.metrics.Evict(EvictExpired)
		c.notifyEvict(it, EvictExpired)
	}
	c.metrics.Size(stats.ItemCount, stats.Used)
	itemsRemoved = len(removed)
	c.emitter.Emit(EventGC, GCEvent{FreedBytes: freedBytes, ItemsRemoved: itemsRemoved})
	return freedBytes, itemsRemoved
}

// Optimize evicts the worst-scoring entries until utilization is at or
// below target. The score weighs staleness against access frequency and
// size, so rarely-touched large entries go first:
//
//	ageSinceAccess/(accessCount+1) + size*0.1
//
// Returns the bytes freed and entries removed.
func (c *LRUCache[V]) Optimize(targetUtilization float64) (freedBytes int64, itemsRemoved int) {
	if targetUtilization <= 0 || targetUtilization >= 1 {
		return 0, 0
	}
	targetBytes := int64(float64(c.maxMemory) * targetUtilization)
	now := c.now()

	c.mu.Lock()
	if c.used <= targetBytes {
		c.mu.Unlock()
		return 0, 0
	}

	type scored struct {
		elem  *list.Element
		score float64
	}
	candidates := make([]scored, 0, c.lru.Len())
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		it := elem.Value.(*item[V])
		age := float64(now.Sub(it.accessTime).Milliseconds())
		score := age/float64(it.accessCount+1) + float64(it.size)*0.1
		candidates = append(candidates, scored{elem, score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var removed []*item[V]
	for _, cand := range candidates {
		if c.used <= targetBytes {
			break
		}
		it := cand.elem.Value.(*item[V])
		c.removeLocked(cand.elem)
		c.evicted++
		removed = append(removed, it)
		freedBytes += it.size
	}
	stats := c.statsLocked()
	c.mu.Unlock()

	for _, it := range removed {
		c.metrics.Evict(EvictOptimize)
		c.notifyEvict(it, EvictOptimize)
	}
	c.metrics.Size(stats.ItemCount, stats.Used)
	if c.logger != nil && len(removed) > 0 {
		c.logger.Debug("cache optimize pass",
			"target", targetUtilization, "freed", freedBytes, "removed", len(removed))
	}
	return freedBytes, len(removed)
}

// gcLoop periodically sweeps expired entries until Close.
//
// A ticker-driven full scan keeps ownership simple: no per-entry timers,
// and every pass recomputes candidates from current state so interleaving
// with explicit ForceGC calls is harmless.
func (c *LRUCache[V]) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.ForceGC()
		}
	}
}

// Close stops the background sweep. The cache remains usable; Close only
// releases the maintenance goroutine.
func (c *LRUCache[V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
