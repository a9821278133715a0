package skycanvas

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/echoVic/sky-canvas-sub001/cache"
	"github.com/echoVic/sky-canvas-sub001/event"
	"github.com/echoVic/sky-canvas-sub001/loader"
)

// Event names emitted by the Manager.
const (
	// EventResourceLoaded fires after a fresh load completes, with the
	// *ResourceRef payload.
	EventResourceLoaded = "resource-loaded"

	// EventResourceCached fires when a load is served from cache, with the
	// *ResourceRef payload.
	EventResourceCached = "resource-cached"

	// EventGCComplete fires after ForceGC, with a GCResult payload.
	EventGCComplete = "gc-complete"
)

// GCResult aggregates what a ForceGC pass reclaimed.
type GCResult struct {
	FreedBytes   int64
	ItemsRemoved int
	RefsDropped  int
}

// RefStats summarizes the manager's reference bookkeeping.
type RefStats struct {
	// Total is the number of tracking entries.
	Total int

	// Active is the number of refs with a non-zero count.
	Active int

	// Orphaned is the number of zero-count, GC-eligible refs.
	Orphaned int
}

// ManagerStats aggregates loader, cache, and reference state.
type ManagerStats struct {
	Loader  loader.Stats
	Generic cache.MemoryStats
	GPU     cache.MemoryStats
	Refs    RefStats

	// HitRate is the combined cache hit rate.
	HitRate float64

	// MemoryEfficiency is HitRate over combined utilization; higher means
	// the resident bytes are earning their keep.
	MemoryEfficiency float64
}

// ManagerOptions configures a Manager. Zero values are safe.
type ManagerOptions struct {
	// Loader overrides the resource loader. Nil builds one with defaults.
	Loader *loader.Loader

	// Generic configures the plain-value cache.
	Generic cache.Options[any]

	// GPU configures the disposing cache for GPU-shaped values.
	GPU cache.Options[any]

	// Logger receives diagnostics. Nil uses the package logger.
	Logger *slog.Logger
}

// Manager orchestrates the loader and the generic/GPU caches behind
// reference-counted handles. Values whose decoded payload implements
// cache.Disposer live in the GPU cache, which disposes them on eviction;
// everything else lives in the generic cache.
//
// Manager is safe for concurrent use.
type Manager struct {
	loader  *loader.Loader
	generic *cache.LRUCache[any]
	gpu     *cache.GPUResourceCache[any]

	mu   sync.Mutex
	refs map[string]*ResourceRef

	emitter *event.Emitter
	logger  *slog.Logger

	closeOnce sync.Once
}

// NewManager creates a resource manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = Logger()
	}
	if opts.Generic.Logger == nil {
		opts.Generic.Logger = logger
	}
	if opts.GPU.Logger == nil {
		opts.GPU.Logger = logger
	}
	ldr := opts.Loader
	if ldr == nil {
		ldr = loader.New(loader.Options{Logger: logger})
	}

	return &Manager{
		loader:  ldr,
		generic: cache.New(opts.Generic),
		gpu:     cache.NewGPU(opts.GPU),
		refs:    make(map[string]*ResourceRef),
		emitter: event.NewEmitter(),
		logger:  logger,
	}
}

// Events returns the manager's event emitter.
func (m *Manager) Events() *event.Emitter { return m.emitter }

// Loader returns the underlying resource loader.
func (m *Manager) Loader() *loader.Loader { return m.loader }

// GenericCache returns the plain-value cache.
func (m *Manager) GenericCache() *cache.LRUCache[any] { return m.generic }

// GPUCache returns the disposing cache.
func (m *Manager) GPUCache() *cache.GPUResourceCache[any] { return m.gpu }

// Load returns a counted handle to the resource, serving from cache when
// resident and delegating to the loader on miss. The handle starts with a
// count of one; callers pair it with Release.
func (m *Manager) Load(ctx context.Context, cfg loader.Config) (*ResourceRef, error) {
	id := cfg.ID
	if id == "" {
		id = cfg.URL
	}

	if ref := m.cachedRef(id, cfg); ref != nil {
		m.emitter.Emit(EventResourceCached, ref)
		return ref, nil
	}

	res, err := m.loader.Load(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("skycanvas: load %q: %w", id, err)
	}

	ref := m.adopt(res, false)
	m.emitter.Emit(EventResourceLoaded, ref)
	return ref, nil
}

// cachedRef serves a load from the caches, reusing or rebuilding the
// tracking entry. Returns nil on miss.
func (m *Manager) cachedRef(id string, cfg loader.Config) *ResourceRef {
	// Route the counting lookup by residency so a generic-cache hit does
	// not register a miss against the GPU cache and skew its hit rate.
	var value any
	var ok bool
	if m.gpu.Has(id) {
		value, ok = m.gpu.Get(id)
	} else {
		value, ok = m.generic.Get(id)
	}
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ref, tracked := m.refs[id]; tracked {
		ref.AddRef()
		ref.mu.Lock()
		ref.cached = true
		ref.mu.Unlock()
		return ref
	}

	// Value resident but the tracking entry was GC'd: rebuild it.
	ref := m.newRefLocked(id, cfg.URL, cfg.Kind, value, 0, true)
	return ref
}

// adopt caches a freshly loaded resource and builds its tracking entry.
func (m *Manager) adopt(res *loader.Resource, cached bool) *ResourceRef {
	if _, ok := res.Data.(cache.Disposer); ok {
		m.gpu.Set(res.ID, res.Data, cache.WithSize(res.Size))
	} else {
		m.generic.Set(res.ID, res.Data, cache.WithSize(res.Size))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Concurrent loads of one ID share a fetch but each reach adopt;
	// the tracking entry registered by the first caller stays
	// authoritative and later callers acquire it.
	if ref, ok := m.refs[res.ID]; ok {
		ref.AddRef()
		return ref
	}
	return m.newRefLocked(res.ID, res.URL, res.Kind, res.Data, res.Size, cached)
}

// newRefLocked builds and registers a ref. Caller must hold mu.
func (m *Manager) newRefLocked(id, url string, kind loader.Kind, data any, size int64, cached bool) *ResourceRef {
	ref := &ResourceRef{
		id:       id,
		url:      url,
		kind:     kind,
		data:     data,
		size:     size,
		cached:   cached,
		refCount: 1,
	}
	ref.dispose = func() {
		m.gpu.Delete(id)
		m.generic.Delete(id)
		m.mu.Lock()
		delete(m.refs, id)
		m.mu.Unlock()
	}
	m.refs[id] = ref
	return ref
}

// Get returns the tracking entry for an ID without touching the caches,
// or nil when none exists.
func (m *Manager) Get(id string) *ResourceRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs[id]
}

// ReleaseResource decrements the resource's reference count. At zero the
// tracking entry becomes eligible for the next GC pass; the cached value
// stays resident under cache policy.
func (m *Manager) ReleaseResource(id string) {
	if ref := m.Get(id); ref != nil {
		ref.Release()
	}
}

// ForceRelease purges the resource from both caches and drops its
// tracking entry immediately, regardless of reference count.
func (m *Manager) ForceRelease(id string) {
	m.mu.Lock()
	ref := m.refs[id]
	m.mu.Unlock()

	if ref != nil {
		ref.Dispose()
		return
	}
	// No tracking entry; the value may still be resident.
	m.gpu.Delete(id)
	m.generic.Delete(id)
}

// Preload warms the caches for the given configs at background priority.
// Failures are logged and swallowed; successful values are cached with a
// zero-count, GC-eligible tracking entry.
func (m *Manager) Preload(ctx context.Context, cfgs []loader.Config) {
	for _, cfg := range cfgs {
		res := m.loader.Preload(ctx, cfg)
		if res == nil {
			continue
		}
		ref := m.adopt(res, false)
		ref.Release()
	}
}

// ForceGC drops GC-eligible tracking entries, then sweeps both caches for
// expired values, and emits gc-complete with the aggregate.
func (m *Manager) ForceGC() GCResult {
	var result GCResult

	m.mu.Lock()
	for id, ref := range m.refs {
		if ref.GCEligible() {
			delete(m.refs, id)
			result.RefsDropped++
		}
	}
	m.mu.Unlock()

	freed, removed := m.generic.ForceGC()
	result.FreedBytes += freed
	result.ItemsRemoved += removed

	freed, removed = m.gpu.ForceGC()
	result.FreedBytes += freed
	result.ItemsRemoved += removed

	if m.logger != nil {
		m.logger.Debug("resource gc complete",
			"freed", result.FreedBytes, "removed", result.ItemsRemoved,
			"refs_dropped", result.RefsDropped)
	}
	m.emitter.Emit(EventGCComplete, result)
	return result
}

// Stats aggregates loader, cache, and reference-count state.
func (m *Manager) Stats() ManagerStats {
	s := ManagerStats{
		Loader:  m.loader.Stats(),
		Generic: m.generic.GetMemoryStats(),
		GPU:     m.gpu.GetMemoryStats(),
	}

	m.mu.Lock()
	for _, ref := range m.refs {
		s.Refs.Total++
		if ref.RefCount() > 0 {
			s.Refs.Active++
		} else {
			s.Refs.Orphaned++
		}
	}
	m.mu.Unlock()

	// Weight per-cache hit rates by resident entries.
	entries := s.Generic.ItemCount + s.GPU.ItemCount
	if entries > 0 {
		s.HitRate = (s.Generic.HitRate*float64(s.Generic.ItemCount) +
			s.GPU.HitRate*float64(s.GPU.ItemCount)) / float64(entries)
	}
	utilization := (s.Generic.Utilization + s.GPU.Utilization) / 2
	if utilization > 0 {
		s.MemoryEfficiency = s.HitRate / utilization
	}
	return s
}

// Close cancels in-flight loads, disposes and drops every cached value,
// and stops background sweeps. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.loader.CancelAll()
		m.gpu.Clear()
		m.gpu.Close()
		m.generic.Clear()
		m.generic.Close()

		m.mu.Lock()
		m.refs = make(map[string]*ResourceRef)
		m.mu.Unlock()
	})
}
