package skycanvas

import (
	"sync"

	"github.com/echoVic/sky-canvas-sub001/loader"
)

// ResourceRef is a counted handle to a loaded resource. Reference counting
// is cooperative bookkeeping: it governs when the manager's tracking entry
// becomes garbage-collectible, not when the cached value is evicted. Cache
// residency is decided independently by the owning cache's TTL, LRU, and
// memory pressure.
//
// When the count reaches zero the ref is flagged GC-eligible; the next
// Manager.ForceGC pass (or background GC) consumes the flag and drops the
// tracking entry. Re-acquiring the ref before that pass clears the flag.
type ResourceRef struct {
	id   string
	url  string
	kind loader.Kind
	data any
	size int64

	mu       sync.Mutex
	cached   bool
	refCount int
	eligible bool
	dispose  func()
}

// ID returns the resource identifier.
func (r *ResourceRef) ID() string { return r.id }

// URL returns the source location the resource was loaded from.
func (r *ResourceRef) URL() string { return r.url }

// Kind returns the resource kind.
func (r *ResourceRef) Kind() loader.Kind { return r.kind }

// Data returns the decoded payload.
func (r *ResourceRef) Data() any { return r.data }

// Size returns the resource's accounted size in bytes.
func (r *ResourceRef) Size() int64 { return r.size }

// Cached reports whether the value was served from a cache rather than
// freshly loaded.
func (r *ResourceRef) Cached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cached
}

// AddRef increments the reference count and returns the new count. A
// GC-eligible ref becomes live again.
func (r *ResourceRef) AddRef() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCount++
	r.eligible = false
	return r.refCount
}

// Release decrements the reference count and returns the new count. At
// zero the ref is flagged GC-eligible; the tracking entry survives until a
// GC pass consumes the flag. Releasing a zero-count ref is a no-op.
func (r *ResourceRef) Release() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refCount == 0 {
		return 0
	}
	r.refCount--
	if r.refCount == 0 {
		r.eligible = true
	}
	return r.refCount
}

// RefCount returns the current reference count.
func (r *ResourceRef) RefCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}

// GCEligible reports whether the ref's count has dropped to zero and the
// tracking entry may be dropped by the next GC pass.
func (r *ResourceRef) GCEligible() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eligible
}

// Dispose invokes the ref's dispose hook, which purges the resource from
// the manager's caches. Idempotent.
func (r *ResourceRef) Dispose() {
	r.mu.Lock()
	dispose := r.dispose
	r.dispose = nil
	r.mu.Unlock()
	if dispose != nil {
		dispose()
	}
}
