package cache

// Disposer is implemented by cached values holding GPU-side state that must
// be released when the value leaves the cache. Dispose must be idempotent:
// the cache may not be the only party releasing the value.
type Disposer interface {
	Dispose()
}

// GPUResourceCache is an LRUCache that automatically disposes evicted,
// deleted, or cleared values implementing Disposer. Values that do not
// implement Disposer pass through untouched, so the cache can hold mixed
// content.
type GPUResourceCache[V any] struct {
	*LRUCache[V]
}

// NewGPU creates a GPUResourceCache. The configured OnEvict hook, if any,
// runs after the value has been disposed.
func NewGPU[V any](opts Options[V]) *GPUResourceCache[V] {
	user := opts.OnEvict
	opts.OnEvict = func(key string, value V, reason EvictReason) {
		disposeValue(value)
		if user != nil {
			user(key, value, reason)
		}
	}
	return &GPUResourceCache[V]{New(opts)}
}

// Delete removes an entry, disposing its value if it implements Disposer.
// Returns true if the entry was resident.
func (c *GPUResourceCache[V]) Delete(key string) bool {
	value, ok := c.deleteReturning(key)
	if !ok {
		return false
	}
	disposeValue(value)
	return true
}

// Clear removes every entry, disposing each value that implements Disposer.
func (c *GPUResourceCache[V]) Clear() {
	for _, it := range c.clearReturning() {
		disposeValue(it.value)
	}
}

// disposeValue releases the value if it carries the disposal capability.
func disposeValue[V any](value V) {
	if d, ok := any(value).(Disposer); ok {
		d.Dispose()
	}
}
