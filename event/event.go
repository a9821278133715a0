// Package event provides a synchronous per-event callback registry used for
// cross-component notification inside the resource core.
//
// Emit dispatches to every listener registered for the event name, in
// registration order, on the calling goroutine. Each listener is invoked at
// most once per Emit. Listeners must be fast and must not block; long-running
// work belongs on a separate goroutine owned by the listener.
package event

import (
	"sync"
)

// DefaultMaxListeners bounds the number of listeners per event name.
// Exceeding it indicates a listener leak rather than legitimate fan-out.
const DefaultMaxListeners = 64

// Listener receives the payload passed to Emit.
type Listener func(payload any)

// Disposable unsubscribes the listener it was returned for.
// Calling it more than once is a no-op.
type Disposable func()

// Emitter is a synchronous publish/subscribe registry keyed by event name.
//
// Emitter is safe for concurrent use. Listeners registered during an Emit
// for the same event are not invoked by that Emit.
type Emitter struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]handler
	max      int
}

// handler pairs a listener with a registration id so Off/Disposable can
// remove exactly the registration they refer to.
type handler struct {
	id   uint64
	fn   Listener
	once bool
}

// NewEmitter creates an emitter with the default per-event listener limit.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]handler),
		max:      DefaultMaxListeners,
	}
}

// On registers a listener for the named event and returns a Disposable that
// removes it. Returns a nil Disposable and false when the per-event listener
// limit is exceeded.
func (e *Emitter) On(name string, fn Listener) (Disposable, bool) {
	return e.add(name, fn, false)
}

// Once registers a listener that is removed after its first invocation.
func (e *Emitter) Once(name string, fn Listener) (Disposable, bool) {
	return e.add(name, fn, true)
}

func (e *Emitter) add(name string, fn Listener, once bool) (Disposable, bool) {
	if fn == nil {
		return nil, false
	}

	e.mu.Lock()
	if len(e.handlers[name]) >= e.max {
		e.mu.Unlock()
		return nil, false
	}
	e.nextID++
	id := e.nextID
	e.handlers[name] = append(e.handlers[name], handler{id: id, fn: fn, once: once})
	e.mu.Unlock()

	var onceGuard sync.Once
	return func() {
		onceGuard.Do(func() { e.remove(name, id) })
	}, true
}

// remove deletes the registration with the given id, if still present.
func (e *Emitter) remove(name string, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	hs := e.handlers[name]
	for i, h := range hs {
		if h.id == id {
			e.handlers[name] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// OffAll removes every listener registered for the named event.
func (e *Emitter) OffAll(name string) {
	e.mu.Lock()
	delete(e.handlers, name)
	e.mu.Unlock()
}

// ListenerCount returns the number of listeners for the named event.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}

// Emit synchronously invokes every listener registered for the named event.
// The snapshot taken under the lock guarantees at most one dispatch per
// listener per Emit, even if listeners unsubscribe concurrently.
func (e *Emitter) Emit(name string, payload any) {
	e.mu.Lock()
	hs := e.handlers[name]
	if len(hs) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]handler, len(hs))
	copy(snapshot, hs)

	// Drop once-listeners before dispatch so a reentrant Emit from inside a
	// listener cannot fire them twice.
	kept := hs[:0]
	for _, h := range hs {
		if !h.once {
			kept = append(kept, h)
		}
	}
	e.handlers[name] = kept
	e.mu.Unlock()

	for _, h := range snapshot {
		h.fn(payload)
	}
}
