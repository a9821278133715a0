package skycanvas

import "sync"

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the process-wide Manager, building one with default
// options on first use.
//
// Default is safe for concurrent use.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager(ManagerOptions{})
	}
	return defaultManager
}

// SetDefault replaces the process-wide Manager and closes the previous
// one, if any. Pass nil to reset so the next Default call builds a fresh
// manager; tests use this to isolate state.
func SetDefault(m *Manager) {
	defaultMu.Lock()
	old := defaultManager
	defaultManager = m
	defaultMu.Unlock()

	if old != nil && old != m {
		old.Close()
	}
}
