package loader

import (
	"context"
	"sync"
	"time"
)

// State is a task's position in its lifecycle. Loaded, Failed and Cancelled
// are terminal.
type State uint8

const (
	// StatePending means the task is queued, awaiting a concurrency slot.
	StatePending State = iota

	// StateLoading means the task holds a slot and is fetching or decoding.
	StateLoading

	// StateLoaded means the task completed and carries a Resource.
	StateLoaded

	// StateFailed means the task exhausted its retries or hit a
	// non-retryable error.
	StateFailed

	// StateCancelled means the task was cancelled before completing.
	StateCancelled
)

// String returns a lowercase state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateLoaded || s == StateFailed || s == StateCancelled
}

// Progress describes how far a fetch has advanced. Total is -1 when the
// response carries no content length, in which case Percentage and
// Remaining are zero.
type Progress struct {
	// Loaded is the byte count received so far.
	Loaded int64

	// Total is the expected byte count, or -1 when unknown.
	Total int64

	// Percentage is Loaded/Total in [0, 100], 0 when Total is unknown.
	Percentage float64

	// Speed is the observed transfer rate in bytes per second.
	Speed float64

	// Remaining estimates time to completion from Speed, 0 when unknown.
	Remaining time.Duration
}

// Resource is the decoded result of a completed load.
type Resource struct {
	// ID is the task identifier the resource was loaded under.
	ID string

	// URL is the resolved source location.
	URL string

	// Kind is the resource kind the payload was decoded as.
	Kind Kind

	// Data holds the decoded payload: *ImageData, *FontData, *SVGData,
	// []byte, the unmarshalled JSON value, or the audio decoder's output.
	Data any

	// Size is the fetched payload size in bytes.
	Size int64

	// LoadTime is the wall time from admission to completion.
	LoadTime time.Duration
}

// Task tracks one load from submission to a terminal state. Waiters share
// the task through its done channel; exactly one fetch runs per task.
type Task struct {
	config Config
	seq    uint64

	mu       sync.Mutex
	state    State
	progress Progress
	resource *Resource
	err      error
	start    time.Time
	end      time.Time
	cancel   context.CancelFunc

	done chan struct{}
}

func newTask(cfg Config, seq uint64, now time.Time) *Task {
	return &Task{
		config: cfg,
		seq:    seq,
		state:  StatePending,
		start:  now,
		done:   make(chan struct{}),
	}
}

// ID returns the task's identifier.
func (t *Task) ID() string { return t.config.ID }

// Config returns the normalized load configuration.
func (t *Task) Config() Config { return t.config }

// State returns the task's current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns a snapshot of the task's transfer progress.
func (t *Task) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Err returns the terminal error, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done returns a channel closed when the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// result returns the task's outcome. Valid only after done is closed.
func (t *Task) result() (*Resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resource, t.err
}

// wait blocks until the task finishes or the caller's context expires. The
// task keeps running when the caller gives up; other waiters may still
// want the result.
func (t *Task) wait(ctx context.Context) (*Resource, error) {
	select {
	case <-t.done:
		return t.result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// setLoading transitions Pending -> Loading and installs the in-flight
// cancel func. Reports false when the task is no longer Pending.
func (t *Task) setLoading(cancel context.CancelFunc, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StatePending {
		return false
	}
	t.state = StateLoading
	t.start = now
	t.cancel = cancel
	return true
}

// setProgress records transfer progress.
func (t *Task) setProgress(p Progress) {
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
}

// finish moves the task to a terminal state and wakes every waiter.
// Subsequent calls are no-ops, so a cancel racing a completion settles on
// whichever got there first.
func (t *Task) finish(state State, res *Resource, err error, now time.Time) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = state
	t.resource = res
	t.err = err
	t.end = now
	if res != nil {
		t.progress.Percentage = 100
	}
	t.mu.Unlock()
	close(t.done)
	return true
}

// abort invokes the in-flight cancel func, if one is installed.
func (t *Task) abort() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Info is a copyable snapshot of a task for diagnostics.
type Info struct {
	ID       string
	URL      string
	Kind     Kind
	State    State
	Progress Progress
	Err      error
}

// info builds a snapshot under the task lock.
func (t *Task) info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:       t.config.ID,
		URL:      t.config.URL,
		Kind:     t.config.Kind,
		State:    t.state,
		Progress: t.progress,
		Err:      t.err,
	}
}
