// Package loader downloads and decodes resources with priority-ordered
// admission, per-ID deduplication, retry with exponential backoff, and
// cooperative cancellation.
//
// A Loader admits queued tasks highest-priority first while holding the
// concurrent-fetch count under its limit; already-running tasks are never
// preempted. Concurrent Load calls sharing an ID attach to the same task
// and share one underlying fetch.
package loader

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echoVic/sky-canvas-sub001/event"
)

// Loader errors.
var (
	// ErrCancelled is returned by loads cancelled through Cancel or
	// CancelAll.
	ErrCancelled = errors.New("loader: cancelled")

	// ErrUnsupportedKind is returned for configs naming no decode
	// strategy. Never retried.
	ErrUnsupportedKind = errors.New("loader: unsupported resource kind")

	// ErrNoAudioDecoder is returned for KindAudio loads when no
	// AudioDecoder was configured.
	ErrNoAudioDecoder = errors.New("loader: no audio decoder configured")
)

// Defaults applied by Config.normalize and New.
const (
	// DefaultPriority is the admission priority for configs that leave
	// Priority zero.
	DefaultPriority = 50

	// DefaultTimeout bounds a single task's fetch and decode.
	DefaultTimeout = 30 * time.Second

	// DefaultRetries is how many times a transient failure is retried.
	DefaultRetries = 3

	// DefaultMaxConcurrent is the concurrent fetch limit.
	DefaultMaxConcurrent = 4

	// DefaultRetryBaseDelay scales the exponential retry backoff.
	DefaultRetryBaseDelay = time.Second

	// PreloadPriority is the ceiling applied to Preload admissions.
	PreloadPriority = 10
)

// Event names emitted by the loader.
const (
	// EventProgress fires per received chunk with a ProgressEvent payload.
	EventProgress = "loading-progress"

	// EventBatchProgress fires as batch members advance, with a
	// BatchProgressEvent payload holding the mean member percentage.
	EventBatchProgress = "batch-progress"

	// EventBatchComplete fires when a LoadBatch finishes, with a
	// BatchResult payload.
	EventBatchComplete = "batch-complete"
)

// ProgressEvent is the EventProgress payload.
type ProgressEvent struct {
	ID       string
	Progress Progress
}

// BatchProgressEvent is the EventBatchProgress payload.
type BatchProgressEvent struct {
	Count      int
	Percentage float64
}

// BatchResult is the EventBatchComplete payload and LoadBatch summary.
type BatchResult struct {
	Count  int
	Loaded int
	Failed int
}

// Config describes one resource to load. Zero fields take defaults.
type Config struct {
	// ID deduplicates loads; empty uses the URL.
	ID string

	// URL is the resource location.
	URL string

	// Kind selects the decode strategy.
	Kind Kind

	// Priority orders queue admission, higher first. 0 uses
	// DefaultPriority.
	Priority int

	// Timeout bounds the whole task including retries. 0 uses
	// DefaultTimeout; negative disables the bound.
	Timeout time.Duration

	// Retries is how many times transient failures are retried, for
	// Retries+1 total attempts. 0 uses DefaultRetries; negative disables
	// retrying.
	Retries int

	// Headers are added to the request.
	Headers map[string]string

	// Credentials, when set, is sent as the Authorization header.
	Credentials string
}

// normalize fills defaulted fields.
func (c Config) normalize() Config {
	if c.ID == "" {
		c.ID = c.URL
	}
	if c.Priority == 0 {
		c.Priority = DefaultPriority
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	switch {
	case c.Retries == 0:
		c.Retries = DefaultRetries
	case c.Retries < 0:
		c.Retries = 0
	}
	return c
}

// Transport issues the loader's HTTP requests. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Loader. Zero values are safe.
type Options struct {
	// MaxConcurrent is the concurrent fetch limit. <= 0 uses
	// DefaultMaxConcurrent.
	MaxConcurrent int

	// Transport issues HTTP requests. Nil uses http.DefaultClient.
	Transport Transport

	// AudioDecoder handles KindAudio payloads. Nil fails audio loads.
	AudioDecoder AudioDecoder

	// RetryBaseDelay scales the 2^attempt backoff. <= 0 uses
	// DefaultRetryBaseDelay.
	RetryBaseDelay time.Duration

	// Logger receives diagnostics. Nil is silent.
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of loader counters.
type Stats struct {
	Loaded      uint64
	Failed      uint64
	Cancelled   uint64
	Active      int
	Queued      int
	AvgLoadTime time.Duration
}

// Loader is a priority-admitting, deduplicating resource loader. It is
// safe for concurrent use.
type Loader struct {
	maxConcurrent int
	transport     Transport
	audio         AudioDecoder
	retryBase     time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*Task
	queue   taskQueue
	running int
	seq     uint64

	loaded    uint64
	failed    uint64
	cancelled uint64
	totalLoad time.Duration

	emitter *event.Emitter
}

// New creates a loader.
func New(opts Options) *Loader {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultClient
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return &Loader{
		maxConcurrent: opts.MaxConcurrent,
		transport:     opts.Transport,
		audio:         opts.AudioDecoder,
		retryBase:     opts.RetryBaseDelay,
		logger:        opts.Logger,
		tasks:         make(map[string]*Task),
		emitter:       event.NewEmitter(),
	}
}

// Events returns the loader's event emitter.
func (l *Loader) Events() *event.Emitter { return l.emitter }

// Load fetches and decodes one resource, blocking until the task reaches a
// terminal state or ctx expires. Calls sharing an ID attach to the same
// task: an in-flight task gains a waiter, a Loaded task returns its
// Resource without refetching. Failed and Cancelled tasks are replaced by
// a fresh attempt.
func (l *Loader) Load(ctx context.Context, cfg Config) (*Resource, error) {
	cfg = cfg.normalize()
	if !cfg.Kind.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKind, cfg.Kind)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("loader: config %q has no URL", cfg.ID)
	}

	t := l.admit(cfg)
	return t.wait(ctx)
}

// admit returns the shareable task for the config, creating and queueing
// one when no live task exists.
func (l *Loader) admit(cfg Config) *Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.tasks[cfg.ID]; ok {
		switch t.State() {
		case StateFailed, StateCancelled:
			// Terminal failures do not poison the ID; fall through to a
			// fresh task.
		default:
			return t
		}
	}

	l.seq++
	t := newTask(cfg, l.seq, time.Now())
	l.tasks[cfg.ID] = t
	heap.Push(&l.queue, t)
	l.pumpLocked()
	return t
}

// pumpLocked admits queued tasks while fetch slots remain. Caller must
// hold mu. Tasks cancelled while queued are discarded here.
func (l *Loader) pumpLocked() {
	for l.running < l.maxConcurrent && l.queue.Len() > 0 {
		t := heap.Pop(&l.queue).(*Task)
		if t.State() != StatePending {
			continue
		}
		l.running++
		go l.run(t)
	}
}

// run executes one task to a terminal state, then frees its slot and pumps
// the queue.
func (l *Loader) run(t *Task) {
	cfg := t.Config()

	ctx := context.Background()
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	start := time.Now()
	if !t.setLoading(cancel, start) {
		// Cancelled between pop and start.
		l.settle(t, StateCancelled, nil, ErrCancelled)
		return
	}

	res, err := l.execute(ctx, t)
	switch {
	case err == nil:
		res.LoadTime = time.Since(start)
		l.settle(t, StateLoaded, res, nil)
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		l.settle(t, StateCancelled, nil, ErrCancelled)
	default:
		if l.logger != nil {
			l.logger.Warn("resource load failed",
				"id", cfg.ID, "url", cfg.URL, "kind", cfg.Kind.String(), "err", err)
		}
		l.settle(t, StateFailed, nil, err)
	}
}

// settle finishes a task, updates counters, and admits the next queued
// task.
func (l *Loader) settle(t *Task, state State, res *Resource, err error) {
	now := time.Now()
	finished := t.finish(state, res, err, now)

	l.mu.Lock()
	l.running--
	if finished {
		switch state {
		case StateLoaded:
			l.loaded++
			l.totalLoad += res.LoadTime
		case StateFailed:
			l.failed++
		case StateCancelled:
			l.cancelled++
		}
	}
	l.pumpLocked()
	l.mu.Unlock()
}

// execute runs the fetch-decode pipeline with retry. Only fetch failures
// are retried; decode errors mean the payload arrived intact and will not
// improve on a second download.
func (l *Loader) execute(ctx context.Context, t *Task) (*Resource, error) {
	cfg := t.Config()

	var lastErr error
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := l.retryBase * (1 << attempt)
			if l.logger != nil {
				l.logger.Debug("retrying resource load",
					"id", cfg.ID, "attempt", attempt, "delay", delay)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		data, err := l.fetch(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		decoded, err := l.decode(cfg.Kind, data)
		if err != nil {
			return nil, err
		}
		return &Resource{
			ID:   cfg.ID,
			URL:  cfg.URL,
			Kind: cfg.Kind,
			Data: decoded,
			Size: int64(len(data)),
		}, nil
	}
	return nil, fmt.Errorf("loader: %q failed after %d attempts: %w",
		cfg.ID, cfg.Retries+1, lastErr)
}

// fetch downloads the config's URL, reporting per-chunk progress.
func (l *Loader) fetch(ctx context.Context, t *Task) ([]byte, error) {
	cfg := t.Config()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("loader: build request: %w", err)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Credentials != "" {
		req.Header.Set("Authorization", cfg.Credentials)
	}

	resp, err := l.transport.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loader: fetch %s: %w", cfg.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("loader: fetch %s: http %d", cfg.URL, resp.StatusCode)
	}

	total := resp.ContentLength
	var data []byte
	if total > 0 {
		data = make([]byte, 0, total)
	}

	start := time.Now()
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			p := progressAt(int64(len(data)), total, time.Since(start))
			t.setProgress(p)
			l.emitter.Emit(EventProgress, ProgressEvent{ID: cfg.ID, Progress: p})
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: read %s: %w", cfg.URL, err)
		}
	}
	return data, nil
}

// progressAt derives the chunk-level progress snapshot.
func progressAt(loaded, total int64, elapsed time.Duration) Progress {
	p := Progress{Loaded: loaded, Total: total}
	if total <= 0 {
		p.Total = -1
	}
	if elapsed > 0 {
		p.Speed = float64(loaded) / elapsed.Seconds()
	}
	if p.Total > 0 {
		p.Percentage = float64(loaded) / float64(total) * 100
		if p.Speed > 0 && loaded < total {
			p.Remaining = time.Duration(float64(total-loaded) / p.Speed * float64(time.Second))
		}
	}
	return p
}

// Cancel cancels the task with the given ID. Pending tasks finish
// immediately; Loading tasks have their context cancelled and settle
// through their run loop. Reports whether a live task was found.
func (l *Loader) Cancel(id string) bool {
	l.mu.Lock()
	t, ok := l.tasks[id]
	l.mu.Unlock()
	if !ok || t.State().Terminal() {
		return false
	}
	l.cancelTask(t)
	return true
}

// CancelAll cancels every live task and clears the queue.
func (l *Loader) CancelAll() {
	l.mu.Lock()
	live := make([]*Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if !t.State().Terminal() {
			live = append(live, t)
		}
	}
	l.queue = l.queue[:0]
	l.mu.Unlock()

	for _, t := range live {
		l.cancelTask(t)
	}
}

// cancelTask finishes a Pending task directly and aborts a Loading one.
func (l *Loader) cancelTask(t *Task) {
	if t.finish(StateCancelled, nil, ErrCancelled, time.Now()) {
		l.mu.Lock()
		l.cancelled++
		l.mu.Unlock()
	}
	// Unblock an in-flight fetch; its run loop observes the terminal
	// state through finish being a no-op.
	t.abort()
}

// LoadBatch loads every config, isolating per-item failures: one bad
// resource never aborts its siblings. Results are positional; failed items
// are nil. The returned error joins every per-item failure. Batch-level
// progress is emitted as the mean of member percentages.
func (l *Loader) LoadBatch(ctx context.Context, cfgs []Config) ([]*Resource, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}

	ids := make(map[string]int, len(cfgs))
	pct := make([]float64, len(cfgs))
	for i := range cfgs {
		cfgs[i] = cfgs[i].normalize()
		ids[cfgs[i].ID] = i
	}

	var progressMu sync.Mutex
	dispose, _ := l.emitter.On(EventProgress, func(payload any) {
		ev, ok := payload.(ProgressEvent)
		if !ok {
			return
		}
		i, ok := ids[ev.ID]
		if !ok {
			return
		}
		progressMu.Lock()
		pct[i] = ev.Progress.Percentage
		mean := 0.0
		for _, p := range pct {
			mean += p
		}
		mean /= float64(len(pct))
		progressMu.Unlock()
		l.emitter.Emit(EventBatchProgress, BatchProgressEvent{
			Count:      len(cfgs),
			Percentage: mean,
		})
	})
	if dispose != nil {
		defer dispose()
	}

	results := make([]*Resource, len(cfgs))
	errs := make([]error, len(cfgs))

	var g errgroup.Group
	for i, cfg := range cfgs {
		g.Go(func() error {
			res, err := l.Load(ctx, cfg)
			results[i] = res
			errs[i] = err
			return nil
		})
	}
	g.Wait()

	result := BatchResult{Count: len(cfgs)}
	for i := range results {
		if errs[i] == nil {
			result.Loaded++
			progressMu.Lock()
			pct[i] = 100
			progressMu.Unlock()
		} else {
			result.Failed++
		}
	}
	l.emitter.Emit(EventBatchComplete, result)

	return results, errors.Join(errs...)
}

// Preload is Load with a downgraded priority and a swallowed failure path.
// Preloading is best-effort: failures are logged and nil is returned.
func (l *Loader) Preload(ctx context.Context, cfg Config) *Resource {
	cfg = cfg.normalize()
	if cfg.Priority > PreloadPriority {
		cfg.Priority = PreloadPriority
	}

	res, err := l.Load(ctx, cfg)
	if err != nil {
		if l.logger != nil {
			l.logger.Debug("preload failed", "id", cfg.ID, "url", cfg.URL, "err", err)
		}
		return nil
	}
	return res
}

// Cleanup purges terminal tasks from the task table and returns how many
// were removed. Bookkeeping only: cached or decoded data is unaffected.
func (l *Loader) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, t := range l.tasks {
		if t.State().Terminal() {
			delete(l.tasks, id)
			removed++
		}
	}
	return removed
}

// Stats returns a snapshot of loader counters.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		Loaded:    l.loaded,
		Failed:    l.failed,
		Cancelled: l.cancelled,
		Active:    l.running,
		Queued:    l.queuedLocked(),
	}
	if l.loaded > 0 {
		s.AvgLoadTime = l.totalLoad / time.Duration(l.loaded)
	}
	return s
}

// queuedLocked counts the Pending entries in the admission heap. Tasks
// cancelled while queued stay in the heap until a pump pass discards them
// and must not inflate the reported backlog. Caller must hold mu.
func (l *Loader) queuedLocked() int {
	n := 0
	for _, t := range l.queue {
		if t.State() == StatePending {
			n++
		}
	}
	return n
}

// Tasks returns a snapshot of every tracked task.
func (l *Loader) Tasks() []Info {
	l.mu.Lock()
	tasks := make([]*Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		tasks = append(tasks, t)
	}
	l.mu.Unlock()

	infos := make([]Info, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, t.info())
	}
	return infos
}
