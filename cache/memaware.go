package cache

import (
	"runtime"
	"sync"
	"time"
)

// Pressure classifies ambient memory pressure.
type Pressure int

const (
	// PressureLow requires no action.
	PressureLow Pressure = iota
	// PressureMedium trims the cache to 70% utilization.
	PressureMedium
	// PressureHigh trims the cache to 50% utilization.
	PressureHigh
)

// String returns a stable label for the pressure level.
func (p Pressure) String() string {
	switch p {
	case PressureLow:
		return "low"
	case PressureMedium:
		return "medium"
	case PressureHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Trim targets per pressure level.
const (
	mediumPressureTarget = 0.7
	highPressureTarget   = 0.5
)

// Default memory-aware sampling configuration.
const (
	// DefaultSampleInterval is how often ambient pressure is sampled.
	DefaultSampleInterval = 5 * time.Second

	// DefaultHeapSoftLimit is the heap size the default sampler treats as
	// full pressure (512 MiB).
	DefaultHeapSoftLimit uint64 = 512 * 1024 * 1024
)

// PressureSampler reports current ambient memory pressure.
type PressureSampler func() Pressure

// HeapPressureSampler returns a sampler that classifies pressure by live
// heap bytes against a soft limit: >=90% is high, >=70% is medium.
func HeapPressureSampler(softLimit uint64) PressureSampler {
	if softLimit == 0 {
		softLimit = DefaultHeapSoftLimit
	}
	return func() Pressure {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		ratio := float64(ms.HeapInuse) / float64(softLimit)
		switch {
		case ratio >= 0.9:
			return PressureHigh
		case ratio >= 0.7:
			return PressureMedium
		default:
			return PressureLow
		}
	}
}

// MemoryAwareOptions configures a MemoryAwareLRUCache.
type MemoryAwareOptions[V any] struct {
	Options[V]

	// Sampler reports ambient pressure. Nil uses HeapPressureSampler with
	// HeapSoftLimit.
	Sampler PressureSampler

	// SampleInterval is the sampling period. <= 0 uses
	// DefaultSampleInterval.
	SampleInterval time.Duration

	// HeapSoftLimit configures the default sampler. 0 uses
	// DefaultHeapSoftLimit.
	HeapSoftLimit uint64
}

// MemoryAwareLRUCache is an LRUCache that samples ambient memory pressure
// and reactively trims its working set: medium pressure trims to 70%
// utilization, high pressure to 50%.
type MemoryAwareLRUCache[V any] struct {
	*LRUCache[V]

	sampler PressureSampler

	sampleDone chan struct{}
	sampleOnce sync.Once
}

// NewMemoryAware creates a MemoryAwareLRUCache and starts its sampling
// goroutine.
func NewMemoryAware[V any](opts MemoryAwareOptions[V]) *MemoryAwareLRUCache[V] {
	if opts.Sampler == nil {
		opts.Sampler = HeapPressureSampler(opts.HeapSoftLimit)
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}

	c := &MemoryAwareLRUCache[V]{
		LRUCache:   New(opts.Options),
		sampler:    opts.Sampler,
		sampleDone: make(chan struct{}),
	}
	go c.sampleLoop(opts.SampleInterval)
	return c
}

// Respond applies the trim policy for the given pressure level and returns
// the bytes freed. Exposed so callers with their own pressure signal can
// drive the cache directly.
func (c *MemoryAwareLRUCache[V]) Respond(p Pressure) int64 {
	var freed int64
	switch p {
	case PressureMedium:
		freed, _ = c.Optimize(mediumPressureTarget)
	case PressureHigh:
		freed, _ = c.Optimize(highPressureTarget)
	}
	if freed > 0 && c.logger != nil {
		c.logger.Debug("memory pressure response", "pressure", p.String(), "freed", freed)
	}
	return freed
}

// sampleLoop samples pressure until Close.
func (c *MemoryAwareLRUCache[V]) sampleLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.sampleDone:
			return
		case <-ticker.C:
			c.Respond(c.sampler())
		}
	}
}

// Close stops the sampling goroutine and the underlying cache's sweep.
func (c *MemoryAwareLRUCache[V]) Close() {
	c.sampleOnce.Do(func() { close(c.sampleDone) })
	c.LRUCache.Close()
}
