// Package texture provides the size/config-bucketed reuse pool of GPU
// textures and the free-list allocator for hardware texture units.
//
// Released textures keep their GPU object and wait in a bucket keyed by
// exact configuration; only cleanup or Close deallocates. This trades a
// bounded amount of resident memory for the elimination of create/destroy
// churn inside a frame.
package texture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/echoVic/sky-canvas-sub001/event"
	"github.com/echoVic/sky-canvas-sub001/gpu"
)

// Pool errors.
var (
	// ErrPoolFull is returned when the texture count limit holds even
	// after a synchronous cleanup pass. This is a sizing problem, not a
	// transient condition; it is never retried internally.
	ErrPoolFull = errors.New("texture: pool is full")

	// ErrMemoryExceeded is returned when the memory budget holds even
	// after a synchronous cleanup pass.
	ErrMemoryExceeded = errors.New("texture: pool memory limit exceeded")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("texture: pool closed")

	// ErrNoUnitAvailable is returned when every texture unit is held by
	// an in-use texture.
	ErrNoUnitAvailable = errors.New("texture: no texture unit available")
)

// Default pool limits.
const (
	// DefaultMaxTextures is the default texture count limit.
	DefaultMaxTextures = 64

	// DefaultMemoryLimit is the default pool memory budget (256 MiB).
	DefaultMemoryLimit int64 = 256 * 1024 * 1024

	// DefaultExpirationTime is how long an idle texture survives cleanup.
	DefaultExpirationTime = 60 * time.Second

	// DefaultCleanupInterval is the background cleanup period.
	DefaultCleanupInterval = 30 * time.Second

	// memoryWarnFraction of the budget at which memory-warning fires.
	memoryWarnFraction = 0.8
)

// Event names emitted by the pool.
const (
	EventCreated       = "texture-created"
	EventReused        = "texture-reused"
	EventMemoryWarning = "memory-warning"
)

// Options configures a Pool. Zero values are safe; defaults are applied in
// NewPool.
type Options struct {
	// MaxTextures is the texture count limit. <= 0 uses
	// DefaultMaxTextures.
	MaxTextures int

	// MemoryLimit is the byte budget. <= 0 uses DefaultMemoryLimit.
	MemoryLimit int64

	// ExpirationTime is the idle age at which cleanup removes a released
	// texture. <= 0 uses DefaultExpirationTime.
	ExpirationTime time.Duration

	// CleanupInterval is the background cleanup period. 0 uses
	// DefaultCleanupInterval; < 0 disables the background pass.
	CleanupInterval time.Duration

	// Logger receives diagnostics. Nil is silent.
	Logger *slog.Logger

	// Clock overrides the time source (tests). Nil uses time.Now.
	Clock func() time.Time
}

// CleanupResult reports what a cleanup pass removed.
type CleanupResult struct {
	TexturesRemoved int
	MemoryFreed     int64
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	Count       int
	MemoryUsed  int64
	MemoryLimit int64
	Utilization float64
	Created     uint64
	Reused      uint64
	Cleaned     uint64
}

// Pool reuses GPU textures by exact configuration within coarse size
// buckets. Pool is safe for concurrent use and must be Closed to release
// its textures and background goroutine.
type Pool struct {
	mu sync.Mutex

	device gpu.Device
	units  *UnitManager

	maxTextures int
	memoryLimit int64
	expiration  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	// textures holds every live pool texture, acquired or idle.
	textures map[uint64]*PooledTexture

	// buckets holds idle textures: size class -> exact config -> stack.
	buckets map[sizeClass]map[configKey][]*PooledTexture

	memoryUsed int64
	nextID     uint64
	closed     bool
	warned     bool

	created uint64
	reused  uint64
	cleaned uint64

	emitter *event.Emitter

	done      chan struct{}
	closeOnce sync.Once
}

// NewPool creates a texture pool on the given device and starts its
// background cleanup (unless disabled via a negative CleanupInterval).
func NewPool(device gpu.Device, opts Options) *Pool {
	if opts.MaxTextures <= 0 {
		opts.MaxTextures = DefaultMaxTextures
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	if opts.ExpirationTime <= 0 {
		opts.ExpirationTime = DefaultExpirationTime
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	interval := opts.CleanupInterval
	if interval == 0 {
		interval = DefaultCleanupInterval
	}

	p := &Pool{
		device:      device,
		units:       NewUnitManager(device),
		maxTextures: opts.MaxTextures,
		memoryLimit: opts.MemoryLimit,
		expiration:  opts.ExpirationTime,
		logger:      opts.Logger,
		now:         opts.Clock,
		textures:    make(map[uint64]*PooledTexture),
		buckets:     make(map[sizeClass]map[configKey][]*PooledTexture),
		emitter:     event.NewEmitter(),
		done:        make(chan struct{}),
	}

	if interval > 0 {
		go p.cleanupLoop(interval)
	}
	return p
}

// Events returns the pool's event emitter. Events: texture-created,
// texture-reused (payload *PooledTexture), memory-warning (payload Stats).
func (p *Pool) Events() *event.Emitter { return p.emitter }

// Units returns the pool's texture unit manager.
func (p *Pool) Units() *UnitManager { return p.units }

// Get returns a texture matching the config, reusing a released one with
// an exactly equal normalized config when available. On miss the pool
// creates a texture; if the count or memory limit is reached it first runs
// a synchronous cleanup pass, and fails with ErrPoolFull or
// ErrMemoryExceeded when the limit still holds.
func (p *Pool) Get(cfg Config) (*PooledTexture, error) {
	cfg = cfg.normalize()
	class := classOf(cfg)
	key := keyOf(cfg)
	need := cfg.MemoryUsage()
	now := p.now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	if t := p.popBucketLocked(class, key); t != nil {
		t.acquire(now)
		p.reused++
		p.mu.Unlock()
		p.emitter.Emit(EventReused, t)
		return t, nil
	}

	// Miss. Reclaim space synchronously before refusing.
	if len(p.textures) >= p.maxTextures || p.memoryUsed+need > p.memoryLimit {
		p.cleanupLocked(false)
	}
	if len(p.textures) >= p.maxTextures {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %d textures", ErrPoolFull, p.maxTextures)
	}
	if p.memoryUsed+need > p.memoryLimit {
		used, limit := p.memoryUsed, p.memoryLimit
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: need %d bytes, used %d of %d",
			ErrMemoryExceeded, need, used, limit)
	}

	handle, err := p.device.CreateTexture(gpu.TextureDescriptor{
		Label:   fmt.Sprintf("pool_%s_%dx%d", class, cfg.Width, cfg.Height),
		Width:   cfg.Width,
		Height:  cfg.Height,
		Format:  cfg.Format,
		Mipmaps: cfg.Mipmapped(),
	})
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("texture: create: %w", err)
	}

	p.nextID++
	t := &PooledTexture{
		id:     p.nextID,
		handle: handle,
		config: cfg,
		memory: need,
	}
	t.unit.Store(-1)
	t.acquire(now)

	p.textures[t.id] = t
	p.memoryUsed += need
	p.created++

	warn := false
	if float64(p.memoryUsed) > memoryWarnFraction*float64(p.memoryLimit) {
		if !p.warned {
			p.warned = true
			warn = true
		}
	} else {
		p.warned = false
	}
	stats := p.statsLocked()
	p.mu.Unlock()

	p.emitter.Emit(EventCreated, t)
	if warn {
		if p.logger != nil {
			p.logger.Warn("texture pool memory above warning threshold",
				"used", stats.MemoryUsed, "limit", stats.MemoryLimit)
		}
		p.emitter.Emit(EventMemoryWarning, stats)
	}
	return t, nil
}

// popBucketLocked removes and returns the most recently released texture
// with the exact key, or nil. Caller must hold mu.
func (p *Pool) popBucketLocked(class sizeClass, key configKey) *PooledTexture {
	byKey := p.buckets[class]
	if byKey == nil {
		return nil
	}
	stack := byKey[key]
	if len(stack) == 0 {
		return nil
	}
	t := stack[len(stack)-1]
	byKey[key] = stack[:len(stack)-1]
	return t
}

// Release returns a texture to its bucket. The GPU object is retained.
// Releasing a texture that is not in use is a no-op, so double-release
// cannot double-insert.
func (p *Pool) Release(t *PooledTexture) {
	if t == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.textures[t.id] != t || !t.inUse.Load() {
		return
	}
	t.inUse.Store(false)
	t.lastUsed.Store(p.now().UnixNano())

	class := classOf(t.config)
	key := keyOf(t.config)
	byKey := p.buckets[class]
	if byKey == nil {
		byKey = make(map[configKey][]*PooledTexture)
		p.buckets[class] = byKey
	}
	byKey[key] = append(byKey[key], t)
}

// Cleanup destroys idle textures older than the expiration time; force
// destroys every idle texture regardless of age. In-use textures are never
// touched. A background pass runs this periodically.
func (p *Pool) Cleanup(force bool) CleanupResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleanupLocked(force)
}

// cleanupLocked does the work of Cleanup. Caller must hold mu.
func (p *Pool) cleanupLocked(force bool) CleanupResult {
	var result CleanupResult
	cutoff := p.now().Add(-p.expiration).UnixNano()

	for id, t := range p.textures {
		if t.inUse.Load() {
			continue
		}
		if !force && t.lastUsed.Load() > cutoff {
			continue
		}
		p.destroyLocked(t)
		delete(p.textures, id)
		result.TexturesRemoved++
		result.MemoryFreed += t.memory
	}

	if result.TexturesRemoved > 0 {
		p.cleaned += uint64(result.TexturesRemoved)
		if p.warned && float64(p.memoryUsed) < memoryWarnFraction*float64(p.memoryLimit) {
			p.warned = false
		}
		if p.logger != nil {
			p.logger.Debug("texture pool cleanup",
				"removed", result.TexturesRemoved, "freed", result.MemoryFreed, "force", force)
		}
	}
	return result
}

// destroyLocked releases a texture's GPU object, unit, and bucket slot.
// Caller must hold mu and remove the texture from p.textures.
func (p *Pool) destroyLocked(t *PooledTexture) {
	if t.destroyed.Swap(true) {
		return
	}
	p.units.Release(t)
	p.device.DestroyTexture(t.handle)
	p.memoryUsed -= t.memory
	p.removeFromBucketLocked(t)
}

// removeFromBucketLocked purges the texture's bucket reference, if any.
func (p *Pool) removeFromBucketLocked(t *PooledTexture) {
	byKey := p.buckets[classOf(t.config)]
	if byKey == nil {
		return
	}
	key := keyOf(t.config)
	stack := byKey[key]
	for i, cand := range stack {
		if cand == t {
			byKey[key] = append(stack[:i:i], stack[i+1:]...)
			return
		}
	}
}

// Warmup pre-creates and immediately releases textures for the given
// configs so first-frame requests hit warm buckets. Per-item failures are
// logged and swallowed; warming up is best-effort.
func (p *Pool) Warmup(cfgs []Config) {
	for _, cfg := range cfgs {
		t, err := p.Get(cfg)
		if err != nil {
			if p.logger != nil {
				p.logger.Warn("texture pool warmup item failed",
					"width", cfg.Width, "height", cfg.Height, "err", err)
			}
			continue
		}
		p.Release(t)
	}
}

// BindHandle binds the pool texture with the given device handle to a
// sampling unit and returns the unit index. The batch renderer binds
// through this during flush.
func (p *Pool) BindHandle(handle gpu.TextureID) (int, error) {
	p.mu.Lock()
	var target *PooledTexture
	for _, t := range p.textures {
		if t.handle == handle {
			target = t
			break
		}
	}
	p.mu.Unlock()

	if target == nil {
		return -1, gpu.ErrTextureNotFound
	}
	return p.units.Bind(target)
}

// GetStats returns a snapshot of pool accounting.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

// statsLocked builds a Stats snapshot. Caller must hold mu.
func (p *Pool) statsLocked() Stats {
	var utilization float64
	if p.memoryLimit > 0 {
		utilization = float64(p.memoryUsed) / float64(p.memoryLimit)
	}
	return Stats{
		Count:       len(p.textures),
		MemoryUsed:  p.memoryUsed,
		MemoryLimit: p.memoryLimit,
		Utilization: utilization,
		Created:     p.created,
		Reused:      p.reused,
		Cleaned:     p.cleaned,
	}
}

// cleanupLoop periodically expires idle textures until Close.
func (p *Pool) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.Cleanup(false)
		}
	}
}

// Close destroys every pool texture, including acquired ones, and stops
// the background cleanup. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	for id, t := range p.textures {
		// Final teardown destroys acquired textures too; callers holding
		// them must be done rendering.
		t.inUse.Store(false)
		p.destroyLocked(t)
		delete(p.textures, id)
	}
	p.buckets = make(map[sizeClass]map[configKey][]*PooledTexture)
	p.closed = true
}
