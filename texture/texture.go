package texture

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/echoVic/sky-canvas-sub001/gpu"
)

// Default texture configuration, applied by normalize for zero fields.
const (
	// DefaultSize is the default texture edge length in pixels.
	DefaultSize = 256
)

// mipOverhead approximates the geometric mip-chain memory overhead
// (1 + 1/4 + 1/16 + ... -> 4/3).
const mipOverhead = 1.33

// WrapMode selects texture coordinate wrapping.
type WrapMode uint8

const (
	// WrapClampToEdge clamps coordinates to the edge texel (default).
	WrapClampToEdge WrapMode = iota
	// WrapRepeat tiles the texture.
	WrapRepeat
	// WrapMirror tiles with mirroring.
	WrapMirror
)

// FilterMode selects texture sampling filtering.
type FilterMode uint8

const (
	// FilterLinear is bilinear filtering (default).
	FilterLinear FilterMode = iota
	// FilterNearest is point sampling.
	FilterNearest
)

// Config describes a pooled texture. Zero-value fields take defaults:
// 256x256, RGBA8, mipmaps on, clamp-to-edge wrapping, linear filtering.
type Config struct {
	Width  int
	Height int
	Format gpu.TextureFormat

	// NoMipmaps disables the mip chain; mipmaps are on by default.
	NoMipmaps bool

	Wrap   WrapMode
	Filter FilterMode
}

// normalize fills defaulted fields.
func (c Config) normalize() Config {
	if c.Width <= 0 {
		c.Width = DefaultSize
	}
	if c.Height <= 0 {
		c.Height = DefaultSize
	}
	return c
}

// Mipmapped reports whether the config requests a mip chain.
func (c Config) Mipmapped() bool { return !c.NoMipmaps }

// MemoryUsage returns the estimated GPU memory footprint in bytes:
// bytesPerPixel * width * height, scaled by the mip-chain overhead when
// mipmapped, rounded up.
func (c Config) MemoryUsage() int64 {
	base := float64(c.Format.BytesPerPixel() * c.Width * c.Height)
	if c.Mipmapped() {
		base *= mipOverhead
	}
	return int64(math.Ceil(base))
}

// sizeClass buckets configs by their largest dimension so lookups scan
// only plausibly-matching textures.
type sizeClass uint8

const (
	classSmall  sizeClass = iota // <= 128
	classMedium                  // <= 512
	classLarge                   // <= 1024
	classXLarge                  // > 1024
)

// String returns a human-readable name for the class.
func (s sizeClass) String() string {
	switch s {
	case classSmall:
		return "small"
	case classMedium:
		return "medium"
	case classLarge:
		return "large"
	default:
		return "xlarge"
	}
}

// classOf derives the size class from the larger dimension.
func classOf(c Config) sizeClass {
	maxDim := c.Width
	if c.Height > maxDim {
		maxDim = c.Height
	}
	switch {
	case maxDim <= 128:
		return classSmall
	case maxDim <= 512:
		return classMedium
	case maxDim <= 1024:
		return classLarge
	default:
		return classXLarge
	}
}

// configKey is the exact-reuse key within a size-class bucket. Two configs
// are pool-compatible iff their keys are equal.
type configKey struct {
	width   int
	height  int
	format  gpu.TextureFormat
	mipmaps bool
}

// keyOf builds the exact bucket key for a normalized config.
func keyOf(c Config) configKey {
	return configKey{
		width:   c.Width,
		height:  c.Height,
		format:  c.Format,
		mipmaps: c.Mipmapped(),
	}
}

// PooledTexture is a reusable GPU texture owned by a Pool. Release returns
// it to its bucket without touching the GPU object; only pool cleanup or
// Close destroys the underlying texture.
//
// Mutable state uses atomics so the pool, unit manager, and renderer can
// inspect a texture without sharing a lock.
type PooledTexture struct {
	id     uint64
	handle gpu.TextureID
	config Config
	memory int64

	inUse    atomic.Bool
	useCount atomic.Uint64
	unit     atomic.Int32 // -1 when unbound
	lastUsed atomic.Int64 // unix nanos

	destroyed atomic.Bool
}

// ID returns the pool-local identifier, stable for the texture's lifetime.
func (t *PooledTexture) ID() uint64 { return t.id }

// Handle returns the device texture handle.
func (t *PooledTexture) Handle() gpu.TextureID { return t.handle }

// Config returns the normalized creation config.
func (t *PooledTexture) Config() Config { return t.config }

// MemoryUsage returns the texture's accounted memory footprint in bytes.
func (t *PooledTexture) MemoryUsage() int64 { return t.memory }

// InUse reports whether the texture is currently acquired.
func (t *PooledTexture) InUse() bool { return t.inUse.Load() }

// UseCount returns how many times the texture has been acquired.
func (t *PooledTexture) UseCount() uint64 { return t.useCount.Load() }

// Unit returns the bound texture unit, or -1 when unbound.
func (t *PooledTexture) Unit() int { return int(t.unit.Load()) }

// LastUsed returns the last acquire/release timestamp.
func (t *PooledTexture) LastUsed() time.Time {
	return time.Unix(0, t.lastUsed.Load())
}

// acquire marks the texture in use and stamps recency.
func (t *PooledTexture) acquire(now time.Time) {
	t.inUse.Store(true)
	t.useCount.Add(1)
	t.lastUsed.Store(now.UnixNano())
}

// String returns a string representation of the texture.
func (t *PooledTexture) String() string {
	status := "idle"
	if t.inUse.Load() {
		status = "in-use"
	}
	return fmt.Sprintf("PooledTexture[#%d %dx%d %s %d bytes %s]",
		t.id, t.config.Width, t.config.Height, t.config.Format, t.memory, status)
}
