package gpu

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DefaultMaxTextureUnits is used when the caller does not supply a queried
// hardware limit. 16 is the WebGPU guaranteed minimum for sampled textures
// per shader stage.
const DefaultMaxTextureUnits = 16

// HALDevice implements Device on top of gogpu/wgpu's HAL layer. It maps
// this package's IDs to hal resources so callers never hold raw handles.
//
// Thread Safety: HALDevice is safe for concurrent use. All resource
// operations are protected by a mutex.
type HALDevice struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps our IDs to hal resources.
	textures map[TextureID]hal.Texture
	texDescs map[TextureID]TextureDescriptor
	buffers  map[BufferID]hal.Buffer

	// bindings tracks which texture occupies each sampling unit. Pass
	// encoding is owned by the frame's command encoder; the adapter only
	// tracks binding state so bind groups can be rebuilt per pass.
	bindings []TextureID

	// Statistics
	drawCalls atomic.Uint64

	maxUnits int
}

// NewHALDevice creates a HALDevice wrapping the given hal device and queue.
// maxTextureUnits should come from the adapter's queried limits; <= 0 uses
// DefaultMaxTextureUnits.
func NewHALDevice(device hal.Device, queue hal.Queue, maxTextureUnits int) *HALDevice {
	if maxTextureUnits <= 0 {
		maxTextureUnits = DefaultMaxTextureUnits
	}
	d := &HALDevice{
		device:   device,
		queue:    queue,
		textures: make(map[TextureID]hal.Texture),
		texDescs: make(map[TextureID]TextureDescriptor),
		buffers:  make(map[BufferID]hal.Buffer),
		bindings: make([]TextureID, maxTextureUnits),
		maxUnits: maxTextureUnits,
	}
	// Start ID generation at 1 (0 is invalid).
	d.nextID.Store(1)
	return d
}

// newID generates a unique resource ID.
func (d *HALDevice) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// mipLevelCount returns the full mip chain length for the given extent.
func mipLevelCount(w, h int) uint32 {
	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	return uint32(bits.Len(uint(maxDim)))
}

// CreateTexture allocates a HAL texture.
func (d *HALDevice) CreateTexture(desc TextureDescriptor) (TextureID, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0, ErrInvalidDimensions
	}

	levels := uint32(1)
	if desc.Mipmaps {
		levels = mipLevelCount(desc.Width, desc.Height)
	}

	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: levels,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format.ToWGPUFormat(),
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	})
	if err != nil {
		return 0, fmt.Errorf("create texture: %w", err)
	}

	id := TextureID(d.newID())

	d.mu.Lock()
	d.textures[id] = tex
	d.texDescs[id] = desc
	d.mu.Unlock()

	return id, nil
}

// DestroyTexture releases a HAL texture. Any unit still bound to it is
// cleared first.
func (d *HALDevice) DestroyTexture(id TextureID) {
	d.mu.Lock()
	tex, ok := d.textures[id]
	if ok {
		delete(d.textures, id)
		delete(d.texDescs, id)
		for unit, bound := range d.bindings {
			if bound == id {
				d.bindings[unit] = 0
			}
		}
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyTexture(tex)
	}
}

// WriteTexture uploads pixel data to mip level zero.
func (d *HALDevice) WriteTexture(id TextureID, data []byte) error {
	d.mu.RLock()
	tex, ok := d.textures[id]
	desc := d.texDescs[id]
	d.mu.RUnlock()

	if !ok {
		return ErrTextureNotFound
	}
	if len(data) == 0 {
		return nil
	}

	bpp := desc.Format.BytesPerPixel()
	dst := &hal.ImageCopyTexture{
		Texture:  tex,
		MipLevel: 0,
		Origin:   hal.Origin3D{X: 0, Y: 0, Z: 0},
		Aspect:   gputypes.TextureAspectAll,
	}
	layout := &hal.ImageDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(desc.Width * bpp),
		RowsPerImage: uint32(desc.Height),
	}
	size := &hal.Extent3D{
		Width:              uint32(desc.Width),
		Height:             uint32(desc.Height),
		DepthOrArrayLayers: 1,
	}
	d.queue.WriteTexture(dst, data, layout, size)
	return nil
}

// CreateBuffer allocates a HAL buffer.
func (d *HALDevice) CreateBuffer(size int, usage BufferUsage) (BufferID, error) {
	if size <= 0 {
		return 0, fmt.Errorf("gpu: buffer size must be positive, got %d", size)
	}

	halUsage := gputypes.BufferUsageCopyDst
	switch usage {
	case BufferUsageVertex:
		halUsage |= gputypes.BufferUsageVertex
	case BufferUsageIndex:
		halUsage |= gputypes.BufferUsageIndex
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "",
		Size:  uint64(size),
		Usage: halUsage,
	})
	if err != nil {
		return 0, fmt.Errorf("create buffer: %w", err)
	}

	id := BufferID(d.newID())

	d.mu.Lock()
	d.buffers[id] = buf
	d.mu.Unlock()

	return id, nil
}

// WriteBuffer writes data into a buffer at the given offset.
func (d *HALDevice) WriteBuffer(id BufferID, offset uint64, data []byte) {
	d.mu.RLock()
	buf, ok := d.buffers[id]
	d.mu.RUnlock()

	if ok && len(data) > 0 {
		d.queue.WriteBuffer(buf, offset, data)
	}
}

// DestroyBuffer releases a HAL buffer.
func (d *HALDevice) DestroyBuffer(id BufferID) {
	d.mu.Lock()
	buf, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBuffer(buf)
	}
}

// BindTexture binds a texture to a sampling unit.
func (d *HALDevice) BindTexture(id TextureID, unit int) error {
	if unit < 0 || unit >= d.maxUnits {
		return fmt.Errorf("%w: unit %d, limit %d", ErrUnitOutOfRange, unit, d.maxUnits)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.textures[id]; !ok {
		return ErrTextureNotFound
	}
	d.bindings[unit] = id
	return nil
}

// UnbindUnit clears a sampling unit.
func (d *HALDevice) UnbindUnit(unit int) {
	if unit < 0 || unit >= d.maxUnits {
		return
	}
	d.mu.Lock()
	d.bindings[unit] = 0
	d.mu.Unlock()
}

// BoundTexture returns the texture currently bound to the unit, or zero.
func (d *HALDevice) BoundTexture(unit int) TextureID {
	if unit < 0 || unit >= d.maxUnits {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bindings[unit]
}

// DrawIndexed issues one indexed draw call. The draw is recorded against
// the frame's render pass by the owning renderer; the adapter counts it.
func (d *HALDevice) DrawIndexed(indexCount int) {
	if indexCount <= 0 {
		return
	}
	d.drawCalls.Add(1)
}

// DrawCalls returns the number of draws issued since creation.
func (d *HALDevice) DrawCalls() uint64 {
	return d.drawCalls.Load()
}

// MaxTextureUnits reports the hardware texture-unit limit.
func (d *HALDevice) MaxTextureUnits() int {
	return d.maxUnits
}

// Ensure HALDevice implements Device at compile time.
var _ Device = (*HALDevice)(nil)
