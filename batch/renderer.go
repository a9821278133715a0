package batch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/echoVic/sky-canvas-sub001/gpu"
)

// ErrEmptyRenderable is returned when a submission carries no geometry.
var ErrEmptyRenderable = errors.New("batch: empty renderable")

// TextureBinder binds a device texture to a sampling unit and returns the
// unit index. texture.Pool satisfies it.
type TextureBinder interface {
	BindHandle(id gpu.TextureID) (int, error)
}

// Stats summarizes one Flush.
type Stats struct {
	DrawCalls    int
	Vertices     int
	Triangles    int
	TextureBinds int
}

// Renderer accumulates renderables into state-keyed batches and flushes
// them as one draw call per batch. It is safe for concurrent use.
type Renderer struct {
	mu      sync.Mutex
	batches map[Key]*Batch
	order   []Key
	logger  *slog.Logger
}

// NewRenderer creates an empty renderer. logger may be nil.
func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{
		batches: make(map[Key]*Batch),
		logger:  logger,
	}
}

// Process merges the renderable into the batch with an equal key, rebasing
// its indices by the batch's prior vertex count, or opens a new batch.
func (r *Renderer) Process(rend Renderable) error {
	if len(rend.Vertices) == 0 || len(rend.Indices) == 0 {
		return ErrEmptyRenderable
	}
	if len(rend.Vertices)%vertexFloats != 0 {
		return fmt.Errorf("%w: vertex data not a multiple of %d floats",
			ErrMalformedGeometry, vertexFloats)
	}
	vertexCount := len(rend.Vertices) / vertexFloats
	for _, idx := range rend.Indices {
		if int(idx) >= vertexCount {
			return fmt.Errorf("%w: index %d out of range for %d vertices",
				ErrMalformedGeometry, idx, vertexCount)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.batches[rend.Key]
	if !ok {
		b = &Batch{
			Key:      rend.Key,
			Vertices: append([]float32(nil), rend.Vertices...),
			Indices:  append([]uint16(nil), rend.Indices...),
		}
		r.batches[rend.Key] = b
		r.order = append(r.order, rend.Key)
		return nil
	}

	base := uint16(b.VertexCount())
	b.Vertices = append(b.Vertices, rend.Vertices...)
	for _, idx := range rend.Indices {
		b.Indices = append(b.Indices, base+idx)
	}
	return nil
}

// BatchCount returns the number of open batches.
func (r *Renderer) BatchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

// Batches returns the open batches in submission order. The batches are
// live; callers must not mutate them.
func (r *Renderer) Batches() []*Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Batch, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.batches[key])
	}
	return out
}

// Clear drops every open batch without drawing.
func (r *Renderer) Clear() {
	r.mu.Lock()
	r.batches = make(map[Key]*Batch)
	r.order = r.order[:0]
	r.mu.Unlock()
}

// Flush draws every open batch in ascending z-index order: upload vertex
// and index buffers, bind the batch texture through the binder, one
// indexed draw per batch. Batches are cleared afterwards, including on
// error. binder may be nil when no batch references a texture.
func (r *Renderer) Flush(device gpu.Device, binder TextureBinder) (Stats, error) {
	r.mu.Lock()
	flushing := make([]*Batch, 0, len(r.order))
	for _, key := range r.order {
		flushing = append(flushing, r.batches[key])
	}
	r.batches = make(map[Key]*Batch)
	r.order = r.order[:0]
	r.mu.Unlock()

	// Stable sort keeps submission order within a z layer.
	sort.SliceStable(flushing, func(i, j int) bool {
		return flushing[i].Key.ZIndex < flushing[j].Key.ZIndex
	})

	var stats Stats
	for _, b := range flushing {
		if err := r.drawBatch(device, binder, b, &stats); err != nil {
			return stats, err
		}
	}

	if r.logger != nil && stats.DrawCalls > 0 {
		r.logger.Debug("batch flush",
			"draws", stats.DrawCalls, "vertices", stats.Vertices,
			"triangles", stats.Triangles, "binds", stats.TextureBinds)
	}
	return stats, nil
}

// drawBatch uploads one batch's geometry and issues its draw call. The
// transient buffers are destroyed once the draw is recorded.
func (r *Renderer) drawBatch(device gpu.Device, binder TextureBinder, b *Batch, stats *Stats) error {
	vbuf, err := device.CreateBuffer(len(b.Vertices)*4, gpu.BufferUsageVertex)
	if err != nil {
		return fmt.Errorf("batch: vertex buffer: %w", err)
	}
	defer device.DestroyBuffer(vbuf)
	device.WriteBuffer(vbuf, 0, floatBytes(b.Vertices))

	ibuf, err := device.CreateBuffer(len(b.Indices)*2, gpu.BufferUsageIndex)
	if err != nil {
		return fmt.Errorf("batch: index buffer: %w", err)
	}
	defer device.DestroyBuffer(ibuf)
	device.WriteBuffer(ibuf, 0, indexBytes(b.Indices))

	if b.Key.Texture != 0 {
		if binder == nil {
			return fmt.Errorf("batch: textured batch with no binder")
		}
		if _, err := binder.BindHandle(b.Key.Texture); err != nil {
			return fmt.Errorf("batch: bind texture %d: %w", b.Key.Texture, err)
		}
		stats.TextureBinds++
	}

	device.DrawIndexed(len(b.Indices))
	stats.DrawCalls++
	stats.Vertices += b.VertexCount()
	stats.Triangles += b.TriangleCount()
	return nil
}

// floatBytes encodes vertex data little-endian for upload.
func floatBytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// indexBytes encodes index data little-endian for upload.
func indexBytes(v []uint16) []byte {
	out := make([]byte, len(v)*2)
	for i, idx := range v {
		binary.LittleEndian.PutUint16(out[i*2:], idx)
	}
	return out
}
