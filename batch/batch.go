// Package batch groups submitted 2D geometry by render state and flushes
// each group as a single draw call.
//
// A batch's identity is its Key: texture, shader, blend mode, and z-index.
// Geometry submitted under an equal key merges into the existing batch with
// its indices rebased, so a frame's draw-call count tracks distinct render
// states rather than submitted shapes.
package batch

import "github.com/echoVic/sky-canvas-sub001/gpu"

// vertexFloats is the per-vertex float count: x, y, u, v.
const vertexFloats = 4

// BlendMode selects how a batch composites over the framebuffer.
type BlendMode uint8

const (
	// BlendNormal is source-over alpha blending (default).
	BlendNormal BlendMode = iota
	// BlendAdditive adds source to destination.
	BlendAdditive
	// BlendMultiply multiplies source with destination.
	BlendMultiply
	// BlendScreen inverts, multiplies, and inverts again.
	BlendScreen
)

// String returns a lowercase blend mode name.
func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "normal"
	case BlendAdditive:
		return "additive"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	default:
		return "unknown"
	}
}

// Key is a batch's render-state identity. Two pieces of geometry land in
// the same batch iff their keys are field-wise equal.
type Key struct {
	// Texture is the sampled texture, 0 for untextured geometry.
	Texture gpu.TextureID

	// Shader names the pipeline variant.
	Shader string

	// Blend is the compositing mode.
	Blend BlendMode

	// ZIndex orders flushed batches back to front.
	ZIndex int
}

// Renderable is one submission: geometry plus the state it renders under.
// Indices address Vertices locally; Process rebases them on merge.
type Renderable struct {
	Key      Key
	Vertices []float32
	Indices  []uint16
}

// Batch is merged geometry sharing one render state.
type Batch struct {
	Key      Key
	Vertices []float32
	Indices  []uint16
}

// VertexCount returns the number of vertices in the batch.
func (b *Batch) VertexCount() int { return len(b.Vertices) / vertexFloats }

// TriangleCount returns the number of triangles the batch draws.
func (b *Batch) TriangleCount() int { return len(b.Indices) / 3 }
