package batch

import (
	"errors"
	"fmt"
	"math"
)

// ErrMalformedGeometry is returned for inputs with the wrong arity or
// degenerate parameters. Capacity shortfalls are reported through the
// boolean return instead; they are a frame-pacing condition, not a bug.
var ErrMalformedGeometry = errors.New("batch: malformed geometry")

// Default staging capacities, sized for a typical sprite-heavy frame.
const (
	DefaultMaxVertices = 16384
	DefaultMaxIndices  = 24576
)

// GeometryBuffer stages vertices and indices for one batch key. Add
// methods validate shape first and then check capacity: malformed input
// returns ErrMalformedGeometry, insufficient space returns false with a
// nil error so the caller can flush and retry.
type GeometryBuffer struct {
	maxVertices int
	maxIndices  int

	vertices []float32
	indices  []uint16
}

// NewGeometryBuffer creates a buffer holding at most maxVertices vertices
// and maxIndices indices. Non-positive limits use the defaults.
func NewGeometryBuffer(maxVertices, maxIndices int) *GeometryBuffer {
	if maxVertices <= 0 {
		maxVertices = DefaultMaxVertices
	}
	if maxIndices <= 0 {
		maxIndices = DefaultMaxIndices
	}
	return &GeometryBuffer{
		maxVertices: maxVertices,
		maxIndices:  maxIndices,
		vertices:    make([]float32, 0, maxVertices*vertexFloats),
		indices:     make([]uint16, 0, maxIndices),
	}
}

// VertexCount returns the number of staged vertices.
func (g *GeometryBuffer) VertexCount() int { return len(g.vertices) / vertexFloats }

// IndexCount returns the number of staged indices.
func (g *GeometryBuffer) IndexCount() int { return len(g.indices) }

// Vertices returns the staged vertex data. The slice aliases internal
// storage and is invalidated by the next Add or Reset.
func (g *GeometryBuffer) Vertices() []float32 { return g.vertices }

// Indices returns the staged index data, with the same aliasing caveat.
func (g *GeometryBuffer) Indices() []uint16 { return g.indices }

// Reset empties the buffer, retaining capacity.
func (g *GeometryBuffer) Reset() {
	g.vertices = g.vertices[:0]
	g.indices = g.indices[:0]
}

// fits reports whether the buffer can absorb the given counts.
func (g *GeometryBuffer) fits(vertices, indices int) bool {
	return g.VertexCount()+vertices <= g.maxVertices &&
		len(g.indices)+indices <= g.maxIndices
}

// emit appends vertices (x, y, u, v per corner) and indices rebased by the
// current vertex count.
func (g *GeometryBuffer) emit(xy, uv []float32, indices []uint16) {
	base := uint16(g.VertexCount())
	for i := 0; i < len(xy)/2; i++ {
		g.vertices = append(g.vertices, xy[2*i], xy[2*i+1], uv[2*i], uv[2*i+1])
	}
	for _, idx := range indices {
		g.indices = append(g.indices, base+idx)
	}
}

// quadUV is the default texture mapping for four-corner shapes.
var quadUV = []float32{0, 0, 1, 0, 1, 1, 0, 1}

// AddQuad stages a four-corner shape as two triangles. xy holds exactly
// four corners (8 floats) in winding order; uv is nil for the default
// mapping or exactly 8 floats.
func (g *GeometryBuffer) AddQuad(xy, uv []float32) (bool, error) {
	if len(xy) != 8 {
		return false, fmt.Errorf("%w: quad needs 4 corners, got %d floats", ErrMalformedGeometry, len(xy))
	}
	if uv == nil {
		uv = quadUV
	} else if len(uv) != 8 {
		return false, fmt.Errorf("%w: quad uv needs 8 floats, got %d", ErrMalformedGeometry, len(uv))
	}
	if !g.fits(4, 6) {
		return false, nil
	}
	g.emit(xy, uv, []uint16{0, 1, 2, 0, 2, 3})
	return true, nil
}

// AddTriangle stages one triangle. xy holds exactly three corners
// (6 floats); uv is nil or exactly 6 floats.
func (g *GeometryBuffer) AddTriangle(xy, uv []float32) (bool, error) {
	if len(xy) != 6 {
		return false, fmt.Errorf("%w: triangle needs 3 corners, got %d floats", ErrMalformedGeometry, len(xy))
	}
	if uv == nil {
		uv = []float32{0, 0, 1, 0, 0.5, 1}
	} else if len(uv) != 6 {
		return false, fmt.Errorf("%w: triangle uv needs 6 floats, got %d", ErrMalformedGeometry, len(uv))
	}
	if !g.fits(3, 3) {
		return false, nil
	}
	g.emit(xy, uv, []uint16{0, 1, 2})
	return true, nil
}

// AddLine stages a width-expanded line segment as a quad.
func (g *GeometryBuffer) AddLine(x1, y1, x2, y2, width float32) (bool, error) {
	if width <= 0 {
		return false, fmt.Errorf("%w: line width %v", ErrMalformedGeometry, width)
	}
	dx, dy := x2-x1, y2-y1
	length := float32(math.Hypot(float64(dx), float64(dy)))
	if length == 0 {
		return false, fmt.Errorf("%w: zero-length line", ErrMalformedGeometry)
	}

	// Perpendicular half-width offset.
	nx := -dy / length * width / 2
	ny := dx / length * width / 2

	return g.AddQuad([]float32{
		x1 + nx, y1 + ny,
		x2 + nx, y2 + ny,
		x2 - nx, y2 - ny,
		x1 - nx, y1 - ny,
	}, nil)
}

// AddRect stages an axis-aligned rectangle.
func (g *GeometryBuffer) AddRect(x, y, w, h float32) (bool, error) {
	if w <= 0 || h <= 0 {
		return false, fmt.Errorf("%w: rect %vx%v", ErrMalformedGeometry, w, h)
	}
	return g.AddQuad([]float32{
		x, y,
		x + w, y,
		x + w, y + h,
		x, y + h,
	}, nil)
}

// AddCircle stages a triangle fan approximating a circle with the given
// segment count. Segments below 3 cannot enclose an area.
func (g *GeometryBuffer) AddCircle(cx, cy, r float32, segments int) (bool, error) {
	if r <= 0 {
		return false, fmt.Errorf("%w: circle radius %v", ErrMalformedGeometry, r)
	}
	if segments < 3 {
		return false, fmt.Errorf("%w: circle needs >= 3 segments, got %d", ErrMalformedGeometry, segments)
	}
	if !g.fits(segments+1, segments*3) {
		return false, nil
	}

	base := uint16(g.VertexCount())

	// Center vertex, uv at texture center.
	g.vertices = append(g.vertices, cx, cy, 0.5, 0.5)
	for i := 0; i < segments; i++ {
		angle := 2 * math.Pi * float64(i) / float64(segments)
		sin, cos := math.Sincos(angle)
		g.vertices = append(g.vertices,
			cx+r*float32(cos), cy+r*float32(sin),
			0.5+0.5*float32(cos), 0.5+0.5*float32(sin))
	}
	for i := 0; i < segments; i++ {
		next := (i + 1) % segments
		g.indices = append(g.indices, base, base+1+uint16(i), base+1+uint16(next))
	}
	return true, nil
}
