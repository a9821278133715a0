package batch

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAddQuad(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	ok, err := g.AddQuad([]float32{0, 0, 10, 0, 10, 10, 0, 10}, nil)
	if err != nil || !ok {
		t.Fatalf("AddQuad = %v, %v", ok, err)
	}
	if g.VertexCount() != 4 || g.IndexCount() != 6 {
		t.Errorf("counts = %d vertices, %d indices", g.VertexCount(), g.IndexCount())
	}

	wantIndices := []uint16{0, 1, 2, 0, 2, 3}
	if diff := cmp.Diff(wantIndices, g.Indices()); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}

	// Default UVs map the full texture.
	wantVertices := []float32{
		0, 0, 0, 0,
		10, 0, 1, 0,
		10, 10, 1, 1,
		0, 10, 0, 1,
	}
	if diff := cmp.Diff(wantVertices, g.Vertices()); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
}

func TestAddQuadWrongArity(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	if _, err := g.AddQuad([]float32{0, 0, 1, 1}, nil); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("short corners err = %v, want ErrMalformedGeometry", err)
	}
	if _, err := g.AddQuad(make([]float32, 8), []float32{0, 0}); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("short uv err = %v, want ErrMalformedGeometry", err)
	}
	if g.VertexCount() != 0 {
		t.Error("failed adds must not stage geometry")
	}
}

func TestAddTriangle(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	ok, err := g.AddTriangle([]float32{0, 0, 10, 0, 5, 10}, nil)
	if err != nil || !ok {
		t.Fatalf("AddTriangle = %v, %v", ok, err)
	}
	if g.VertexCount() != 3 || g.IndexCount() != 3 {
		t.Errorf("counts = %d/%d", g.VertexCount(), g.IndexCount())
	}

	if _, err := g.AddTriangle([]float32{0, 0}, nil); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("wrong arity err = %v", err)
	}
}

func TestAddLine(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	ok, err := g.AddLine(0, 0, 10, 0, 2)
	if err != nil || !ok {
		t.Fatalf("AddLine = %v, %v", ok, err)
	}
	// A line expands to a quad offset by half the width.
	v := g.Vertices()
	if v[1] != 1 || v[13] != -1 {
		t.Errorf("line corners not offset by half width: y0=%v y3=%v", v[1], v[13])
	}

	if _, err := g.AddLine(0, 0, 1, 1, 0); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("zero width err = %v", err)
	}
	if _, err := g.AddLine(5, 5, 5, 5, 1); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("zero length err = %v", err)
	}
}

func TestAddRect(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	ok, err := g.AddRect(1, 2, 3, 4)
	if err != nil || !ok {
		t.Fatalf("AddRect = %v, %v", ok, err)
	}
	v := g.Vertices()
	if v[0] != 1 || v[1] != 2 || v[8] != 4 || v[9] != 6 {
		t.Errorf("rect corners wrong: %v", v[:12])
	}

	if _, err := g.AddRect(0, 0, -1, 5); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("negative width err = %v", err)
	}
}

func TestAddCircle(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	ok, err := g.AddCircle(0, 0, 5, 8)
	if err != nil || !ok {
		t.Fatalf("AddCircle = %v, %v", ok, err)
	}
	if g.VertexCount() != 9 {
		t.Errorf("vertices = %d, want center + 8", g.VertexCount())
	}
	if g.IndexCount() != 24 {
		t.Errorf("indices = %d, want 8 triangles", g.IndexCount())
	}

	if _, err := g.AddCircle(0, 0, 0, 8); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("zero radius err = %v", err)
	}
	if _, err := g.AddCircle(0, 0, 5, 2); !errors.Is(err, ErrMalformedGeometry) {
		t.Errorf("two segments err = %v", err)
	}
}

func TestCapacityReturnsFalse(t *testing.T) {
	g := NewGeometryBuffer(4, 6)

	ok, err := g.AddQuad([]float32{0, 0, 1, 0, 1, 1, 0, 1}, nil)
	if err != nil || !ok {
		t.Fatal("first quad should fit")
	}

	// Full buffer: capacity is a boolean condition, never an error.
	ok, err = g.AddQuad([]float32{0, 0, 1, 0, 1, 1, 0, 1}, nil)
	if err != nil {
		t.Errorf("capacity shortfall returned error %v", err)
	}
	if ok {
		t.Error("second quad should not fit")
	}
	if g.VertexCount() != 4 {
		t.Error("rejected add must not stage geometry")
	}

	g.Reset()
	ok, err = g.AddQuad([]float32{0, 0, 1, 0, 1, 1, 0, 1}, nil)
	if err != nil || !ok {
		t.Error("quad should fit after Reset")
	}
}

func TestIndexRebaseAcrossAdds(t *testing.T) {
	g := NewGeometryBuffer(0, 0)

	g.AddTriangle([]float32{0, 0, 1, 0, 0, 1}, nil)
	g.AddTriangle([]float32{5, 5, 6, 5, 5, 6}, nil)

	want := []uint16{0, 1, 2, 3, 4, 5}
	if diff := cmp.Diff(want, g.Indices()); diff != "" {
		t.Errorf("indices mismatch (-want +got):\n%s", diff)
	}
}
