package glrender

import (
	"testing"

	"github.com/Faultbox/turnaround/internal/engine/geometry"
	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

func TestBuildVertices(t *testing.T) {
	p := scene.NewMeshPart("tri")
	p.Vertices = []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	p.Triangles = [][3]int{{0, 1, 2}}
	p.Transform = math.Translate(0, 0, 2)

	verts, err := buildVertices([]*scene.MeshPart{p})
	if err != nil {
		t.Fatalf("buildVertices: %v", err)
	}
	if len(verts) != 3*floatsPerVertex {
		t.Fatalf("got %d floats, want %d", len(verts), 3*floatsPerVertex)
	}
	// Second vertex: world (1, 0, 2), normal +Z.
	want := []float32{1, 0, 2, 0, 0, 1}
	for i, v := range want {
		if verts[floatsPerVertex+i] != v {
			t.Errorf("float %d = %v, want %v", floatsPerVertex+i, verts[floatsPerVertex+i], v)
		}
	}
}

func TestBuildVerticesInvalid(t *testing.T) {
	p := scene.NewMeshPart("bad")
	p.Vertices = []math.Vec3{{}}
	p.Triangles = [][3]int{{0, 1, 2}}
	if _, err := buildVertices([]*scene.MeshPart{p}); err == nil {
		t.Error("expected error for out-of-range indices")
	}
}

func TestBoundsVertices(t *testing.T) {
	box := geometry.BoundingBox{Max: math.Vec3{X: 1, Y: 1, Z: 1}}
	if got := len(boundsVertices(box)); got != 24*floatsPerVertex {
		t.Errorf("got %d floats, want %d", got, 24*floatsPerVertex)
	}
}
