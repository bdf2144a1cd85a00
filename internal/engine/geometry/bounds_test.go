package geometry

import (
	"errors"
	gomath "math"
	"testing"

	"pgregory.net/rapid"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// boxPart builds a part whose local vertices are the corners of [min, max].
func boxPart(name string, min, max math.Vec3, transform math.Mat4) *scene.MeshPart {
	p := scene.NewMeshPart(name)
	for _, c := range corners(min, max) {
		p.Vertices = append(p.Vertices, c)
	}
	p.Transform = transform
	return p
}

func TestComputeBoundsScenario(t *testing.T) {
	// World-space vertices span x in [-1,1], y in [0,2], z in [-0.5,0.5].
	part := boxPart("model", math.Vec3{X: -1, Y: 0, Z: -0.5}, math.Vec3{X: 1, Y: 2, Z: 0.5}, math.Identity())

	box, err := ComputeBounds([]*scene.MeshPart{part})
	if err != nil {
		t.Fatalf("ComputeBounds: %v", err)
	}

	if box.Min != (math.Vec3{X: -1, Y: 0, Z: -0.5}) {
		t.Errorf("Min = %v, want (-1, 0, -0.5)", box.Min)
	}
	if box.Max != (math.Vec3{X: 1, Y: 2, Z: 0.5}) {
		t.Errorf("Max = %v, want (1, 2, 0.5)", box.Max)
	}
	if box.Extent() != (math.Vec3{X: 2, Y: 2, Z: 1}) {
		t.Errorf("Extent = %v, want (2, 2, 1)", box.Extent())
	}
	if box.Center() != (math.Vec3{X: 0, Y: 1, Z: 0}) {
		t.Errorf("Center = %v, want (0, 1, 0)", box.Center())
	}
}

func TestComputeBoundsMultiplePartsWithTransforms(t *testing.T) {
	unit := math.Vec3{X: 1, Y: 1, Z: 1}
	a := boxPart("a", math.Vec3{}, unit, math.Translate(-3, 0, 0))
	b := boxPart("b", math.Vec3{}, unit, math.Translate(2, 0, 4).Mul(math.Scale(2, 2, 2)))

	box, err := ComputeBounds([]*scene.MeshPart{a, b})
	if err != nil {
		t.Fatalf("ComputeBounds: %v", err)
	}

	wantMin := math.Vec3{X: -3, Y: 0, Z: 0}
	wantMax := math.Vec3{X: 4, Y: 2, Z: 6}
	if box.Min != wantMin || box.Max != wantMax {
		t.Errorf("box = %v..%v, want %v..%v", box.Min, box.Max, wantMin, wantMax)
	}
}

func TestComputeBoundsRotatedPartOverestimates(t *testing.T) {
	// Right triangle rotated 45 degrees about Z: the unused local box corner
	// (1, 1) lands above every real vertex.
	p := scene.NewMeshPart("tri")
	p.Vertices = []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}
	p.Transform = math.RotateZ(gomath.Pi / 4)

	loose, err := ComputeBounds([]*scene.MeshPart{p})
	if err != nil {
		t.Fatal(err)
	}
	tight, err := TightBounds([]*scene.MeshPart{p})
	if err != nil {
		t.Fatal(err)
	}

	if loose.Extent().Y <= tight.Extent().Y+1e-9 {
		t.Errorf("expected corner bound to exceed tight bound: loose %v tight %v", loose.Extent(), tight.Extent())
	}
	for _, c := range tight.Corners() {
		if !loose.Contains(c, 1e-9) {
			t.Errorf("tight corner %v outside corner bound %v..%v", c, loose.Min, loose.Max)
		}
	}
}

func TestComputeBoundsNoParts(t *testing.T) {
	_, err := ComputeBounds(nil)
	if !errors.Is(err, ErrNoGeometryFound) {
		t.Errorf("expected ErrNoGeometryFound, got %v", err)
	}
	_, err = TightBounds([]*scene.MeshPart{})
	if !errors.Is(err, ErrNoGeometryFound) {
		t.Errorf("expected ErrNoGeometryFound from TightBounds, got %v", err)
	}
}

func TestComputeBoundsEmptyPartsDegenerate(t *testing.T) {
	box, err := ComputeBounds([]*scene.MeshPart{scene.NewMeshPart("empty")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !box.IsDegenerate() {
		t.Errorf("expected degenerate box, got %v..%v", box.Min, box.Max)
	}
}

func TestEdges(t *testing.T) {
	box := BoundingBox{Min: math.Vec3{}, Max: math.Vec3{X: 1, Y: 2, Z: 3}}
	edges := box.Edges()

	var total float64
	for _, e := range edges {
		total += e[0].Distance(e[1])
	}
	// 4 edges of each dimension
	if want := 4.0 * (1 + 2 + 3); gomath.Abs(total-want) > 1e-12 {
		t.Errorf("total edge length = %v, want %v", total, want)
	}
}

func TestBoundsSupersetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nParts := rapid.IntRange(1, 4).Draw(t, "parts")
		parts := make([]*scene.MeshPart, nParts)
		for i := range parts {
			p := scene.NewMeshPart("p")
			nVerts := rapid.IntRange(0, 12).Draw(t, "verts")
			for j := 0; j < nVerts; j++ {
				p.Vertices = append(p.Vertices, drawVec(t, "v", 50))
			}
			p.Transform = drawTransform(t)
			parts[i] = p
		}

		box, err := ComputeBounds(parts)
		if err != nil {
			t.Fatalf("ComputeBounds: %v", err)
		}

		for _, p := range parts {
			for _, w := range p.WorldVertices() {
				if !box.Contains(w, 1e-9*(1+w.Length())) {
					t.Fatalf("world vertex %v outside %v..%v", w, box.Min, box.Max)
				}
			}
		}
	})
}

func drawVec(t *rapid.T, label string, limit float64) math.Vec3 {
	return math.Vec3{
		X: rapid.Float64Range(-limit, limit).Draw(t, label+".x"),
		Y: rapid.Float64Range(-limit, limit).Draw(t, label+".y"),
		Z: rapid.Float64Range(-limit, limit).Draw(t, label+".z"),
	}
}

func drawTransform(t *rapid.T) math.Mat4 {
	tr := drawVec(t, "translate", 20)
	axis := drawVec(t, "axis", 1)
	angle := rapid.Float64Range(-gomath.Pi, gomath.Pi).Draw(t, "angle")
	s := math.Vec3{
		X: rapid.Float64Range(0.1, 5).Draw(t, "sx"),
		Y: rapid.Float64Range(0.1, 5).Draw(t, "sy"),
		Z: rapid.Float64Range(0.1, 5).Draw(t, "sz"),
	}
	return math.Translate(tr.X, tr.Y, tr.Z).
		Mul(math.RotateAxis(axis, angle)).
		Mul(math.Scale(s.X, s.Y, s.Z))
}
