package geometry

import (
	gomath "math"
	"testing"

	"pgregory.net/rapid"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

func TestNormalizeGroundsPart(t *testing.T) {
	p := boxPart("crate", math.Vec3{X: -1, Y: -1, Z: -1}, math.Vec3{X: 1, Y: 1, Z: 1}, math.Translate(5, -2, 3))

	Normalize(p)

	if p.Position() != (math.Vec3{}) {
		t.Errorf("origin = %v, want world origin", p.Position())
	}

	box, _ := TightBounds([]*scene.MeshPart{p})
	if gomath.Abs(box.Min.Z) > 1e-12 {
		t.Errorf("lowest vertex z = %v, want 0", box.Min.Z)
	}
	c := box.Center()
	if gomath.Abs(c.X) > 1e-12 || gomath.Abs(c.Y) > 1e-12 {
		t.Errorf("horizontal center = (%v, %v), want (0, 0)", c.X, c.Y)
	}
	if !box.Extent().ApproxEqual(math.Vec3{X: 2, Y: 2, Z: 2}, 1e-12) {
		t.Errorf("extent changed: %v", box.Extent())
	}
}

func TestNormalizeUsesTrueMinimum(t *testing.T) {
	// Rotated triangle: the corner approximation dips below the real lowest
	// vertex, normalization must use the vertex itself.
	p := scene.NewMeshPart("tri")
	p.Vertices = []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}}
	p.Transform = math.RotateY(gomath.Pi / 4)

	Normalize(p)

	minZ := gomath.Inf(1)
	for _, w := range p.WorldVertices() {
		minZ = gomath.Min(minZ, w.Z)
	}
	if gomath.Abs(minZ) > 1e-12 {
		t.Errorf("min world z = %v, want 0", minZ)
	}
}

func TestNormalizeKeepsRotationAndScale(t *testing.T) {
	rot := math.RotateAxis(math.Vec3{X: 1, Y: 1, Z: 0}, 0.6).Mul(math.Scale(2, 2, 2))
	p := boxPart("p", math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1}, math.Translate(1, 2, 3).Mul(rot))

	before := p.WorldVertices()
	Normalize(p)
	after := p.WorldVertices()

	for i := 0; i < 16; i++ {
		if i >= 12 && i <= 14 {
			continue
		}
		if gomath.Abs(p.Transform[i]-rot[i]) > 1e-12 {
			t.Fatalf("linear part changed at %d: %v vs %v", i, p.Transform[i], rot[i])
		}
	}

	// Every vertex moved by the same offset.
	delta := after[0].Sub(before[0])
	for i := range before {
		if d := after[i].Sub(before[i]); !d.ApproxEqual(delta, 1e-9) {
			t.Fatalf("vertex %d moved by %v, vertex 0 by %v", i, d, delta)
		}
	}
}

func TestNormalizeSingularTransformBakes(t *testing.T) {
	p := boxPart("flat", math.Vec3{}, math.Vec3{X: 1, Y: 1, Z: 1}, math.Translate(0, 0, 4).Mul(math.Scale(1, 1, 0)))

	Normalize(p)

	if p.Transform != math.Identity() {
		t.Errorf("expected identity transform after baking, got %v", p.Transform)
	}
	for _, w := range p.WorldVertices() {
		if w.Z != 0 {
			t.Fatalf("flattened part should rest on the ground, got z=%v", w.Z)
		}
	}
}

func TestNormalizeEmptyPartIsNoop(t *testing.T) {
	p := scene.NewMeshPart("empty")
	p.Transform = math.Translate(1, 2, 3)

	Normalize(p)

	if p.Transform != math.Translate(1, 2, 3) {
		t.Error("empty part should be left untouched")
	}
}

func TestNormalizeSceneModes(t *testing.T) {
	unit := math.Vec3{X: 1, Y: 1, Z: 1}
	build := func() []*scene.MeshPart {
		return []*scene.MeshPart{
			boxPart("base", math.Vec3{}, unit, math.Translate(0, 0, 1)),
			boxPart("top", math.Vec3{}, unit, math.Translate(0, 0, 2)),
		}
	}

	t.Run("per-part", func(t *testing.T) {
		parts := build()
		NormalizeScene(parts, ModePerPart)
		for _, p := range parts {
			box, _ := TightBounds([]*scene.MeshPart{p})
			if box.Min.Z != 0 {
				t.Errorf("%s: min z = %v, want 0", p.Name, box.Min.Z)
			}
		}
	})

	t.Run("scene", func(t *testing.T) {
		parts := build()
		NormalizeScene(parts, ModeScene)
		base, _ := TightBounds(parts[:1])
		top, _ := TightBounds(parts[1:])
		if base.Min.Z != 0 {
			t.Errorf("base min z = %v, want 0", base.Min.Z)
		}
		if top.Min.Z != 1 {
			t.Errorf("top should stay stacked on base, min z = %v", top.Min.Z)
		}
		for _, p := range parts {
			if p.Position() != (math.Vec3{}) {
				t.Errorf("%s origin = %v, want world origin", p.Name, p.Position())
			}
		}
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"per-part", ModePerPart, false},
		{"scene", ModeScene, false},
		{"", ModePerPart, false},
		{"last", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestNormalizeIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := scene.NewMeshPart("p")
		n := rapid.IntRange(1, 10).Draw(t, "verts")
		for i := 0; i < n; i++ {
			p.Vertices = append(p.Vertices, drawVec(t, "v", 20))
		}
		p.Transform = drawTransform(t)

		Normalize(p)
		once := p.WorldVertices()
		oncePos := p.Position()

		Normalize(p)
		twice := p.WorldVertices()

		if p.Position() != oncePos {
			t.Fatalf("second pass moved origin: %v -> %v", oncePos, p.Position())
		}
		for i := range once {
			if !twice[i].ApproxEqual(once[i], 1e-7*(1+once[i].Length())) {
				t.Fatalf("vertex %d moved on second pass: %v -> %v", i, once[i], twice[i])
			}
		}
	})
}
