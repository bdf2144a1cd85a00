package math

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
	"pgregory.net/rapid"
)

func TestRotateQuarterTurnsAboutZ(t *testing.T) {
	start := Vec3{0, 3.6, 0.5}
	want := []Vec3{
		{-3.6, 0, 0.5},
		{0, -3.6, 0.5},
		{3.6, 0, 0.5},
		{0, 3.6, 0.5},
	}

	p := start
	for i, w := range want {
		p = Rotate(p, 90, UnitZ)
		if !p.ApproxEqual(w, 1e-12) {
			t.Errorf("step %d: got %v, want %v", i, p, w)
		}
	}
}

func TestRotateAxisNormalizedInternally(t *testing.T) {
	p := Vec3{1, 2, 3}
	a := Rotate(p, 33, Vec3{0, 0, 7})
	b := Rotate(p, 33, UnitZ)
	if !a.ApproxEqual(b, 1e-12) {
		t.Errorf("scaled axis gave %v, unit axis gave %v", a, b)
	}
}

func TestRotateZeroAxis(t *testing.T) {
	p := Vec3{1, 2, 3}
	if got := Rotate(p, 90, Vec3{}); got != p {
		t.Errorf("zero axis should leave point unchanged, got %v", got)
	}
}

func TestRotateRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawVec(t, "p", 1000)
		axis := drawVec(t, "axis", 10)
		if axis.Length() < 1e-3 {
			t.Skip("axis too short")
		}

		q := p
		for i := 0; i < 4; i++ {
			q = Rotate(q, 90, axis)
		}
		if !q.ApproxEqual(p, 1e-6*(1+p.Length())) {
			t.Fatalf("4x90 about %v: got %v, want %v", axis, q, p)
		}
	})
}

func TestRotatePreservesLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawVec(t, "p", 100)
		axis := drawVec(t, "axis", 10)
		angle := rapid.Float64Range(-720, 720).Draw(t, "angle")

		q := Rotate(p, angle, axis)
		if d := q.Length() - p.Length(); d > 1e-9 || d < -1e-9 {
			t.Fatalf("length changed by %v", d)
		}
	})
}

func TestRotateMatchesGonum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := drawVec(t, "p", 100)
		axis := drawVec(t, "axis", 10)
		if axis.Length() < 1e-3 {
			t.Skip("axis too short")
		}
		angle := rapid.Float64Range(-360, 360).Draw(t, "angle")

		got := Rotate(p, angle, axis)
		ref := r3.Rotate(r3.Vec{X: p.X, Y: p.Y, Z: p.Z}, Radians(angle), r3.Vec{X: axis.X, Y: axis.Y, Z: axis.Z})
		want := Vec3{ref.X, ref.Y, ref.Z}
		if !got.ApproxEqual(want, 1e-9) {
			t.Fatalf("Rotate = %v, gonum r3.Rotate = %v", got, want)
		}
	})
}

func drawVec(t *rapid.T, label string, limit float64) Vec3 {
	return Vec3{
		X: rapid.Float64Range(-limit, limit).Draw(t, label+".x"),
		Y: rapid.Float64Range(-limit, limit).Draw(t, label+".y"),
		Z: rapid.Float64Range(-limit, limit).Draw(t, label+".z"),
	}
}
