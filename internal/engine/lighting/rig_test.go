package lighting

import (
	gomath "math"
	"testing"

	"github.com/Faultbox/turnaround/pkg/math"
)

func TestNewRig(t *testing.T) {
	rig := NewRig(4)

	if rig.Key.Position != (math.Vec3{X: 3, Y: 4, Z: -5}) {
		t.Errorf("key position = %v", rig.Key.Position)
	}
	if rig.Key.Rotation != nil {
		t.Errorf("key rotation = %v, want nil", *rig.Key.Rotation)
	}
	if rig.Fill.Position != (math.Vec3{X: 0, Y: 0, Z: -0.5}) {
		t.Errorf("fill position = %v, want (0, 0, -0.5)", rig.Fill.Position)
	}
	if rig.Fill.Rotation == nil || *rig.Fill.Rotation != (math.Vec3{X: 2, Y: 0.3, Z: 0.3}) {
		t.Errorf("fill rotation = %v", rig.Fill.Rotation)
	}
	for _, l := range rig.Lights() {
		if l.Energy != SunEnergy {
			t.Errorf("%s energy = %v, want %v", l.Name, l.Energy, SunEnergy)
		}
	}

	lights := rig.Lights()
	if len(lights) != 2 || lights[0].Name != "key" || lights[1].Name != "fill" {
		t.Errorf("unexpected light order: %+v", lights)
	}
}

func TestNewRigNonFinite(t *testing.T) {
	for _, dz := range []float64{gomath.NaN(), gomath.Inf(1), 0, -2} {
		rig := NewRig(dz)
		if !rig.Fill.Position.IsFinite() {
			t.Errorf("NewRig(%v) fill position not finite: %v", dz, rig.Fill.Position)
		}
	}
}

func TestDirection(t *testing.T) {
	key := Pose{}
	if key.Direction() != (math.Vec3{Z: -1}) {
		t.Errorf("unrotated sun direction = %v, want straight down", key.Direction())
	}
	if key.ToLight() != (math.Vec3{Z: 1}) {
		t.Errorf("ToLight = %v, want straight up", key.ToLight())
	}

	tests := []struct {
		name string
		rot  math.Vec3
		want math.Vec3
	}{
		{"x quarter turn", math.Vec3{X: gomath.Pi / 2}, math.Vec3{Y: 1}},
		{"y quarter turn", math.Vec3{Y: gomath.Pi / 2}, math.Vec3{X: -1}},
		{"z turn keeps down", math.Vec3{Z: 1.3}, math.Vec3{Z: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rot := tt.rot
			got := Pose{Rotation: &rot}.Direction()
			if !got.ApproxEqual(tt.want, 1e-12) {
				t.Errorf("Direction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFillDirection(t *testing.T) {
	d := NewRig(1).Fill.Direction()

	if gomath.Abs(d.Length()-1) > 1e-12 {
		t.Fatalf("direction not unit length: %v", d)
	}

	// Rx(2) tips -Z towards +Y and up; Ry then Rz only tilt it slightly.
	if d.Z <= 0 || d.Y <= 0 {
		t.Errorf("fill should shine upwards and towards +Y, got %v", d)
	}
}
