// Package lighting provides the two-sun light rig used for turnaround renders.
package lighting

import (
	gomath "math"

	"github.com/Faultbox/turnaround/pkg/math"
)

// SunEnergy is the strength of both rig lights.
const SunEnergy = 20.0

// Pose is a directional (sun) light. Position only matters to exporters and
// debug output; a sun lights the scene along Direction wherever it sits.
type Pose struct {
	Name     string
	Position math.Vec3
	// Rotation holds Euler XYZ angles in radians. Nil means unrotated.
	Rotation *math.Vec3
	Energy   float64
}

// Direction returns the unit vector the light travels along: the local -Z
// axis turned by Rotation. An unrotated sun points straight down.
func (p Pose) Direction() math.Vec3 {
	down := math.Vec3{X: 0, Y: 0, Z: -1}
	if p.Rotation == nil {
		return down
	}
	return math.EulerXYZ(*p.Rotation).TransformDirection(down).Normalize()
}

// ToLight returns the unit vector from a lit surface towards the light.
func (p Pose) ToLight() math.Vec3 {
	return p.Direction().Negate()
}

// Rig is the key and fill light pair.
type Rig struct {
	Key  Pose
	Fill Pose
}

// NewRig builds the light rig for a model of vertical extent dz.
func NewRig(dz float64) Rig {
	if gomath.IsNaN(dz) || gomath.IsInf(dz, 0) {
		dz = 0
	}
	fillRotation := math.Vec3{X: 2, Y: 0.3, Z: 0.3}
	return Rig{
		Key: Pose{
			Name:     "key",
			Position: math.Vec3{X: 3, Y: 4, Z: -5},
			Energy:   SunEnergy,
		},
		Fill: Pose{
			Name:     "fill",
			Position: math.Vec3{X: 0, Y: 0, Z: -dz / 8},
			Rotation: &fillRotation,
			Energy:   SunEnergy,
		},
	}
}

// Lights returns the lights in order key, fill.
func (r Rig) Lights() []Pose {
	return []Pose{r.Key, r.Fill}
}
