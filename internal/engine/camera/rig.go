// Package camera places the turnaround cameras around a normalized model.
package camera

import (
	"iter"
	gomath "math"

	"github.com/Faultbox/turnaround/pkg/math"
)

// View labels in capture order.
const (
	LabelOrg     = "org"
	LabelSide0   = "side0"
	LabelSide90  = "side90"
	LabelSide180 = "side180"
	LabelSide270 = "side270"
	LabelTop     = "top"
	LabelBottom  = "bottom"
)

// Labels returns the view labels in the order Rig.Views produces them.
func Labels() []string {
	return []string{LabelOrg, LabelSide0, LabelSide90, LabelSide180, LabelSide270, LabelTop, LabelBottom}
}

const (
	// DefaultMinExtent replaces degenerate extent components during placement.
	DefaultMinExtent = 0.01

	// DefaultLensMM and DefaultSensorMM describe the physical camera.
	DefaultLensMM   = 35.0
	DefaultSensorMM = 32.0

	orgDepthFactor  = 1.8 // org distance along +Y, times extent Y
	orgHeightFactor = 0.5 // org height, times extent Z
	capDepthFactor  = 5.0 // top/bottom distance, times extent Z
	sideStepDegrees = 90.0
)

// Pose is a camera position looking at Target with Up as the vertical hint.
type Pose struct {
	Position math.Vec3
	Target   math.Vec3
	Up       math.Vec3
}

// ViewMatrix returns the world-to-camera matrix for the pose.
func (p Pose) ViewMatrix() math.Mat4 {
	return math.LookAt(p.Position, p.Target, p.Up)
}

// View is one labeled pose of the turnaround.
type View struct {
	Label string
	Pose  Pose
}

// ViewSequence is the ordered list of views rendered for one model.
type ViewSequence []View

// All iterates the views with their index.
func (s ViewSequence) All() iter.Seq2[int, View] {
	return func(yield func(int, View) bool) {
		for i, v := range s {
			if !yield(i, v) {
				return
			}
		}
	}
}

// Labels returns the labels of s in order.
func (s ViewSequence) Labels() []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = v.Label
	}
	return out
}

// Rig holds the framing derived from a model's bounding box extent.
type Rig struct {
	// Extent is the model extent with degenerate components replaced.
	Extent math.Vec3
	// Radius is half the larger of the X and Z extents. Always > 0.
	Radius float64
}

// NewRig derives the camera rig from a bounding box extent. Components that
// are zero, negative or non-finite are replaced by minExtent; small positive
// components are kept so tiny models stay framed. minExtent <= 0 selects
// DefaultMinExtent.
func NewRig(extent math.Vec3, minExtent float64) Rig {
	if !(minExtent > 0) {
		minExtent = DefaultMinExtent
	}
	e := math.Vec3{
		X: fallbackExtent(extent.X, minExtent),
		Y: fallbackExtent(extent.Y, minExtent),
		Z: fallbackExtent(extent.Z, minExtent),
	}
	return Rig{
		Extent: e,
		Radius: 0.5 * gomath.Max(e.X, e.Z),
	}
}

func fallbackExtent(v, fallback float64) float64 {
	if gomath.IsNaN(v) || gomath.IsInf(v, 0) || v <= 0 {
		return fallback
	}
	return v
}

// Views returns a fresh view sequence: org, four side views 90 degrees apart
// counterclockwise about +Z starting at org, then top and bottom. side0 shares
// org's pose, so the first two images are identical.
func (r Rig) Views() ViewSequence {
	dy, dz := r.Extent.Y, r.Extent.Z
	pose := func(p math.Vec3) Pose {
		return Pose{Position: p, Target: math.Zero, Up: math.UnitZ}
	}

	org := math.Vec3{X: 0, Y: dy * orgDepthFactor, Z: dz * orgHeightFactor}
	views := make(ViewSequence, 0, 7)
	views = append(views, View{Label: LabelOrg, Pose: pose(org)})

	pos := org
	for _, label := range []string{LabelSide0, LabelSide90, LabelSide180, LabelSide270} {
		views = append(views, View{Label: label, Pose: pose(pos)})
		pos = math.Rotate(pos, sideStepDegrees, math.UnitZ)
	}

	views = append(views,
		View{Label: LabelTop, Pose: pose(math.Vec3{Z: dz * capDepthFactor})},
		View{Label: LabelBottom, Pose: pose(math.Vec3{Z: -dz * capDepthFactor})},
	)
	return views
}

// Clip returns near and far planes that keep the whole model in range from
// every pose of the rig.
func (r Rig) Clip() (near, far float64) {
	var farthest float64
	for _, v := range r.Views() {
		farthest = gomath.Max(farthest, v.Pose.Position.Length())
	}
	reach := r.Extent.Length()
	near = gomath.Max(farthest*1e-3, 1e-5)
	far = farthest + 2*reach
	return near, far
}

// FieldOfView returns the vertical field of view in radians for a lens and
// sensor size in millimetres. The sensor spans the larger image dimension.
func FieldOfView(lensMM, sensorMM, aspect float64) float64 {
	half := sensorMM / (2 * lensMM)
	if aspect >= 1 {
		return 2 * gomath.Atan(half/aspect)
	}
	return 2 * gomath.Atan(half)
}

// Projection returns the perspective matrix for the rig.
func (r Rig) Projection(lensMM, sensorMM, aspect float64) math.Mat4 {
	near, far := r.Clip()
	return math.Perspective(FieldOfView(lensMM, sensorMM, aspect), aspect, near, far)
}
