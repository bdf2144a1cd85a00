package math

import "math"

// Rotate rotates point p by angleDegrees counterclockwise about axis, which
// passes through the origin. The axis does not need to be normalized; a zero
// axis leaves p unchanged.
//
// Uses the Rodrigues formula:
//
//	p' = p cosθ + (k × p) sinθ + k (k · p)(1 - cosθ)
func Rotate(p Vec3, angleDegrees float64, axis Vec3) Vec3 {
	k := axis.Normalize()
	if k.IsZero() {
		return p
	}

	theta := Radians(angleDegrees)
	c, s := math.Cos(theta), math.Sin(theta)

	return p.Scale(c).
		Add(k.Cross(p).Scale(s)).
		Add(k.Scale(k.Dot(p) * (1 - c)))
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}
