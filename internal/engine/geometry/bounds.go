// Package geometry computes world-space bounds over mesh parts and
// normalizes parts onto the canonical origin and ground plane.
package geometry

import (
	"errors"
	gomath "math"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// ErrNoGeometryFound is returned when a scene has no mesh parts.
var ErrNoGeometryFound = errors.New("no mesh geometry found")

// BoundingBox is an axis-aligned box in world space with Min <= Max.
type BoundingBox struct {
	Min math.Vec3
	Max math.Vec3
}

// emptyBox is the identity for Extend.
func emptyBox() BoundingBox {
	inf := gomath.Inf(1)
	return BoundingBox{
		Min: math.Vec3{X: inf, Y: inf, Z: inf},
		Max: math.Vec3{X: -inf, Y: -inf, Z: -inf},
	}
}

// Extend grows the box to include p.
func (b *BoundingBox) Extend(p math.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// valid reports whether Extend has been called at least once.
func (b BoundingBox) valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Extent returns Max - Min.
func (b BoundingBox) Extent() math.Vec3 {
	return b.Max.Sub(b.Min)
}

// Center returns Min + 0.5*Extent.
func (b BoundingBox) Center() math.Vec3 {
	return b.Min.Add(b.Extent().Scale(0.5))
}

// IsDegenerate reports whether all three dimensions are zero.
func (b BoundingBox) IsDegenerate() bool {
	return b.Extent().IsZero()
}

// Contains reports whether p lies inside the box grown by eps on every side.
func (b BoundingBox) Contains(p math.Vec3, eps float64) bool {
	return p.X >= b.Min.X-eps && p.X <= b.Max.X+eps &&
		p.Y >= b.Min.Y-eps && p.Y <= b.Max.Y+eps &&
		p.Z >= b.Min.Z-eps && p.Z <= b.Max.Z+eps
}

// Corners returns the 8 corners, min corner first and max corner last.
func (b BoundingBox) Corners() [8]math.Vec3 {
	return corners(b.Min, b.Max)
}

// Edges returns the 12 edges of the box as endpoint pairs:
// 4 on the bottom face, 4 on the top face, then the 4 verticals.
func (b BoundingBox) Edges() [12][2]math.Vec3 {
	c := b.Corners()
	// Corner index bits: 1 = max X, 2 = max Y, 4 = max Z.
	return [12][2]math.Vec3{
		{c[0], c[1]}, {c[1], c[3]}, {c[3], c[2]}, {c[2], c[0]},
		{c[4], c[5]}, {c[5], c[7]}, {c[7], c[6]}, {c[6], c[4]},
		{c[0], c[4]}, {c[1], c[5]}, {c[3], c[7]}, {c[2], c[6]},
	}
}

func corners(min, max math.Vec3) [8]math.Vec3 {
	var out [8]math.Vec3
	for i := range out {
		p := min
		if i&1 != 0 {
			p.X = max.X
		}
		if i&2 != 0 {
			p.Y = max.Y
		}
		if i&4 != 0 {
			p.Z = max.Z
		}
		out[i] = p
	}
	return out
}

// ComputeBounds returns a world-space box covering every part. Each part
// contributes the 8 corners of its local AABB transformed to world space, so
// a rotated part can yield a box larger than the tight bound but never a
// smaller one. Parts without vertices contribute nothing; if no part has
// vertices the result is a zero box at the origin.
func ComputeBounds(parts []*scene.MeshPart) (BoundingBox, error) {
	if len(parts) == 0 {
		return BoundingBox{}, ErrNoGeometryFound
	}

	box := emptyBox()
	for _, p := range parts {
		min, max, ok := p.LocalBounds()
		if !ok {
			continue
		}
		for _, c := range corners(min, max) {
			box.Extend(p.Transform.TransformPoint(c))
		}
	}

	if !box.valid() {
		return BoundingBox{}, nil
	}
	return box, nil
}

// TightBounds returns the exact world-space box over every vertex of every
// part. It costs one transform per vertex.
func TightBounds(parts []*scene.MeshPart) (BoundingBox, error) {
	if len(parts) == 0 {
		return BoundingBox{}, ErrNoGeometryFound
	}

	box := emptyBox()
	for _, p := range parts {
		for i := range p.Vertices {
			box.Extend(p.WorldVertex(i))
		}
	}

	if !box.valid() {
		return BoundingBox{}, nil
	}
	return box, nil
}
