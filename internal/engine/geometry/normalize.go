package geometry

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// Mode selects how a scene's parts are normalized.
type Mode string

const (
	// ModePerPart grounds and centers each part on its own.
	ModePerPart Mode = "per-part"
	// ModeScene applies one shared offset to every part so assemblies stay intact.
	ModeScene Mode = "scene"
)

// ParseMode validates a normalization mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePerPart, ModeScene:
		return Mode(s), nil
	case "":
		return ModePerPart, nil
	default:
		return "", fmt.Errorf("unknown normalization mode %q (want %q or %q)", s, ModePerPart, ModeScene)
	}
}

// GroundOffset returns the world-space translation that moves the horizontal
// center of the given vertices to x = y = 0 and their lowest point to z = 0.
// ok is false when there are no vertices.
func GroundOffset(parts ...*scene.MeshPart) (offset math.Vec3, ok bool) {
	minX, minY, minZ := gomath.Inf(1), gomath.Inf(1), gomath.Inf(1)
	maxX, maxY := gomath.Inf(-1), gomath.Inf(-1)

	for _, p := range parts {
		for i := range p.Vertices {
			w := p.WorldVertex(i)
			minX = gomath.Min(minX, w.X)
			maxX = gomath.Max(maxX, w.X)
			minY = gomath.Min(minY, w.Y)
			maxY = gomath.Max(maxY, w.Y)
			minZ = gomath.Min(minZ, w.Z)
		}
	}

	if gomath.IsInf(minZ, 1) {
		return math.Vec3{}, false
	}

	return math.Vec3{
		X: -(minX + maxX) / 2,
		Y: -(minY + maxY) / 2,
		Z: -minZ,
	}, true
}

// Normalize moves part so its origin sits at world (0, 0, 0), its horizontal
// center lies on the vertical axis and its lowest vertex rests at z = 0.
// Rotation and scale are kept. A part without vertices is left untouched.
func Normalize(part *scene.MeshPart) {
	offset, ok := GroundOffset(part)
	if !ok {
		return
	}
	applyOffset(part, offset)
}

// NormalizeScene normalizes parts according to mode.
func NormalizeScene(parts []*scene.MeshPart, mode Mode) {
	switch mode {
	case ModeScene:
		offset, ok := GroundOffset(parts...)
		if !ok {
			return
		}
		for _, p := range parts {
			applyOffset(p, offset)
		}
	default:
		for _, p := range parts {
			Normalize(p)
		}
	}
}

// applyOffset translates the part's world geometry by offset and then moves
// the part origin to world (0, 0, 0) without moving the geometry again.
// Local vertices are rebased through the inverse of the linear part of the
// transform; if that is singular the world positions are baked instead.
func applyOffset(part *scene.MeshPart, offset math.Vec3) {
	if len(part.Vertices) == 0 {
		return
	}

	origin := part.Transform.WithTranslation(math.Vec3{})
	inv, ok := origin.Inverse()
	if !ok {
		for i := range part.Vertices {
			part.Vertices[i] = part.WorldVertex(i).Add(offset)
		}
		part.Transform = math.Identity()
		return
	}

	// v' = L^-1 (T v + offset)
	for i := range part.Vertices {
		part.Vertices[i] = inv.TransformPoint(part.WorldVertex(i).Add(offset))
	}
	part.Transform = origin
}
