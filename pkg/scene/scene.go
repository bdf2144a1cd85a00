// Package scene holds the imported scene graph: mesh parts with their
// local geometry and local-to-world transforms, plus the non-mesh entities
// importers encounter along the way.
package scene

import (
	"fmt"

	"github.com/Faultbox/turnaround/pkg/math"
)

// Kind identifies what an entity in the scene graph is.
type Kind int

const (
	KindEmpty  Kind = iota // Transform-only node
	KindMesh               // Renderable geometry
	KindCamera             // Camera carried by the source file
	KindLight              // Light carried by the source file
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindMesh:
		return "mesh"
	case KindCamera:
		return "camera"
	case KindLight:
		return "light"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// MeshPart is one mesh entity: vertex positions in local space, triangle
// indices into Vertices, and the transform mapping local to world space.
type MeshPart struct {
	Name      string
	Vertices  []math.Vec3
	Triangles [][3]int
	Transform math.Mat4
}

// NewMeshPart creates a mesh part with an identity transform.
func NewMeshPart(name string) *MeshPart {
	return &MeshPart{Name: name, Transform: math.Identity()}
}

// LocalBounds returns the local-space axis-aligned bounds of the vertices.
// ok is false when the part has no vertices.
func (p *MeshPart) LocalBounds() (min, max math.Vec3, ok bool) {
	if len(p.Vertices) == 0 {
		return math.Vec3{}, math.Vec3{}, false
	}
	min, max = p.Vertices[0], p.Vertices[0]
	for _, v := range p.Vertices[1:] {
		min = min.Min(v)
		max = max.Max(v)
	}
	return min, max, true
}

// WorldVertex returns vertex i transformed into world space.
func (p *MeshPart) WorldVertex(i int) math.Vec3 {
	return p.Transform.TransformPoint(p.Vertices[i])
}

// WorldVertices returns every vertex transformed into world space.
func (p *MeshPart) WorldVertices() []math.Vec3 {
	out := make([]math.Vec3, len(p.Vertices))
	for i, v := range p.Vertices {
		out[i] = p.Transform.TransformPoint(v)
	}
	return out
}

// Position returns the part's origin in world space.
func (p *MeshPart) Position() math.Vec3 {
	return p.Transform.Translation()
}

// Validate checks that every triangle index refers to an existing vertex.
func (p *MeshPart) Validate() error {
	n := len(p.Vertices)
	for i, tri := range p.Triangles {
		for _, idx := range tri {
			if idx < 0 || idx >= n {
				return fmt.Errorf("mesh %q: triangle %d index %d out of range [0,%d)", p.Name, i, idx, n)
			}
		}
	}
	return nil
}

// Entity is a node in the scene graph. Mesh is set only for KindMesh.
type Entity struct {
	Name string
	Kind Kind
	Mesh *MeshPart
}

// Scene is the flattened scene graph produced by an importer.
type Scene struct {
	Source   string
	Entities []Entity
}

// New creates an empty scene for the given source path.
func New(source string) *Scene {
	return &Scene{Source: source}
}

// AddMesh appends a mesh entity.
func (s *Scene) AddMesh(part *MeshPart) {
	s.Entities = append(s.Entities, Entity{Name: part.Name, Kind: KindMesh, Mesh: part})
}

// AddEntity appends a non-mesh entity.
func (s *Scene) AddEntity(name string, kind Kind) {
	s.Entities = append(s.Entities, Entity{Name: name, Kind: kind})
}

// MeshParts returns the mesh parts in scene order. Other entities are ignored.
func (s *Scene) MeshParts() []*MeshPart {
	var parts []*MeshPart
	for _, e := range s.Entities {
		if e.Kind == KindMesh && e.Mesh != nil {
			parts = append(parts, e.Mesh)
		}
	}
	return parts
}

// Stats returns vertex and triangle totals across all mesh parts.
func (s *Scene) Stats() (vertices, triangles int) {
	for _, p := range s.MeshParts() {
		vertices += len(p.Vertices)
		triangles += len(p.Triangles)
	}
	return vertices, triangles
}
