package formats

import (
	"errors"
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// glTF format errors.
var (
	ErrInvalidGLTF = errors.New("invalid glTF document")
)

const (
	maxNodeDepth    = 256
	lightsExtension = "KHR_lights_punctual"
	generatorName   = "turnaround"
)

// LoadGLTF loads a .gltf or .glb file from disk.
func LoadGLTF(path string) (*scene.Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening glTF: %w", err)
	}
	sc, err := SceneFromDocument(doc, baseName(path))
	if err != nil {
		return nil, err
	}
	sc.Source = path
	return sc, nil
}

// SceneFromDocument flattens the default scene of doc into a scene graph.
// Node transforms are composed down the hierarchy and the Y-up glTF space is
// converted to Z-up.
func SceneFromDocument(doc *gltf.Document, name string) (*scene.Scene, error) {
	sc := scene.New(name)
	for _, root := range rootNodes(doc) {
		if err := visitNode(doc, sc, root, yUpToZUp, 0); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// rootNodes returns the node indices of the default scene, falling back to
// the first scene and then to every node that is nobody's child.
func rootNodes(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}

	child := make(map[int]bool)
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			child[c] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func visitNode(doc *gltf.Document, sc *scene.Scene, idx int, parent math.Mat4, depth int) error {
	if idx < 0 || idx >= len(doc.Nodes) {
		return fmt.Errorf("%w: node index %d out of range", ErrInvalidGLTF, idx)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("%w: node hierarchy deeper than %d", ErrInvalidGLTF, maxNodeDepth)
	}

	node := doc.Nodes[idx]
	world := parent.Mul(nodeMatrix(node))
	name := node.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", idx)
	}

	switch {
	case node.Mesh != nil:
		part, err := meshPart(doc, *node.Mesh, name)
		if err != nil {
			return err
		}
		part.Transform = world
		sc.AddMesh(part)
	case node.Camera != nil:
		sc.AddEntity(name, scene.KindCamera)
	case node.Extensions[lightsExtension] != nil:
		sc.AddEntity(name, scene.KindLight)
	default:
		sc.AddEntity(name, scene.KindEmpty)
	}

	for _, c := range node.Children {
		if err := visitNode(doc, sc, c, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// nodeMatrix returns the local transform of a node. Zero-valued fields are
// treated as their glTF defaults.
func nodeMatrix(n *gltf.Node) math.Mat4 {
	if n.Matrix != ([16]float64{}) && math.Mat4(n.Matrix) != math.Identity() {
		return math.Mat4(n.Matrix)
	}

	t := math.Vec3{X: n.Translation[0], Y: n.Translation[1], Z: n.Translation[2]}
	q := math.QuatIdentity()
	if n.Rotation != ([4]float64{}) {
		q = math.Quat{X: n.Rotation[0], Y: n.Rotation[1], Z: n.Rotation[2], W: n.Rotation[3]}
	}
	s := math.Vec3{X: 1, Y: 1, Z: 1}
	if n.Scale != ([3]float64{}) {
		s = math.Vec3{X: n.Scale[0], Y: n.Scale[1], Z: n.Scale[2]}
	}
	return math.TRS(t, q, s)
}

// meshPart merges every primitive of a mesh into one part.
func meshPart(doc *gltf.Document, meshIdx int, name string) (*scene.MeshPart, error) {
	if meshIdx < 0 || meshIdx >= len(doc.Meshes) {
		return nil, fmt.Errorf("%w: mesh index %d out of range", ErrInvalidGLTF, meshIdx)
	}
	mesh := doc.Meshes[meshIdx]
	part := scene.NewMeshPart(name)

	for pi, prim := range mesh.Primitives {
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			continue
		}
		if posIdx < 0 || posIdx >= len(doc.Accessors) {
			return nil, fmt.Errorf("%w: mesh %q primitive %d: position accessor %d out of range", ErrInvalidGLTF, name, pi, posIdx)
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: mesh %q primitive %d: %v", ErrInvalidGLTF, name, pi, err)
		}

		var indices []uint32
		if prim.Indices != nil {
			if *prim.Indices < 0 || *prim.Indices >= len(doc.Accessors) {
				return nil, fmt.Errorf("%w: mesh %q primitive %d: index accessor out of range", ErrInvalidGLTF, name, pi)
			}
			indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
			if err != nil {
				return nil, fmt.Errorf("%w: mesh %q primitive %d: %v", ErrInvalidGLTF, name, pi, err)
			}
		} else {
			indices = make([]uint32, len(positions))
			for i := range indices {
				indices[i] = uint32(i)
			}
		}

		base := len(part.Vertices)
		for _, p := range positions {
			part.Vertices = append(part.Vertices, math.FromArray(p))
		}
		for _, tri := range primitiveTriangles(prim.Mode, indices) {
			part.Triangles = append(part.Triangles, [3]int{tri[0] + base, tri[1] + base, tri[2] + base})
		}
	}

	if err := part.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGLTF, err)
	}
	return part, nil
}

// primitiveTriangles expands triangle lists, strips and fans. Point and line
// primitives contribute vertices only.
func primitiveTriangles(mode gltf.PrimitiveMode, idx []uint32) [][3]int {
	var tris [][3]int
	switch mode {
	case gltf.PrimitiveTriangles:
		for i := 0; i+2 < len(idx); i += 3 {
			tris = append(tris, [3]int{int(idx[i]), int(idx[i+1]), int(idx[i+2])})
		}
	case gltf.PrimitiveTriangleStrip:
		for i := 0; i+2 < len(idx); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]int{int(idx[i]), int(idx[i+1]), int(idx[i+2])})
			} else {
				tris = append(tris, [3]int{int(idx[i+1]), int(idx[i]), int(idx[i+2])})
			}
		}
	case gltf.PrimitiveTriangleFan:
		for i := 1; i+1 < len(idx); i++ {
			tris = append(tris, [3]int{int(idx[0]), int(idx[i]), int(idx[i+1])})
		}
	}
	return tris
}

// DocumentFromScene builds a glTF document with one node per mesh part.
// Node matrices carry the part transforms converted back to Y-up.
func DocumentFromScene(sc *scene.Scene) *gltf.Document {
	doc := gltf.NewDocument()
	doc.Asset.Generator = generatorName

	for _, part := range sc.MeshParts() {
		node := &gltf.Node{
			Name:   part.Name,
			Matrix: [16]float64(zUpToYUp.Mul(part.Transform)),
		}

		if len(part.Vertices) > 0 {
			positions := make([][3]float32, len(part.Vertices))
			for i, v := range part.Vertices {
				positions[i] = v.Array()
			}
			prim := &gltf.Primitive{
				Attributes: map[string]int{gltf.POSITION: modeler.WritePosition(doc, positions)},
			}
			if len(part.Triangles) > 0 {
				indices := make([]uint32, 0, len(part.Triangles)*3)
				for _, tri := range part.Triangles {
					indices = append(indices, uint32(tri[0]), uint32(tri[1]), uint32(tri[2]))
				}
				prim.Indices = ptr(modeler.WriteIndices(doc, indices))
			} else {
				prim.Mode = gltf.PrimitivePoints
			}
			doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: part.Name, Primitives: []*gltf.Primitive{prim}})
			node.Mesh = ptr(len(doc.Meshes) - 1)
		}

		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	return doc
}

// SaveGLB writes sc as binary glTF.
func SaveGLB(sc *scene.Scene, path string) error {
	if err := gltf.SaveBinary(DocumentFromScene(sc), path); err != nil {
		return fmt.Errorf("writing GLB: %w", err)
	}
	return nil
}

// SaveGLTF writes sc as JSON glTF with its buffers embedded as data URIs.
func SaveGLTF(sc *scene.Scene, path string) error {
	doc := DocumentFromScene(sc)
	for _, b := range doc.Buffers {
		b.EmbeddedResource()
	}
	if err := gltf.Save(doc, path); err != nil {
		return fmt.Errorf("writing glTF: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
