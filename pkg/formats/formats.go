// Package formats imports and exports 3D model files as scene graphs.
package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// Registry errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported model format")
	ErrNoImporter        = errors.New("no importer available for format")
	ErrNoExporter        = errors.New("no exporter available for format")
)

// RecognizedExtensions lists every model extension the pipeline accepts as
// input, lowercase and without the leading dot.
var RecognizedExtensions = []string{
	"abc", "blend", "dae", "fbx", "glb", "gltf", "obj", "ply", "stl", "wrl", "x3d",
}

// Importer loads a model file into a scene graph.
type Importer interface {
	Import(path string) (*scene.Scene, error)
}

// ImporterFunc adapts a function to the Importer interface.
type ImporterFunc func(path string) (*scene.Scene, error)

// Import calls f(path).
func (f ImporterFunc) Import(path string) (*scene.Scene, error) {
	return f(path)
}

// Exporter writes a scene graph to a model file.
type Exporter interface {
	Export(sc *scene.Scene, path string) error
}

// ExporterFunc adapts a function to the Exporter interface.
type ExporterFunc func(sc *scene.Scene, path string) error

// Export calls f(sc, path).
func (f ExporterFunc) Export(sc *scene.Scene, path string) error {
	return f(sc, path)
}

// Registry maps file extensions to importers and format tokens to exporters.
type Registry struct {
	recognized map[string]bool
	importers  map[string]Importer
	exporters  map[string]Exporter
}

// NewRegistry creates a registry with the built-in importers and exporters.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()

	r.Register("obj", ImporterFunc(LoadOBJ))
	r.Register("stl", ImporterFunc(LoadSTL))
	r.Register("ply", ImporterFunc(LoadPLY))
	r.Register("gltf", ImporterFunc(LoadGLTF))
	r.Register("glb", ImporterFunc(LoadGLTF))

	r.RegisterExporter("glb", ExporterFunc(SaveGLB))
	r.RegisterExporter("gltf", ExporterFunc(SaveGLTF))
	r.RegisterExporter("obj", ExporterFunc(SaveOBJ))

	return r
}

// NewEmptyRegistry creates a registry that recognizes the standard extensions
// but has no importers or exporters registered.
func NewEmptyRegistry() *Registry {
	r := &Registry{
		recognized: make(map[string]bool),
		importers:  make(map[string]Importer),
		exporters:  make(map[string]Exporter),
	}
	for _, ext := range RecognizedExtensions {
		r.recognized[ext] = true
	}
	return r
}

// Register adds or replaces the importer for ext and marks ext as recognized.
func (r *Registry) Register(ext string, imp Importer) {
	ext = normalizeExt(ext)
	r.recognized[ext] = true
	r.importers[ext] = imp
}

// RegisterExporter adds or replaces the exporter for a format token.
func (r *Registry) RegisterExporter(format string, exp Exporter) {
	r.exporters[normalizeExt(format)] = exp
}

// Ext returns the lowercase extension of path without the dot.
func Ext(path string) string {
	return normalizeExt(filepath.Ext(path))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Recognized reports whether the extension of path is a known model format.
func (r *Registry) Recognized(path string) bool {
	return r.recognized[Ext(path)]
}

// Import loads path with the importer registered for its extension.
func (r *Registry) Import(path string) (*scene.Scene, error) {
	ext := Ext(path)
	if !r.recognized[ext] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	imp, ok := r.importers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoImporter, ext)
	}
	sc, err := imp.Import(path)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// Exporter returns the exporter for a format token such as "glb".
func (r *Registry) Exporter(format string) (Exporter, error) {
	exp, ok := r.exporters[normalizeExt(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoExporter, format)
	}
	return exp, nil
}

// Extensions returns the recognized extensions, sorted.
func (r *Registry) Extensions() []string {
	return sortedKeys(r.recognized)
}

// ImportableExtensions returns the extensions that have an importer, sorted.
func (r *Registry) ImportableExtensions() []string {
	return sortedKeys(r.importers)
}

// ExportFormats returns the registered export format tokens, sorted.
func (r *Registry) ExportFormats() []string {
	return sortedKeys(r.exporters)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Axis conversions between Y-up file conventions (OBJ, glTF) and the Z-up
// scene space: (x, y, z) Y-up is (x, -z, y) Z-up.
var (
	yUpToZUp = math.Mat4{
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, -1, 0, 0,
		0, 0, 0, 1,
	}
	zUpToYUp = math.Mat4{
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}
)

// baseName returns the file name of path without its extension.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// fanTriangulate splits a convex polygon into triangles sharing its first vertex.
func fanTriangulate(poly []int) [][3]int {
	if len(poly) < 3 {
		return nil
	}
	tris := make([][3]int, 0, len(poly)-2)
	for i := 1; i+1 < len(poly); i++ {
		tris = append(tris, [3]int{poly[0], poly[i], poly[i+1]})
	}
	return tris
}
