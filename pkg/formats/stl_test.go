package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Faultbox/turnaround/pkg/math"
)

const asciiSTL = `solid wedge
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
  facet normal 0 -1 0
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 1 0 2
    endloop
  endfacet
endsolid wedge
`

// buildBinarySTL encodes triangles as a binary STL whose header starts with
// "solid" to exercise size-based detection.
func buildBinarySTL(tris [][3]math.Vec3) []byte {
	var buf bytes.Buffer
	header := make([]byte, stlHeaderSize)
	copy(header, "solid binary export")
	buf.Write(header)
	binary.Write(&buf, binary.LittleEndian, uint32(len(tris)))
	for _, tri := range tris {
		binary.Write(&buf, binary.LittleEndian, [3]float32{0, 0, 1})
		for _, v := range tri {
			binary.Write(&buf, binary.LittleEndian, v.Array())
		}
		binary.Write(&buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func TestParseASCIISTL(t *testing.T) {
	sc, err := ParseSTL([]byte(asciiSTL), "file")
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	parts := sc.MeshParts()
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	p := parts[0]
	if p.Name != "wedge" {
		t.Errorf("name = %q, want wedge", p.Name)
	}
	if len(p.Vertices) != 6 || len(p.Triangles) != 2 {
		t.Errorf("got %d vertices, %d triangles", len(p.Vertices), len(p.Triangles))
	}
	if p.Vertices[5] != (math.Vec3{X: 1, Y: 0, Z: 2}) {
		t.Errorf("last vertex = %v", p.Vertices[5])
	}
}

func TestParseBinarySTL(t *testing.T) {
	tris := [][3]math.Vec3{
		{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 0, Z: 0}, {X: 0, Y: 2, Z: 0}},
		{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 2, Z: 0}, {X: 0, Y: 0, Z: 3}},
	}
	sc, err := ParseSTL(buildBinarySTL(tris), "bin")
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	parts := sc.MeshParts()
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0].Name != "bin" {
		t.Errorf("name = %q, want bin", parts[0].Name)
	}
	if len(parts[0].Triangles) != 2 {
		t.Fatalf("expected 2 triangles, got %d", len(parts[0].Triangles))
	}
	if parts[0].Vertices[5] != (math.Vec3{X: 0, Y: 0, Z: 3}) {
		t.Errorf("vertex 5 = %v", parts[0].Vertices[5])
	}
}

func TestParseBinarySTLTruncated(t *testing.T) {
	data := buildBinarySTL([][3]math.Vec3{{{}, {X: 1}, {Y: 1}}})
	// Claim more triangles than present, and drop the "solid" prefix so the
	// data cannot be mistaken for ASCII.
	copy(data, "binary")
	binary.LittleEndian.PutUint32(data[stlHeaderSize:], 5)

	_, err := ParseSTL(data, "short")
	if !errors.Is(err, ErrTruncatedSTL) {
		t.Errorf("expected ErrTruncatedSTL, got %v", err)
	}
}

func TestParseASCIISTLErrors(t *testing.T) {
	tests := map[string]string{
		"short vertex": "solid x\nouter loop\nvertex 1 2\nendloop\n",
		"bad number":   "solid x\nouter loop\nvertex 1 2 q\nendloop\n",
		"two vertices": "solid x\nouter loop\nvertex 0 0 0\nvertex 1 0 0\nendloop\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseSTL([]byte(data), "x"); !errors.Is(err, ErrInvalidSTL) {
				t.Errorf("expected ErrInvalidSTL, got %v", err)
			}
		})
	}
}

func TestParseSTLEmpty(t *testing.T) {
	sc, err := ParseSTL([]byte("solid nothing\nendsolid nothing\n"), "nothing")
	if err != nil {
		t.Fatalf("ParseSTL: %v", err)
	}
	if len(sc.MeshParts()) != 0 {
		t.Errorf("expected no mesh parts, got %d", len(sc.MeshParts()))
	}
}

func TestLoadSTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wedge.stl")
	if err := os.WriteFile(path, []byte(asciiSTL), 0o644); err != nil {
		t.Fatal(err)
	}
	sc, err := NewRegistry().Import(path)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if sc.Source != path {
		t.Errorf("Source = %q, want %q", sc.Source, path)
	}
	if v, tris := sc.Stats(); v != 6 || tris != 2 {
		t.Errorf("Stats() = %d, %d", v, tris)
	}
}
