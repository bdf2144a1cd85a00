package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/Faultbox/turnaround/pkg/math"
)

const asciiPLY = `ply
format ascii 1.0
comment made by hand
element vertex 4
property float x
property float y
property float z
property uchar red
element face 1
property list uchar int vertex_indices
element edge 1
property int vertex1
property int vertex2
end_header
0 0 0 255
1 0 0 0
1 1 0 0
0 1 0.5 10
4 0 1 2 3
0 2
`

func TestParseASCIIPLY(t *testing.T) {
	sc, err := ParsePLY(strings.NewReader(asciiPLY), "quad")
	if err != nil {
		t.Fatalf("ParsePLY: %v", err)
	}
	parts := sc.MeshParts()
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	p := parts[0]
	if len(p.Vertices) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(p.Vertices))
	}
	if len(p.Triangles) != 2 {
		t.Errorf("quad should split into 2 triangles, got %d", len(p.Triangles))
	}
	if p.Vertices[3] != (math.Vec3{X: 0, Y: 1, Z: 0.5}) {
		t.Errorf("vertex 3 = %v", p.Vertices[3])
	}
}

func buildBinaryPLY(order binary.ByteOrder, format string) []byte {
	var buf bytes.Buffer
	buf.WriteString("ply\nformat " + format + " 1.0\n")
	buf.WriteString("element vertex 3\nproperty double x\nproperty double y\nproperty double z\nproperty list uchar float extra\n")
	buf.WriteString("element face 1\nproperty uchar flags\nproperty list uchar uint vertex_index\nend_header\n")
	verts := [][3]float64{{0, 0, 0}, {2, 0, 0}, {0, 0, 3}}
	for _, v := range verts {
		binary.Write(&buf, order, v)
		buf.WriteByte(1)
		binary.Write(&buf, order, float32(9))
	}
	buf.WriteByte(7)
	buf.WriteByte(3)
	binary.Write(&buf, order, []uint32{0, 1, 2})
	return buf.Bytes()
}

func TestParseBinaryPLY(t *testing.T) {
	tests := []struct {
		format string
		order  binary.ByteOrder
	}{
		{"binary_little_endian", binary.LittleEndian},
		{"binary_big_endian", binary.BigEndian},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			sc, err := ParsePLY(bytes.NewReader(buildBinaryPLY(tt.order, tt.format)), "tri")
			if err != nil {
				t.Fatalf("ParsePLY: %v", err)
			}
			parts := sc.MeshParts()
			if len(parts) != 1 {
				t.Fatalf("expected 1 part, got %d", len(parts))
			}
			if got := parts[0].Triangles; len(got) != 1 || got[0] != [3]int{0, 1, 2} {
				t.Errorf("triangles = %v", got)
			}
			if parts[0].Vertices[2] != (math.Vec3{X: 0, Y: 0, Z: 3}) {
				t.Errorf("vertex 2 = %v", parts[0].Vertices[2])
			}
		})
	}
}

func TestParsePLYErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"bad magic", "plx\n", ErrInvalidPLYMagic},
		{"no end", "ply\nformat ascii 1.0\n", ErrInvalidPLYHeader},
		{"unknown format", "ply\nformat packed 1.0\nend_header\n", ErrUnsupportedPLYFormat},
		{"unknown type", "ply\nformat ascii 1.0\nelement vertex 1\nproperty quad x\nend_header\n", ErrInvalidPLYHeader},
		{"no coordinates", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float u\nend_header\n1\n", ErrMissingPLYCoordinates},
		{"truncated", "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n", ErrTruncatedPLYData},
		{"bad index", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n3 0 1 2\n", ErrInvalidPLYData},
		{"negative face length", "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list int int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n-1 0 1 2\n", ErrInvalidPLYData},
		{"huge face length", "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\nelement face 1\nproperty list int int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n2000000000 0 1 2\n", ErrInvalidPLYData},
		{"negative skipped list", "ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nproperty list int float extra\nend_header\n0 0 0 -5\n", ErrInvalidPLYData},
		{"huge vertex count", "ply\nformat ascii 1.0\nelement vertex 9000000000000000000\nproperty float x\nproperty float y\nproperty float z\nend_header\n0 0 0\n", ErrTruncatedPLYData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePLY(strings.NewReader(tt.data), "bad")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
