package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	gomath "math"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// STL format errors.
var (
	ErrInvalidSTL   = errors.New("invalid STL data")
	ErrTruncatedSTL = errors.New("truncated STL data")
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50 // normal, 3 vertices, attribute count
)

// ParseSTL parses binary or ASCII STL data into a single mesh part.
// STL coordinates are already Z-up.
func ParseSTL(data []byte, name string) (*scene.Scene, error) {
	var (
		part *scene.MeshPart
		err  error
	)
	if isBinarySTL(data) {
		part, err = parseBinarySTL(data, name)
	} else {
		part, err = parseASCIISTL(data, name)
	}
	if err != nil {
		return nil, err
	}

	sc := scene.New(name)
	if len(part.Vertices) > 0 {
		sc.AddMesh(part)
	}
	return sc, nil
}

// isBinarySTL decides by size: binary files are exactly header + count
// records long. Binary headers may also start with "solid".
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	if uint64(len(data)) == stlHeaderSize+4+uint64(count)*stlTriangleSize {
		return true
	}
	return !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid"))
}

func parseBinarySTL(data []byte, name string) (*scene.MeshPart, error) {
	count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	need := stlHeaderSize + 4 + uint64(count)*stlTriangleSize
	if uint64(len(data)) < need {
		return nil, fmt.Errorf("%w: %d triangles need %d bytes, have %d", ErrTruncatedSTL, count, need, len(data))
	}

	part := scene.NewMeshPart(name)
	part.Vertices = make([]math.Vec3, 0, count*3)
	part.Triangles = make([][3]int, 0, count)

	off := stlHeaderSize + 4
	for i := uint32(0); i < count; i++ {
		rec := data[off : off+stlTriangleSize]
		base := len(part.Vertices)
		for v := 0; v < 3; v++ {
			p := rec[12+v*12:]
			part.Vertices = append(part.Vertices, math.Vec3{
				X: float64(gomath.Float32frombits(binary.LittleEndian.Uint32(p[0:]))),
				Y: float64(gomath.Float32frombits(binary.LittleEndian.Uint32(p[4:]))),
				Z: float64(gomath.Float32frombits(binary.LittleEndian.Uint32(p[8:]))),
			})
		}
		part.Triangles = append(part.Triangles, [3]int{base, base + 1, base + 2})
		off += stlTriangleSize
	}
	return part, nil
}

func parseASCIISTL(data []byte, name string) (*scene.MeshPart, error) {
	part := scene.NewMeshPart(name)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var loop []int
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				part.Name = strings.Join(fields[1:], " ")
			}
		case "outer":
			loop = loop[:0]
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrInvalidSTL, lineNo)
			}
			var xyz [3]float64
			for i := range xyz {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidSTL, lineNo, err)
				}
				xyz[i] = f
			}
			loop = append(loop, len(part.Vertices))
			part.Vertices = append(part.Vertices, math.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]})
		case "endloop":
			if len(loop) < 3 {
				return nil, fmt.Errorf("%w: line %d: facet with %d vertices", ErrInvalidSTL, lineNo, len(loop))
			}
			part.Triangles = append(part.Triangles, fanTriangulate(loop)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading STL: %w", err)
	}
	return part, nil
}

// LoadSTL loads an STL file from disk.
func LoadSTL(path string) (*scene.Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading STL: %w", err)
	}
	sc, err := ParseSTL(data, baseName(path))
	if err != nil {
		return nil, err
	}
	sc.Source = path
	return sc, nil
}
