package formats

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// OBJ format errors.
var ErrInvalidOBJ = errors.New("invalid OBJ data")

type objGroup struct {
	name  string
	faces [][]int
}

// ParseOBJ reads a Wavefront OBJ stream. Each object or group with faces
// becomes one mesh part; polygons are fan-triangulated and positions are
// converted from Y-up to Z-up.
func ParseOBJ(r io.Reader, name string) (*scene.Scene, error) {
	sc := scene.New(name)

	var positions []math.Vec3
	groups := []*objGroup{{name: name}}
	cur := groups[0]

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrInvalidOBJ, lineNo)
			}
			var xyz [3]float64
			for i := range xyz {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
				}
				xyz[i] = f
			}
			positions = append(positions, yUpToZUp.TransformPoint(math.Vec3{X: xyz[0], Y: xyz[1], Z: xyz[2]}))

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs at least 3 vertices", ErrInvalidOBJ, lineNo)
			}
			face := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				idx, err := objIndex(tok, len(positions))
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidOBJ, lineNo, err)
				}
				face = append(face, idx)
			}
			cur.faces = append(cur.faces, face)

		case "o", "g":
			groupName := name
			if len(fields) > 1 {
				groupName = strings.Join(fields[1:], " ")
			}
			if len(cur.faces) == 0 {
				cur.name = groupName
				continue
			}
			cur = &objGroup{name: groupName}
			groups = append(groups, cur)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading OBJ: %w", err)
	}

	for _, g := range groups {
		if len(g.faces) == 0 {
			continue
		}
		sc.AddMesh(objPart(g, positions))
	}

	// Vertex-only files still carry geometry.
	if len(sc.Entities) == 0 && len(positions) > 0 {
		part := scene.NewMeshPart(name)
		part.Vertices = positions
		sc.AddMesh(part)
	}

	return sc, nil
}

// objIndex resolves a face token such as "7", "7/2" or "-1//3" to a
// zero-based position index.
func objIndex(tok string, count int) (int, error) {
	if slash := strings.IndexByte(tok, '/'); slash >= 0 {
		tok = tok[:slash]
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("bad face index %q", tok)
	}
	switch {
	case n > 0:
		n--
	case n < 0:
		n += count
	default:
		return 0, fmt.Errorf("face index 0 is not valid")
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("face index %s out of range (%d vertices)", tok, count)
	}
	return n, nil
}

// objPart builds a part holding only the positions the group references.
func objPart(g *objGroup, positions []math.Vec3) *scene.MeshPart {
	part := scene.NewMeshPart(g.name)
	local := make(map[int]int)
	for _, face := range g.faces {
		poly := make([]int, len(face))
		for i, global := range face {
			li, ok := local[global]
			if !ok {
				li = len(part.Vertices)
				local[global] = li
				part.Vertices = append(part.Vertices, positions[global])
			}
			poly[i] = li
		}
		part.Triangles = append(part.Triangles, fanTriangulate(poly)...)
	}
	return part
}

// LoadOBJ loads an OBJ file from disk.
func LoadOBJ(path string) (*scene.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening OBJ: %w", err)
	}
	defer f.Close()

	sc, err := ParseOBJ(f, baseName(path))
	if err != nil {
		return nil, err
	}
	sc.Source = path
	return sc, nil
}

// WriteOBJ writes the mesh parts of sc in world space as Y-up OBJ.
func WriteOBJ(w io.Writer, sc *scene.Scene) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s\n", baseName(sc.Source))

	offset := 1
	for _, part := range sc.MeshParts() {
		fmt.Fprintf(bw, "o %s\n", part.Name)
		for _, v := range part.WorldVertices() {
			y := zUpToYUp.TransformPoint(v)
			fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(y.X), formatFloat(y.Y), formatFloat(y.Z))
		}
		for _, tri := range part.Triangles {
			fmt.Fprintf(bw, "f %d %d %d\n", tri[0]+offset, tri[1]+offset, tri[2]+offset)
		}
		offset += len(part.Vertices)
	}
	return bw.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// SaveOBJ writes sc to path as OBJ.
func SaveOBJ(sc *scene.Scene, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating OBJ: %w", err)
	}
	if err := WriteOBJ(f, sc); err != nil {
		f.Close()
		return fmt.Errorf("writing OBJ: %w", err)
	}
	return f.Close()
}
