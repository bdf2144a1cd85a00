package formats

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	gomath "math"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// PLY format errors.
var (
	ErrInvalidPLYMagic       = errors.New("invalid PLY magic: expected 'ply'")
	ErrUnsupportedPLYFormat  = errors.New("unsupported PLY format")
	ErrInvalidPLYHeader      = errors.New("invalid PLY header")
	ErrTruncatedPLYData      = errors.New("truncated PLY data")
	ErrInvalidPLYData        = errors.New("invalid PLY data")
	ErrMissingPLYCoordinates = errors.New("PLY vertex element has no x, y, z properties")
)

// PLYProperty is one property declaration of a PLY element.
type PLYProperty struct {
	Name     string
	Type     string
	IsList   bool
	CountTyp string // list length type, lists only
}

// PLYElement is one element declaration (vertex, face, ...) of a PLY header.
type PLYElement struct {
	Name       string
	Count      int
	Properties []PLYProperty
}

// PLYHeader is the parsed header of a PLY file.
type PLYHeader struct {
	Format   string // ascii, binary_little_endian or binary_big_endian
	Version  string
	Elements []PLYElement
}

var plyTypeSizes = map[string]int{
	"char": 1, "int8": 1, "uchar": 1, "uint8": 1,
	"short": 2, "int16": 2, "ushort": 2, "uint16": 2,
	"int": 4, "int32": 4, "uint": 4, "uint32": 4,
	"float": 4, "float32": 4, "double": 8, "float64": 8,
}

// parsePLYHeader reads header lines up to and including end_header.
func parsePLYHeader(r *bufio.Reader) (*PLYHeader, error) {
	magic, err := r.ReadString('\n')
	if err != nil || strings.TrimSpace(magic) != "ply" {
		return nil, ErrInvalidPLYMagic
	}

	header := &PLYHeader{}
	var current *PLYElement

	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("%w: missing end_header", ErrInvalidPLYHeader)
		}
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "end_header":
			return header, nil
		case "comment", "obj_info":
		case "format":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPLYHeader, strings.TrimSpace(raw))
			}
			header.Format, header.Version = fields[1], fields[2]
		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("%w: %q", ErrInvalidPLYHeader, strings.TrimSpace(raw))
			}
			count, err := strconv.Atoi(fields[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("%w: invalid element count %q", ErrInvalidPLYHeader, fields[2])
			}
			header.Elements = append(header.Elements, PLYElement{Name: fields[1], Count: count})
			current = &header.Elements[len(header.Elements)-1]
		case "property":
			if current == nil {
				return nil, fmt.Errorf("%w: property before element", ErrInvalidPLYHeader)
			}
			prop, err := parsePLYProperty(fields[1:])
			if err != nil {
				return nil, err
			}
			current.Properties = append(current.Properties, prop)
		}
	}
}

func parsePLYProperty(fields []string) (PLYProperty, error) {
	if len(fields) >= 4 && fields[0] == "list" {
		if plyTypeSizes[fields[1]] == 0 || plyTypeSizes[fields[2]] == 0 {
			return PLYProperty{}, fmt.Errorf("%w: unknown list types %q %q", ErrInvalidPLYHeader, fields[1], fields[2])
		}
		return PLYProperty{Name: fields[3], Type: fields[2], IsList: true, CountTyp: fields[1]}, nil
	}
	if len(fields) >= 2 {
		if plyTypeSizes[fields[0]] == 0 {
			return PLYProperty{}, fmt.Errorf("%w: unknown property type %q", ErrInvalidPLYHeader, fields[0])
		}
		return PLYProperty{Name: fields[1], Type: fields[0]}, nil
	}
	return PLYProperty{}, fmt.Errorf("%w: malformed property %v", ErrInvalidPLYHeader, fields)
}

// plyValueReader yields property values one at a time regardless of encoding.
type plyValueReader interface {
	next(typ string) (float64, error)
	endRow() error
}

type plyASCIIReader struct {
	r      *bufio.Reader
	fields []string
}

func (a *plyASCIIReader) next(string) (float64, error) {
	for len(a.fields) == 0 {
		line, err := a.r.ReadString('\n')
		a.fields = strings.Fields(line)
		if len(a.fields) == 0 && err != nil {
			return 0, ErrTruncatedPLYData
		}
	}
	tok := a.fields[0]
	a.fields = a.fields[1:]
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q", ErrInvalidPLYData, tok)
	}
	return v, nil
}

func (a *plyASCIIReader) endRow() error {
	a.fields = nil
	return nil
}

type plyBinaryReader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (b *plyBinaryReader) next(typ string) (float64, error) {
	size := plyTypeSizes[typ]
	if _, err := io.ReadFull(b.r, b.buf[:size]); err != nil {
		return 0, ErrTruncatedPLYData
	}
	p := b.buf[:size]
	switch typ {
	case "char", "int8":
		return float64(int8(p[0])), nil
	case "uchar", "uint8":
		return float64(p[0]), nil
	case "short", "int16":
		return float64(int16(b.order.Uint16(p))), nil
	case "ushort", "uint16":
		return float64(b.order.Uint16(p)), nil
	case "int", "int32":
		return float64(int32(b.order.Uint32(p))), nil
	case "uint", "uint32":
		return float64(b.order.Uint32(p)), nil
	case "float", "float32":
		return float64(gomath.Float32frombits(b.order.Uint32(p))), nil
	default:
		return gomath.Float64frombits(b.order.Uint64(p)), nil
	}
}

func (b *plyBinaryReader) endRow() error { return nil }

// ParsePLY reads an ASCII or binary PLY stream into a single mesh part.
// Elements other than vertex and face are read and discarded.
func ParsePLY(r io.Reader, name string) (*scene.Scene, error) {
	br := bufio.NewReader(r)
	header, err := parsePLYHeader(br)
	if err != nil {
		return nil, err
	}

	var values plyValueReader
	switch header.Format {
	case "ascii":
		values = &plyASCIIReader{r: br}
	case "binary_little_endian":
		values = &plyBinaryReader{r: br, order: binary.LittleEndian}
	case "binary_big_endian":
		values = &plyBinaryReader{r: br, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPLYFormat, header.Format)
	}

	part := scene.NewMeshPart(name)
	for _, el := range header.Elements {
		switch el.Name {
		case "vertex":
			if err := readPLYVertices(values, el, part); err != nil {
				return nil, err
			}
		case "face":
			if err := readPLYFaces(values, el, part); err != nil {
				return nil, err
			}
		default:
			if err := skipPLYElement(values, el); err != nil {
				return nil, err
			}
		}
	}

	if err := part.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPLYData, err)
	}

	sc := scene.New(name)
	if len(part.Vertices) > 0 {
		sc.AddMesh(part)
	}
	return sc, nil
}

func readPLYVertices(values plyValueReader, el PLYElement, part *scene.MeshPart) error {
	xi, yi, zi := -1, -1, -1
	for i, p := range el.Properties {
		switch p.Name {
		case "x":
			xi = i
		case "y":
			yi = i
		case "z":
			zi = i
		}
	}
	if xi < 0 || yi < 0 || zi < 0 {
		return ErrMissingPLYCoordinates
	}

	part.Vertices = make([]math.Vec3, 0, min(el.Count, maxPLYPrealloc))
	row := make([]float64, len(el.Properties))
	for n := 0; n < el.Count; n++ {
		for i, p := range el.Properties {
			if p.IsList {
				if err := skipPLYList(values, p); err != nil {
					return err
				}
				continue
			}
			v, err := values.next(p.Type)
			if err != nil {
				return fmt.Errorf("vertex %d: %w", n, err)
			}
			row[i] = v
		}
		if err := values.endRow(); err != nil {
			return err
		}
		part.Vertices = append(part.Vertices, math.Vec3{X: row[xi], Y: row[yi], Z: row[zi]})
	}
	return nil
}

func readPLYFaces(values plyValueReader, el PLYElement, part *scene.MeshPart) error {
	for n := 0; n < el.Count; n++ {
		for _, p := range el.Properties {
			if !p.IsList {
				if _, err := values.next(p.Type); err != nil {
					return fmt.Errorf("face %d: %w", n, err)
				}
				continue
			}
			count, err := plyListCount(values, p)
			if err != nil {
				return fmt.Errorf("face %d: %w", n, err)
			}
			poly := make([]int, count)
			for i := range poly {
				v, err := values.next(p.Type)
				if err != nil {
					return fmt.Errorf("face %d: %w", n, err)
				}
				poly[i] = int(v)
			}
			if p.Name == "vertex_indices" || p.Name == "vertex_index" {
				part.Triangles = append(part.Triangles, fanTriangulate(poly)...)
			}
		}
		if err := values.endRow(); err != nil {
			return err
		}
	}
	return nil
}

func skipPLYElement(values plyValueReader, el PLYElement) error {
	for n := 0; n < el.Count; n++ {
		for _, p := range el.Properties {
			if p.IsList {
				if err := skipPLYList(values, p); err != nil {
					return err
				}
				continue
			}
			if _, err := values.next(p.Type); err != nil {
				return fmt.Errorf("%s %d: %w", el.Name, n, err)
			}
		}
		if err := values.endRow(); err != nil {
			return err
		}
	}
	return nil
}

// Header counts are untrusted: preallocation is capped and list lengths
// are bounded.
const (
	maxPLYPrealloc = 1 << 20
	maxPLYListLen  = 1 << 16
)

// plyListCount reads a list length and rejects negative, fractional or
// implausibly large values.
func plyListCount(values plyValueReader, p PLYProperty) (int, error) {
	v, err := values.next(p.CountTyp)
	if err != nil {
		return 0, err
	}
	if !(v >= 0 && v <= maxPLYListLen) || v != gomath.Trunc(v) {
		return 0, fmt.Errorf("%w: list %q length %v", ErrInvalidPLYData, p.Name, v)
	}
	return int(v), nil
}

func skipPLYList(values plyValueReader, p PLYProperty) error {
	count, err := plyListCount(values, p)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if _, err := values.next(p.Type); err != nil {
			return err
		}
	}
	return nil
}

// LoadPLY loads a PLY file from disk.
func LoadPLY(path string) (*scene.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PLY: %w", err)
	}
	defer f.Close()

	sc, err := ParsePLY(f, baseName(path))
	if err != nil {
		return nil, err
	}
	sc.Source = path
	return sc, nil
}
