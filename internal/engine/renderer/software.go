package renderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	gomath "math"

	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/engine/camera"
	"github.com/Faultbox/turnaround/internal/engine/geometry"
	"github.com/Faultbox/turnaround/internal/engine/lighting"
	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// Triangles rasterized between context checks.
const cancelCheckInterval = 256

var overlayColor = [3]float64{1, 0.1, 0.1}

// Software is a z-buffered CPU rasterizer.
type Software struct {
	settings Settings
	log      *zap.Logger
}

// NewSoftware creates a software renderer. A nil logger disables logging.
func NewSoftware(settings Settings, log *zap.Logger) (*Software, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Software{settings: settings, log: log}, nil
}

// Settings returns the renderer configuration.
func (r *Software) Settings() Settings {
	return r.settings
}

// Render rasterizes every mesh part of sc as seen from view.
func (r *Software) Render(ctx context.Context, sc *scene.Scene, view camera.View, rig camera.Rig, lights lighting.Rig) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := r.settings.OutputSize()
	ss := r.settings.Supersample()
	fb := newRaster(w*ss, h*ss, ss)

	proj := rig.Projection(r.settings.LensMM, r.settings.SensorMM, r.settings.Aspect())
	vp := proj.Mul(view.Pose.ViewMatrix())
	eye := view.Pose.Position
	model := NewLightModel(lights, r.settings)

	drawn := 0
	parts := sc.MeshParts()
	for _, part := range parts {
		if err := part.Validate(); err != nil {
			return nil, err
		}
		world := part.WorldVertices()
		clip := make([]math.Vec4, len(world))
		for i, p := range world {
			clip[i] = vp.MulVec4(math.Vec4{p.X, p.Y, p.Z, 1})
		}

		for _, tri := range part.Triangles {
			if drawn++; drawn%cancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}

			a, b, c := world[tri[0]], world[tri[1]], world[tri[2]]
			n := b.Sub(a).Cross(c.Sub(a))
			if n.Length() < 1e-20 {
				continue
			}
			n = n.Normalize()
			if n.Dot(eye.Sub(a)) < 0 {
				n = n.Negate()
			}
			fb.triangle([3]math.Vec4{clip[tri[0]], clip[tri[1]], clip[tri[2]]}, model.Shade(n))
		}
	}

	if r.settings.DebugBounds && len(parts) > 0 {
		if box, err := geometry.ComputeBounds(parts); err == nil {
			for _, e := range box.Edges() {
				fb.line(vp, e[0], e[1], overlayColor)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.log.Debug("view rasterized",
		zap.String("view", view.Label),
		zap.Int("triangles", drawn),
		zap.Int("supersample", ss),
	)
	return fb.resolve(w, h, r.settings), nil
}

// Close is a no-op.
func (r *Software) Close() error {
	return nil
}

// screenPoint is a vertex in raster space with NDC depth.
type screenPoint struct {
	x, y, z float64
}

// raster holds linear color and depth at supersampled resolution.
type raster struct {
	w, h  int
	pen   int // overlay line width in pixels
	color []float32
	alpha []bool
	depth []float32
}

func newRaster(w, h, pen int) *raster {
	r := &raster{
		w:     w,
		h:     h,
		pen:   pen,
		color: make([]float32, w*h*3),
		alpha: make([]bool, w*h),
		depth: make([]float32, w*h),
	}
	for i := range r.depth {
		r.depth[i] = float32(gomath.Inf(1))
	}
	return r
}

func (r *raster) toScreen(c math.Vec4) screenPoint {
	inv := 1 / c[3]
	return screenPoint{
		x: (c[0]*inv*0.5 + 0.5) * float64(r.w),
		y: (0.5 - c[1]*inv*0.5) * float64(r.h),
		z: c[2] * inv,
	}
}

// triangle clips a clip-space triangle against the near plane and fills it.
func (r *raster) triangle(v [3]math.Vec4, col [3]float64) {
	poly := clipNear(v[:])
	if len(poly) < 3 {
		return
	}
	pts := make([]screenPoint, len(poly))
	for i, c := range poly {
		pts[i] = r.toScreen(c)
	}
	for i := 1; i+1 < len(pts); i++ {
		r.fill(pts[0], pts[i], pts[i+1], col)
	}
}

// clipNear keeps the part of a polygon with z >= -w.
func clipNear(in []math.Vec4) []math.Vec4 {
	out := make([]math.Vec4, 0, len(in)+1)
	for i := range in {
		cur, next := in[i], in[(i+1)%len(in)]
		dc, dn := cur[2]+cur[3], next[2]+next[3]
		if dc >= 0 {
			out = append(out, cur)
		}
		if (dc >= 0) != (dn >= 0) {
			t := dc / (dc - dn)
			out = append(out, lerp4(cur, next, t))
		}
	}
	return out
}

func lerp4(a, b math.Vec4, t float64) math.Vec4 {
	return math.Vec4{
		a[0] + (b[0]-a[0])*t,
		a[1] + (b[1]-a[1])*t,
		a[2] + (b[2]-a[2])*t,
		a[3] + (b[3]-a[3])*t,
	}
}

func edge(a, b screenPoint, px, py float64) float64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// fill rasterizes one screen-space triangle with depth testing, sampling at
// pixel centers.
func (r *raster) fill(a, b, c screenPoint, col [3]float64) {
	area := edge(a, b, c.x, c.y)
	if gomath.Abs(area) < 1e-12 || gomath.IsNaN(area) {
		return
	}
	sign := 1.0
	if area < 0 {
		sign, area = -1, -area
	}

	minX := gomath.Max(0, gomath.Floor(gomath.Min(a.x, gomath.Min(b.x, c.x))))
	maxX := gomath.Min(float64(r.w-1), gomath.Ceil(gomath.Max(a.x, gomath.Max(b.x, c.x))))
	minY := gomath.Max(0, gomath.Floor(gomath.Min(a.y, gomath.Min(b.y, c.y))))
	maxY := gomath.Min(float64(r.h-1), gomath.Ceil(gomath.Max(a.y, gomath.Max(b.y, c.y))))
	if minX > maxX || minY > maxY {
		return
	}

	for y := int(minY); y <= int(maxY); y++ {
		py := float64(y) + 0.5
		for x := int(minX); x <= int(maxX); x++ {
			px := float64(x) + 0.5
			w0 := sign * edge(b, c, px, py)
			w1 := sign * edge(c, a, px, py)
			w2 := sign * edge(a, b, px, py)
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := float32((w0*a.z + w1*b.z + w2*c.z) / area)
			i := y*r.w + x
			if z >= r.depth[i] {
				continue
			}
			r.depth[i] = z
			r.set(i, col)
		}
	}
}

func (r *raster) set(i int, col [3]float64) {
	r.color[i*3] = float32(col[0])
	r.color[i*3+1] = float32(col[1])
	r.color[i*3+2] = float32(col[2])
	r.alpha[i] = true
}

// line draws a world-space segment on top of everything, pen pixels wide.
func (r *raster) line(vp math.Mat4, p0, p1 math.Vec3, col [3]float64) {
	seg := []math.Vec4{
		vp.MulVec4(math.Vec4{p0.X, p0.Y, p0.Z, 1}),
		vp.MulVec4(math.Vec4{p1.X, p1.Y, p1.Z, 1}),
	}
	d0, d1 := seg[0][2]+seg[0][3], seg[1][2]+seg[1][3]
	switch {
	case d0 < 0 && d1 < 0:
		return
	case d0 < 0:
		seg[0] = lerp4(seg[0], seg[1], d0/(d0-d1))
	case d1 < 0:
		seg[1] = lerp4(seg[0], seg[1], d0/(d0-d1))
	}

	a, b := r.toScreen(seg[0]), r.toScreen(seg[1])
	steps := int(gomath.Ceil(gomath.Max(gomath.Abs(b.x-a.x), gomath.Abs(b.y-a.y))))
	steps = max(1, min(steps, 4*(r.w+r.h)))
	half := r.pen / 2
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		cx := int(a.x + (b.x-a.x)*t)
		cy := int(a.y + (b.y-a.y)*t)
		for dy := -half; dy < r.pen-half; dy++ {
			for dx := -half; dx < r.pen-half; dx++ {
				x, y := cx+dx, cy+dy
				if x < 0 || y < 0 || x >= r.w || y >= r.h {
					continue
				}
				r.set(y*r.w+x, col)
			}
		}
	}
}

// resolve converts the raster to a 16-bit image of the output size,
// downscaling supersampled buffers with Catmull-Rom.
func (r *raster) resolve(w, h int, s Settings) image.Image {
	src := image.NewRGBA64(image.Rect(0, 0, r.w, r.h))
	bg := color.RGBA64{
		R: to16(s.Background[0]),
		G: to16(s.Background[1]),
		B: to16(s.Background[2]),
		A: 0xffff,
	}
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			i := y*r.w + x
			switch {
			case r.alpha[i]:
				src.SetRGBA64(x, y, color.RGBA64{
					R: to16(float64(r.color[i*3])),
					G: to16(float64(r.color[i*3+1])),
					B: to16(float64(r.color[i*3+2])),
					A: 0xffff,
				})
			case !s.Transparent:
				src.SetRGBA64(x, y, bg)
			}
		}
	}

	return Downscale(src, w, h)
}

func to16(v float64) uint16 {
	return uint16(gomath.Round(gomath.Min(1, gomath.Max(0, v)) * 0xffff))
}

var _ Renderer = (*Software)(nil)

// String describes the renderer for logs.
func (r *Software) String() string {
	w, h := r.settings.OutputSize()
	return fmt.Sprintf("software %dx%d x%d", w, h, r.settings.Supersample())
}
