// Package renderer turns a normalized scene and a camera view into an image.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	gomath "math"

	"golang.org/x/image/draw"

	"github.com/Faultbox/turnaround/internal/engine/camera"
	"github.com/Faultbox/turnaround/internal/engine/lighting"
	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

// Renderer draws one view of a scene. Implementations are not safe for
// concurrent use.
type Renderer interface {
	Render(ctx context.Context, sc *scene.Scene, view camera.View, rig camera.Rig, lights lighting.Rig) (image.Image, error)
	Close() error
}

// Backend names.
const (
	BackendSoftware = "software"
	BackendGL       = "gl"
)

// Backends lists the available backend names.
func Backends() []string {
	return []string{BackendSoftware, BackendGL}
}

// Renderer errors.
var (
	ErrInvalidSettings    = errors.New("invalid render settings")
	ErrBackendUnavailable = errors.New("render backend unavailable")
	ErrUnknownBackend     = errors.New("unknown render backend")
)

const maxSupersample = 4

// Settings is the render configuration shared by every view of a run.
type Settings struct {
	Width       int
	Height      int
	Percentage  int // scales Width and Height
	Samples     int // anti-aliasing samples per pixel
	ColorDepth  int // bits per channel in written images: 8 or 16
	Transparent bool

	LensMM   float64
	SensorMM float64

	Ambient    float64
	Exposure   float64
	BaseColor  [3]float64
	Background [3]float64 // used when Transparent is false

	DebugBounds bool // draw the bounding box wireframe over the render
}

// DefaultSettings returns 512x512 transparent 16-bit renders through a
// 35 mm lens on a 32 mm sensor.
func DefaultSettings() Settings {
	return Settings{
		Width:       512,
		Height:      512,
		Percentage:  100,
		Samples:     16,
		ColorDepth:  16,
		Transparent: true,
		LensMM:      camera.DefaultLensMM,
		SensorMM:    camera.DefaultSensorMM,
		Ambient:     0.3,
		Exposure:    0.7,
		BaseColor:   [3]float64{0.8, 0.8, 0.8},
		Background:  [3]float64{1, 1, 1},
	}
}

// Validate checks that the settings describe a renderable image.
func (s Settings) Validate() error {
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidSettings, s.Width, s.Height)
	case s.Percentage <= 0 || s.Percentage > 1000:
		return fmt.Errorf("%w: resolution percentage %d", ErrInvalidSettings, s.Percentage)
	case s.Samples <= 0:
		return fmt.Errorf("%w: samples %d", ErrInvalidSettings, s.Samples)
	case s.ColorDepth != 8 && s.ColorDepth != 16:
		return fmt.Errorf("%w: color depth %d (want 8 or 16)", ErrInvalidSettings, s.ColorDepth)
	case !(s.LensMM > 0) || !(s.SensorMM > 0):
		return fmt.Errorf("%w: lens %vmm, sensor %vmm", ErrInvalidSettings, s.LensMM, s.SensorMM)
	}
	w, h := s.OutputSize()
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: output size %dx%d", ErrInvalidSettings, w, h)
	}
	return nil
}

// OutputSize returns the final image size after the percentage is applied.
func (s Settings) OutputSize() (width, height int) {
	return s.Width * s.Percentage / 100, s.Height * s.Percentage / 100
}

// Aspect returns the output width over height.
func (s Settings) Aspect() float64 {
	w, h := s.OutputSize()
	if h == 0 {
		return 1
	}
	return float64(w) / float64(h)
}

// Supersample returns the per-axis supersampling factor derived from Samples.
func (s Settings) Supersample() int {
	f := int(gomath.Sqrt(float64(s.Samples)))
	return max(1, min(f, maxSupersample))
}

// LightModel is the flat two-sided Lambert model shared by the backends.
type LightModel struct {
	ToLight []math.Vec3 // unit vectors towards each light
	Weight  []float64   // diffuse weight per light
	Ambient float64
	Base    [3]float64
}

// NewLightModel derives the shading terms from a light rig.
func NewLightModel(lights lighting.Rig, s Settings) LightModel {
	m := LightModel{Ambient: s.Ambient, Base: s.BaseColor}
	for _, l := range lights.Lights() {
		m.ToLight = append(m.ToLight, l.ToLight())
		m.Weight = append(m.Weight, l.Energy/lighting.SunEnergy*s.Exposure)
	}
	return m
}

// Shade returns the linear RGB color of a surface with unit normal n.
func (m LightModel) Shade(n math.Vec3) [3]float64 {
	k := m.Ambient
	for i, d := range m.ToLight {
		if dot := n.Dot(d); dot > 0 {
			k += m.Weight[i] * dot
		}
	}
	var c [3]float64
	for i := range c {
		c[i] = gomath.Min(1, gomath.Max(0, m.Base[i]*k))
	}
	return c
}

// Downscale resamples img to width x height with Catmull-Rom into a 16-bit
// image. Images already at that size are returned unchanged.
func Downscale(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	dst := image.NewRGBA64(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
