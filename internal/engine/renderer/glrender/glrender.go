// Package glrender renders views through an offscreen OpenGL 4.1 context.
// Everything here must run on the main OS thread.
package glrender

import (
	"context"
	"fmt"
	"image"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/engine/camera"
	"github.com/Faultbox/turnaround/internal/engine/capture"
	"github.com/Faultbox/turnaround/internal/engine/framebuffer"
	"github.com/Faultbox/turnaround/internal/engine/geometry"
	"github.com/Faultbox/turnaround/internal/engine/lighting"
	"github.com/Faultbox/turnaround/internal/engine/renderer"
	"github.com/Faultbox/turnaround/internal/engine/shader"
	"github.com/Faultbox/turnaround/internal/engine/window"
	"github.com/Faultbox/turnaround/pkg/math"
	"github.com/Faultbox/turnaround/pkg/scene"
)

const vertexShader = `
#version 410 core

layout (location = 0) in vec3 aPos;
layout (location = 1) in vec3 aNormal;

uniform mat4 uViewProj;

out vec3 vPos;
out vec3 vNormal;

void main() {
	vPos = aPos;
	vNormal = aNormal;
	gl_Position = uViewProj * vec4(aPos, 1.0);
}
`

const fragmentShader = `
#version 410 core

in vec3 vPos;
in vec3 vNormal;

uniform vec3 uEye;
uniform vec3 uToLight0;
uniform vec3 uToLight1;
uniform float uWeight0;
uniform float uWeight1;
uniform float uAmbient;
uniform vec3 uBase;
uniform int uFlat;
uniform vec3 uFlatColor;

out vec4 FragColor;

void main() {
	if (uFlat == 1) {
		FragColor = vec4(uFlatColor, 1.0);
		return;
	}
	vec3 n = normalize(vNormal);
	if (dot(n, uEye - vPos) < 0.0) {
		n = -n;
	}
	float k = uAmbient
		+ uWeight0 * max(dot(n, uToLight0), 0.0)
		+ uWeight1 * max(dot(n, uToLight1), 0.0);
	FragColor = vec4(clamp(uBase * k, 0.0, 1.0), 1.0);
}
`

const floatsPerVertex = 6 // position, normal

// Renderer draws views with OpenGL into an offscreen framebuffer.
type Renderer struct {
	settings renderer.Settings
	log      *zap.Logger

	win  *window.Window
	fb   *framebuffer.Framebuffer
	prog *shader.Program
	vao  uint32
	vbo  uint32
}

// New creates the GL context, framebuffer and shader program. It must be
// called from the main goroutine, which the window package locks to the main
// OS thread.
func New(settings renderer.Settings, log *zap.Logger) (*Renderer, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	win, err := window.NewHidden("turnaround", log)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", renderer.ErrBackendUnavailable, err)
	}
	r := &Renderer{settings: settings, log: log, win: win}

	if err := gl.Init(); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: initializing OpenGL: %v", renderer.ErrBackendUnavailable, err)
	}
	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	w, h := settings.OutputSize()
	ss := settings.Supersample()
	r.fb, err = framebuffer.New(int32(w*ss), int32(h*ss))
	if err != nil {
		r.Close()
		return nil, err
	}

	r.prog, err = shader.Compile(vertexShader, fragmentShader)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("compiling shaders: %w", err)
	}

	gl.GenVertexArrays(1, &r.vao)
	gl.GenBuffers(1, &r.vbo)
	gl.BindVertexArray(r.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, floatsPerVertex*4, nil)
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 3, gl.FLOAT, false, floatsPerVertex*4, unsafe.Pointer(uintptr(3*4)))
	gl.EnableVertexAttribArray(1)
	gl.BindVertexArray(0)

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.Disable(gl.CULL_FACE)

	return r, nil
}

// Render draws one view and reads it back.
func (r *Renderer) Render(ctx context.Context, sc *scene.Scene, view camera.View, rig camera.Rig, lights lighting.Rig) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parts := sc.MeshParts()
	verts, err := buildVertices(parts)
	if err != nil {
		return nil, err
	}

	model := renderer.NewLightModel(lights, r.settings)
	vp := rig.Projection(r.settings.LensMM, r.settings.SensorMM, r.settings.Aspect()).Mul(view.Pose.ViewMatrix())

	r.fb.Bind()
	bg := r.settings.Background
	alpha := float32(1)
	if r.settings.Transparent {
		alpha = 0
	}
	r.fb.Clear(float32(bg[0]), float32(bg[1]), float32(bg[2]), alpha)

	r.prog.Use()
	r.prog.SetMat4("uViewProj", vp)
	r.prog.SetVec3("uEye", view.Pose.Position)
	r.prog.SetVec3("uToLight0", model.ToLight[0])
	r.prog.SetVec3("uToLight1", model.ToLight[1])
	r.prog.SetFloat("uWeight0", model.Weight[0])
	r.prog.SetFloat("uWeight1", model.Weight[1])
	r.prog.SetFloat("uAmbient", model.Ambient)
	r.prog.SetVec3("uBase", math.Vec3{X: model.Base[0], Y: model.Base[1], Z: model.Base[2]})
	r.prog.SetInt("uFlat", 0)

	gl.BindVertexArray(r.vao)
	r.draw(gl.TRIANGLES, verts)

	if r.settings.DebugBounds && len(parts) > 0 {
		if box, err := geometry.ComputeBounds(parts); err == nil {
			r.prog.SetInt("uFlat", 1)
			r.prog.SetVec3("uFlatColor", math.Vec3{X: 1, Y: 0.1, Z: 0.1})
			gl.Disable(gl.DEPTH_TEST)
			r.draw(gl.LINES, boundsVertices(box))
			gl.Enable(gl.DEPTH_TEST)
		}
	}
	gl.BindVertexArray(0)

	fw, fh := r.fb.Size()
	pixels := r.fb.ReadPixels16()
	r.fb.Unbind()

	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("OpenGL error 0x%x rendering %s", code, view.Label)
	}

	img, err := capture.FromGL16(pixels, int(fw), int(fh))
	if err != nil {
		return nil, err
	}
	w, h := r.settings.OutputSize()
	return renderer.Downscale(img, w, h), nil
}

func (r *Renderer) draw(mode uint32, verts []float32) {
	if len(verts) == 0 {
		return
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, r.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(verts), gl.STREAM_DRAW)
	gl.DrawArrays(mode, 0, int32(len(verts)/floatsPerVertex))
}

// Close releases GL resources and the context.
func (r *Renderer) Close() error {
	if r.vbo != 0 {
		gl.DeleteBuffers(1, &r.vbo)
		r.vbo = 0
	}
	if r.vao != 0 {
		gl.DeleteVertexArrays(1, &r.vao)
		r.vao = 0
	}
	if r.prog != nil {
		r.prog.Delete()
		r.prog = nil
	}
	if r.fb != nil {
		r.fb.Destroy()
		r.fb = nil
	}
	if r.win != nil {
		r.win.Close()
		r.win = nil
	}
	return nil
}

// String describes the renderer for logs.
func (r *Renderer) String() string {
	w, h := r.settings.OutputSize()
	return fmt.Sprintf("gl %dx%d x%d", w, h, r.settings.Supersample())
}

// buildVertices flattens parts into world-space triangles with face normals.
func buildVertices(parts []*scene.MeshPart) ([]float32, error) {
	var out []float32
	for _, part := range parts {
		if err := part.Validate(); err != nil {
			return nil, err
		}
		world := part.WorldVertices()
		for _, tri := range part.Triangles {
			a, b, c := world[tri[0]], world[tri[1]], world[tri[2]]
			n := b.Sub(a).Cross(c.Sub(a)).Normalize()
			for _, p := range []math.Vec3{a, b, c} {
				pa, na := p.Array(), n.Array()
				out = append(out, pa[0], pa[1], pa[2], na[0], na[1], na[2])
			}
		}
	}
	return out, nil
}

// boundsVertices returns the box edges as a line list.
func boundsVertices(box geometry.BoundingBox) []float32 {
	var out []float32
	for _, e := range box.Edges() {
		for _, p := range e {
			pa := p.Array()
			out = append(out, pa[0], pa[1], pa[2], 0, 0, 0)
		}
	}
	return out
}

var _ renderer.Renderer = (*Renderer)(nil)
