// Package pipeline runs the batch: import each model, normalize it, export
// it and render its turnaround views.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/engine/camera"
	"github.com/Faultbox/turnaround/internal/engine/capture"
	"github.com/Faultbox/turnaround/internal/engine/geometry"
	"github.com/Faultbox/turnaround/internal/engine/lighting"
	"github.com/Faultbox/turnaround/internal/engine/renderer"
	"github.com/Faultbox/turnaround/internal/logger"
	"github.com/Faultbox/turnaround/pkg/formats"
	"github.com/Faultbox/turnaround/pkg/scene"
)

var (
	// ErrRenderBackend marks failures reported by the renderer.
	ErrRenderBackend = errors.New("render backend failure")
	// ErrItemPanic marks an item whose processing panicked.
	ErrItemPanic = errors.New("panic while processing item")
)

// RenderError is a failed render of one view. It matches both
// ErrRenderBackend and the underlying cause with errors.Is.
type RenderError struct {
	Label string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering view %s: %v", e.Label, e.Err)
}

// Unwrap returns ErrRenderBackend and the cause.
func (e *RenderError) Unwrap() []error {
	return []error{ErrRenderBackend, e.Err}
}

// DefaultFormat is the export format used when none is given.
const DefaultFormat = "glb"

// Options configures an Orchestrator.
type Options struct {
	// Registry resolves importers and exporters. Nil uses formats.NewRegistry.
	Registry *formats.Registry
	// Renderer draws each view. Required.
	Renderer renderer.Renderer
	// Settings must match the settings the renderer was built with.
	Settings renderer.Settings

	// Format is the export format token and the output directory marker.
	Format string
	// OutputDir overrides the default "<input dir>/_<format>".
	OutputDir string
	// SkipExport disables the normalized model export.
	SkipExport bool

	Mode      geometry.Mode
	MinExtent float64
	// Timeout bounds each view render; 0 disables it.
	Timeout time.Duration

	// Logger receives progress. Nil uses the global logger.
	Logger *zap.Logger
}

// Orchestrator processes input files one at a time.
type Orchestrator struct {
	opts     Options
	registry *formats.Registry
	writer   capture.Writer
	log      *zap.Logger
}

// New creates an orchestrator, filling unset options with defaults.
func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = formats.NewRegistry()
	}
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	opts.Format = strings.ToLower(opts.Format)
	if opts.Mode == "" {
		opts.Mode = geometry.ModePerPart
	}
	if !(opts.MinExtent > 0) {
		opts.MinExtent = camera.DefaultMinExtent
	}
	log := opts.Logger
	if log == nil {
		log = logger.Log.Named("pipeline")
	}
	return &Orchestrator{
		opts:     opts,
		registry: opts.Registry,
		writer:   capture.Writer{Depth: opts.Settings.ColorDepth},
		log:      log,
	}
}

// Run processes inputs in order. Per-item failures are recorded in the
// report and never stop the batch; cancellation of ctx stops it between
// items and is returned with the partial report.
func (o *Orchestrator) Run(ctx context.Context, inputs []string) (*Report, error) {
	report := o.NewReport()
	log := o.runLogger(report.RunID)
	log.Info("batch started", zap.Int("inputs", len(inputs)), zap.String("format", report.Format))

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			report.Finished = time.Now()
			log.Warn("batch interrupted", zap.Error(err), zap.Int("done", len(report.Items)))
			return report, err
		}
		report.Items = append(report.Items, o.process(ctx, path, log))
	}

	report.Finished = time.Now()
	ok, skipped, failed := report.Counts()
	log.Info("batch finished",
		zap.Int("ok", ok),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)),
	)
	return report, nil
}

// NewReport starts an empty report with a fresh run ID.
func (o *Orchestrator) NewReport() *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Format:  o.opts.Format,
		Backend: backendName(o.opts.Renderer),
	}
}

func (o *Orchestrator) runLogger(runID string) *zap.Logger {
	if o.opts.Logger == nil {
		return logger.ForRun(runID)
	}
	return o.opts.Logger.With(zap.String("run_id", runID))
}

// ProcessFile runs the whole pipeline for a single file.
func (o *Orchestrator) ProcessFile(ctx context.Context, path string) ItemResult {
	return o.process(ctx, path, o.log)
}

// OutputDir returns the directory outputs for path are written to.
func (o *Orchestrator) OutputDir(path string) string {
	if o.opts.OutputDir != "" {
		return o.opts.OutputDir
	}
	return filepath.Join(filepath.Dir(path), "_"+o.opts.Format)
}

func (o *Orchestrator) process(ctx context.Context, path string, log *zap.Logger) (res ItemResult) {
	start := time.Now()
	res = ItemResult{Path: path, Status: StatusOK}
	defer func() { res.Duration = time.Since(start) }()
	log = log.With(zap.String("file", path))
	// A malformed model must not abort the rest of the batch.
	defer func() {
		if r := recover(); r != nil {
			res.fail(fmt.Errorf("%s: %w: %v", path, ErrItemPanic, r))
			log.Error("item panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	// Unrecognized extensions are not model files; skip without noise.
	if !o.registry.Recognized(path) {
		res.skip(fmt.Errorf("%w: %q", formats.ErrUnsupportedFormat, formats.Ext(path)))
		return res
	}

	sc, err := o.registry.Import(path)
	if err != nil {
		res.fail(fmt.Errorf("loading %s: %w", path, err))
		log.Error("import failed", zap.Error(err))
		return res
	}

	parts := sc.MeshParts()
	res.Parts = len(parts)
	res.Vertices, res.Tris = sc.Stats()
	log.Debug("imported",
		zap.Int("parts", res.Parts),
		zap.Int("vertices", res.Vertices),
		zap.Int("triangles", res.Tris),
	)
	box, err := geometry.ComputeBounds(parts)
	if err != nil {
		if errors.Is(err, geometry.ErrNoGeometryFound) {
			res.skip(fmt.Errorf("%s: %w", path, err))
			log.Warn("no mesh geometry, skipping")
			return res
		}
		res.fail(fmt.Errorf("bounds of %s: %w", path, err))
		log.Error("bounds failed", zap.Error(err))
		return res
	}
	extent := box.Extent()
	res.Extent = []float64{extent.X, extent.Y, extent.Z}

	geometry.NormalizeScene(parts, o.opts.Mode)

	outDir := o.OutputDir(path)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		res.fail(fmt.Errorf("creating output dir: %w", err))
		log.Error("output dir failed", zap.Error(err))
		return res
	}
	base := baseName(path)

	if !o.opts.SkipExport {
		exportPath := filepath.Join(outDir, base+"."+o.opts.Format)
		if err := o.export(sc, exportPath); err != nil {
			res.fail(err)
			log.Error("export failed", zap.Error(err))
			return res
		}
		res.Export = exportPath
		log.Debug("exported", zap.String("path", exportPath))
	}

	rig := camera.NewRig(extent, o.opts.MinExtent)
	lights := lighting.NewRig(extent.Z)
	log.Debug("rig ready",
		zap.Stringer("extent", rig.Extent),
		zap.Float64("radius", rig.Radius),
	)

	for _, view := range rig.Views().All() {
		img, err := o.render(ctx, sc, view, rig, lights)
		if err != nil {
			res.fail(err)
			log.Error("render failed, skipping remaining views", zap.String("view", view.Label), zap.Error(err))
			return res
		}
		imgPath := filepath.Join(outDir, base+"_"+view.Label+".png")
		if err := o.writer.WritePNG(imgPath, img); err != nil {
			res.fail(fmt.Errorf("writing %s: %w", imgPath, err))
			log.Error("write failed", zap.String("view", view.Label), zap.Error(err))
			return res
		}
		res.Images = append(res.Images, imgPath)
	}

	log.Info("item done", zap.Int("images", len(res.Images)), zap.Duration("elapsed", time.Since(start)))
	return res
}

func (o *Orchestrator) export(sc *scene.Scene, path string) error {
	exp, err := o.registry.Exporter(o.opts.Format)
	if err != nil {
		return err
	}
	if err := exp.Export(sc, path); err != nil {
		return fmt.Errorf("exporting %s: %w", path, err)
	}
	return nil
}

func (o *Orchestrator) render(ctx context.Context, sc *scene.Scene, view camera.View, rig camera.Rig, lights lighting.Rig) (img image.Image, err error) {
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	img, err = o.opts.Renderer.Render(ctx, sc, view, rig, lights)
	if err == nil {
		// A renderer that ignores ctx still reports an overrun view.
		err = ctx.Err()
	}
	if err != nil {
		return nil, &RenderError{Label: view.Label, Err: err}
	}
	return img, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func backendName(r renderer.Renderer) string {
	if s, ok := r.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", r)
}
