// Package main is the entry point for the turnaround batch renderer.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/config"
	"github.com/Faultbox/turnaround/internal/logger"
	"github.com/Faultbox/turnaround/internal/pipeline"
	"github.com/Faultbox/turnaround/pkg/formats"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitCanceled = 130
)

var errItemsFailed = errors.New("one or more items failed")

// usageError marks malformed command lines.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return usageError{err: fmt.Errorf(format, args...)}
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "turnaround: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var uerr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr):
		return exitUsage
	case errors.Is(err, context.Canceled):
		return exitCanceled
	default:
		return exitFailure
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "turnaround [flags] [format] [output] -- file...",
		Short: "Normalize 3D models and render turnaround thumbnails",
		Long: `turnaround imports 3D model files, grounds and recenters each model,
exports the normalized model and renders seven views of it
(org, side0, side90, side180, side270, top, bottom).

The optional format token (glb, gltf, obj) selects the export format and
the default output directory "<input dir>/_<format>". The optional output
path replaces that directory. Files with unrecognized extensions are
skipped silently.`,
		Example: `  turnaround -- chair.obj table.stl
  turnaround gltf ./thumbs -- models/*.ply
  turnaround --backend gl --samples 64 --manifest run.yaml -- scene.glb`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := config.BindFlags(root.PersistentFlags())

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	root.RunE = func(cmd *cobra.Command, args []string) error {
		format, output, files, err := splitArgs(args, cmd.ArgsLenAtDash())
		if err != nil {
			return err
		}
		cfg, err := loadConfig(flags, format, output)
		if err != nil {
			return err
		}
		return runBatch(cmd.Context(), cfg, files)
	}

	root.AddCommand(newWatchCmd(flags), newFormatsCmd(), newVersionCmd())
	return root
}

// splitArgs separates "[format] [output] -- file..." into its parts. dash is
// the number of arguments before "--", or -1 when it is absent.
func splitArgs(args []string, dash int) (format, output string, files []string, err error) {
	if dash < 0 {
		return "", "", nil, usageErrorf("input files must follow \"--\"")
	}
	format, output, err = parsePositionals(args[:dash])
	if err != nil {
		return "", "", nil, err
	}
	return format, output, args[dash:], nil
}

// parsePositionals reads the optional format token and output path.
func parsePositionals(pos []string) (format, output string, err error) {
	switch len(pos) {
	case 0:
		return "", "", nil
	case 1, 2:
		format = strings.ToLower(pos[0])
		if !slices.Contains(config.ExportFormats, format) {
			return "", "", usageErrorf("unknown format %q (want one of %s)", pos[0], strings.Join(config.ExportFormats, ", "))
		}
		if len(pos) == 2 {
			output = pos[1]
		}
		return format, output, nil
	default:
		return "", "", usageErrorf("too many arguments before \"--\": %q", pos)
	}
}

// loadConfig loads the config and applies the positional overrides.
func loadConfig(flags *config.Flags, format, output string) (*config.Config, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if format != "" {
		cfg.Export.Format = format
	}
	if output != "" {
		cfg.Output.Dir = output
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	return nil
}

// newOrchestrator builds the renderer and the orchestrator. The caller closes
// the returned renderer.
func newOrchestrator(cfg *config.Config) (*pipeline.Orchestrator, func(), error) {
	settings := cfg.RenderSettings()
	r, err := newRenderer(cfg.Render.Backend, settings, logger.Log.Named("render"))
	if err != nil {
		return nil, nil, err
	}
	orch := pipeline.New(pipeline.Options{
		Registry:   formats.NewRegistry(),
		Renderer:   r,
		Settings:   settings,
		Format:     cfg.Export.Format,
		OutputDir:  cfg.Output.Dir,
		SkipExport: !cfg.Export.Enabled,
		Mode:       cfg.NormalizeMode(),
		MinExtent:  cfg.Camera.MinExtent,
		Timeout:    cfg.Render.Timeout.Std(),
	})
	closeFn := func() {
		if err := r.Close(); err != nil {
			logger.Warn("closing renderer", zap.Error(err))
		}
	}
	return orch, closeFn, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runBatch(parent context.Context, cfg *config.Config, files []string) error {
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Sync()

	orch, closeRenderer, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer closeRenderer()

	ctx, stop := signalContext(parent)
	defer stop()

	report, runErr := orch.Run(ctx, files)
	if err := finish(cfg, report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if cfg.Output.Strict && report.HasFailures() {
		return errItemsFailed
	}
	return nil
}

// finish writes the manifest when one is configured.
func finish(cfg *config.Config, report *pipeline.Report) error {
	if cfg.Output.Manifest == "" || report == nil {
		return nil
	}
	if err := report.WriteManifest(cfg.Output.Manifest); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	logger.Info("manifest written", zap.String("path", cfg.Output.Manifest))
	return nil
}
