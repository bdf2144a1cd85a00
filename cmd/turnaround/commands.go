package main

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/config"
	"github.com/Faultbox/turnaround/internal/logger"
	"github.com/Faultbox/turnaround/internal/pipeline"
	"github.com/Faultbox/turnaround/internal/watch"
	"github.com/Faultbox/turnaround/pkg/formats"
)

func newWatchCmd(flags *config.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [flags] <dir> [format] [output]",
		Short: "Process model files as they appear in a directory",
		Long: `watch monitors one directory (not its subdirectories) and runs the
pipeline on each recognized model file once it has stopped changing for
watch.settle. It stops on SIGINT or SIGTERM.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 3 {
				return usageErrorf("watch takes <dir> [format] [output], got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			format, output, err := parsePositionals(args[1:])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags, format, output)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg, args[0])
		},
	}
}

func runWatch(parent context.Context, cfg *config.Config, dir string) error {
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Sync()

	orch, closeRenderer, err := newOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer closeRenderer()

	w, err := watch.New(dir, cfg.Watch.Settle.Std(), watchFilter(formats.NewRegistry(), orch), logger.Log.Named("watch"))
	if err != nil {
		return err
	}

	ctx, stop := signalContext(parent)
	defer stop()

	report := orch.NewReport()
	err = w.Run(ctx, func(ctx context.Context, path string) {
		res := orch.ProcessFile(ctx, path)
		report.Items = append(report.Items, res)
		logger.Info("processed", zap.String("file", path), zap.String("status", string(res.Status)))
	})
	report.Finished = time.Now()
	if ferr := finish(cfg, report); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	if cfg.Output.Strict && report.HasFailures() {
		return errItemsFailed
	}
	return nil
}

// watchFilter accepts recognized model files that are not inside the
// orchestrator's output directory, so exports never trigger a new run.
func watchFilter(reg *formats.Registry, orch *pipeline.Orchestrator) func(string) bool {
	return func(path string) bool {
		return reg.Recognized(path) && !within(orch.OutputDir(path), path)
	}
}

// within reports whether path is dir or lies beneath it.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List recognized model formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := formats.NewRegistry()
			importable := reg.ImportableExtensions()
			exportable := reg.ExportFormats()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXT\tIMPORT\tEXPORT")
			for _, ext := range reg.Extensions() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", ext,
					yesNo(slices.Contains(importable, ext)),
					yesNo(slices.Contains(exportable, ext)))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nexport formats: %s (default %s)\n",
				strings.Join(exportable, ", "), pipeline.DefaultFormat)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "turnaround %s\n", version)
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
