package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds command-line overrides bound to a pflag.FlagSet.
type Flags struct {
	fs *pflag.FlagSet

	config      string
	debug       bool
	backend     string
	width       int
	height      int
	samples     int
	timeout     time.Duration
	manifest    string
	normalize   string
	logFile     string
	strict      bool
	debugBounds bool
	noExport    bool
}

// BindFlags registers the config override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.config, "config", "", "Path to config file (.yaml or .toml)")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.backend, "backend", "", "Render backend (software, gl)")
	fs.IntVar(&f.width, "width", 0, "Output width in pixels")
	fs.IntVar(&f.height, "height", 0, "Output height in pixels")
	fs.IntVar(&f.samples, "samples", 0, "Render samples per pixel")
	fs.DurationVar(&f.timeout, "timeout", 0, "Per-view render timeout (0 disables)")
	fs.StringVar(&f.manifest, "manifest", "", "Write a YAML run manifest to this path")
	fs.StringVar(&f.normalize, "normalize", "", "Normalization mode (per-part, scene)")
	fs.StringVar(&f.logFile, "log-file", "", "Also log to this file (rotated)")
	fs.BoolVar(&f.strict, "strict", false, "Exit non-zero when any item fails")
	fs.BoolVar(&f.debugBounds, "debug-bounds", false, "Overlay the bounding box wireframe")
	fs.BoolVar(&f.noExport, "no-export", false, "Skip the normalized model export")
	return f
}

// ConfigPath returns the explicit config path if provided via --config flag.
func (f *Flags) ConfigPath() string {
	if f == nil {
		return ""
	}
	return f.config
}

func (f *Flags) changed(name string) bool {
	return f.fs != nil && f.fs.Changed(name)
}

// apply applies CLI flag overrides to the config. Only flags set on the
// command line take effect, so zero values can override file settings.
func (f *Flags) apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.changed("debug") && f.debug {
		cfg.Logging.Level = "debug"
	}
	if f.changed("backend") {
		cfg.Render.Backend = f.backend
	}
	if f.changed("width") {
		cfg.Render.Width = f.width
	}
	if f.changed("height") {
		cfg.Render.Height = f.height
	}
	if f.changed("samples") {
		cfg.Render.Samples = f.samples
	}
	if f.changed("timeout") {
		cfg.Render.Timeout = Duration(f.timeout)
	}
	if f.changed("manifest") {
		cfg.Output.Manifest = f.manifest
	}
	if f.changed("normalize") {
		cfg.Normalize.Mode = f.normalize
	}
	if f.changed("log-file") {
		cfg.Logging.LogFile = f.logFile
	}
	if f.changed("strict") {
		cfg.Output.Strict = f.strict
	}
	if f.changed("debug-bounds") {
		cfg.Render.DebugBounds = f.debugBounds
	}
	if f.changed("no-export") {
		cfg.Export.Enabled = !f.noExport
	}
}
