// Package config handles turnaround configuration loading and management.
package config

import (
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/turnaround/internal/engine/camera"
	"github.com/Faultbox/turnaround/internal/engine/geometry"
	"github.com/Faultbox/turnaround/internal/engine/renderer"
	"github.com/Faultbox/turnaround/internal/logger"
)

// Config holds all pipeline settings.
type Config struct {
	Render    RenderConfig    `yaml:"render" toml:"render"`
	Camera    CameraConfig    `yaml:"camera" toml:"camera"`
	Normalize NormalizeConfig `yaml:"normalize" toml:"normalize"`
	Export    ExportConfig    `yaml:"export" toml:"export"`
	Output    OutputConfig    `yaml:"output" toml:"output"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// RenderConfig holds image and backend settings.
type RenderConfig struct {
	Backend     string   `yaml:"backend" toml:"backend"` // software or gl
	Width       int      `yaml:"width" toml:"width"`
	Height      int      `yaml:"height" toml:"height"`
	Percentage  int      `yaml:"percentage" toml:"percentage"`
	Samples     int      `yaml:"samples" toml:"samples"`
	ColorDepth  int      `yaml:"color_depth" toml:"color_depth"`
	Transparent bool     `yaml:"transparent" toml:"transparent"`
	Timeout     Duration `yaml:"timeout" toml:"timeout"` // per view, 0 disables
	Ambient     float64  `yaml:"ambient" toml:"ambient"`
	Exposure    float64  `yaml:"exposure" toml:"exposure"`
	DebugBounds bool     `yaml:"debug_bounds" toml:"debug_bounds"`
}

// CameraConfig holds the physical camera and framing settings.
type CameraConfig struct {
	LensMM    float64 `yaml:"lens_mm" toml:"lens_mm"`
	SensorMM  float64 `yaml:"sensor_mm" toml:"sensor_mm"`
	MinExtent float64 `yaml:"min_extent" toml:"min_extent"`
}

// NormalizeConfig selects how imported parts are recentered.
type NormalizeConfig struct {
	Mode string `yaml:"mode" toml:"mode"` // per-part or scene
}

// ExportConfig holds normalized model export settings.
type ExportConfig struct {
	Format  string `yaml:"format" toml:"format"` // glb, gltf or obj
	Enabled bool   `yaml:"enabled" toml:"enabled"`
}

// OutputConfig holds output locations.
type OutputConfig struct {
	// Dir overrides the default "<input dir>/_<format>" output directory.
	Dir      string `yaml:"dir" toml:"dir"`
	Manifest string `yaml:"manifest" toml:"manifest"`
	Strict   bool   `yaml:"strict" toml:"strict"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Settle Duration `yaml:"settle" toml:"settle"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Export formats accepted in configuration and on the command line.
var ExportFormats = []string{"glb", "gltf", "obj"}

// Default returns a Config with sensible default values.
func Default() *Config {
	rs := renderer.DefaultSettings()
	return &Config{
		Render: RenderConfig{
			Backend:     renderer.BackendSoftware,
			Width:       rs.Width,
			Height:      rs.Height,
			Percentage:  rs.Percentage,
			Samples:     rs.Samples,
			ColorDepth:  rs.ColorDepth,
			Transparent: rs.Transparent,
			Ambient:     rs.Ambient,
			Exposure:    rs.Exposure,
		},
		Camera: CameraConfig{
			LensMM:    camera.DefaultLensMM,
			SensorMM:  camera.DefaultSensorMM,
			MinExtent: camera.DefaultMinExtent,
		},
		Normalize: NormalizeConfig{
			Mode: string(geometry.ModePerPart),
		},
		Export: ExportConfig{
			Format:  "glb",
			Enabled: true,
		},
		Watch: WatchConfig{
			Settle: Duration(500 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if !slices.Contains(renderer.Backends(), c.Render.Backend) {
		return fmt.Errorf("render.backend: unknown backend %q (want one of %v)", c.Render.Backend, renderer.Backends())
	}
	if err := c.RenderSettings().Validate(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if c.Render.Timeout < 0 {
		return fmt.Errorf("render.timeout: must not be negative, got %s", c.Render.Timeout)
	}
	if !(c.Camera.MinExtent > 0) {
		return fmt.Errorf("camera.min_extent: must be positive, got %v", c.Camera.MinExtent)
	}
	if _, err := geometry.ParseMode(c.Normalize.Mode); err != nil {
		return fmt.Errorf("normalize.mode: %w", err)
	}
	if !slices.Contains(ExportFormats, c.Export.Format) {
		return fmt.Errorf("export.format: unknown format %q (want one of %v)", c.Export.Format, ExportFormats)
	}
	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Watch.Settle < 0 {
		return fmt.Errorf("watch.settle: must not be negative, got %s", c.Watch.Settle)
	}
	return nil
}

// RenderSettings builds the immutable renderer settings.
func (c *Config) RenderSettings() renderer.Settings {
	s := renderer.DefaultSettings()
	s.Width = c.Render.Width
	s.Height = c.Render.Height
	s.Percentage = c.Render.Percentage
	s.Samples = c.Render.Samples
	s.ColorDepth = c.Render.ColorDepth
	s.Transparent = c.Render.Transparent
	s.Ambient = c.Render.Ambient
	s.Exposure = c.Render.Exposure
	s.DebugBounds = c.Render.DebugBounds
	s.LensMM = c.Camera.LensMM
	s.SensorMM = c.Camera.SensorMM
	return s
}

// NormalizeMode returns the parsed normalization mode.
func (c *Config) NormalizeMode() geometry.Mode {
	mode, err := geometry.ParseMode(c.Normalize.Mode)
	if err != nil {
		return geometry.ModePerPart
	}
	return mode
}

// Duration is a time.Duration written as a string such as "30s" in both
// YAML and TOML files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if err := d.UnmarshalText([]byte(node.Value)); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}
