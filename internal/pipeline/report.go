package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Status is the outcome of one input file.
type Status string

// Item statuses.
const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// ItemResult records what happened to one input file.
type ItemResult struct {
	Path     string        `yaml:"path"`
	Status   Status        `yaml:"status"`
	Parts    int           `yaml:"parts,omitempty"`
	Vertices int           `yaml:"vertices,omitempty"`
	Tris     int           `yaml:"triangles,omitempty"`
	Extent   []float64     `yaml:"extent,flow,omitempty"`
	Export   string        `yaml:"export,omitempty"`
	Images   []string      `yaml:"images,omitempty"`
	Reason   string        `yaml:"reason,omitempty"`
	Duration time.Duration `yaml:"duration"`

	// Err is the error behind a skipped or failed item.
	Err error `yaml:"-"`
}

func (r *ItemResult) fail(err error) {
	r.Status = StatusFailed
	r.Err = err
	r.Reason = err.Error()
}

func (r *ItemResult) skip(err error) {
	r.Status = StatusSkipped
	r.Err = err
	r.Reason = err.Error()
}

// Report summarizes one batch run.
type Report struct {
	RunID    string       `yaml:"run_id"`
	Started  time.Time    `yaml:"started"`
	Finished time.Time    `yaml:"finished"`
	Format   string       `yaml:"format"`
	Backend  string       `yaml:"backend"`
	Items    []ItemResult `yaml:"items"`
}

// Counts returns the number of items per status.
func (r *Report) Counts() (ok, skipped, failed int) {
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			ok++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return ok, skipped, failed
}

// HasFailures reports whether any item failed.
func (r *Report) HasFailures() bool {
	_, _, failed := r.Counts()
	return failed > 0
}

// WriteManifest writes the report as YAML, creating parent directories.
func (r *Report) WriteManifest(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest dir: %w", err)
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadManifest loads a report written by WriteManifest. Item errors are not
// restored; Reason keeps their text.
func ReadManifest(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding manifest %s: %w", path, err)
	}
	return &r, nil
}
