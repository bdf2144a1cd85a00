package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/turnaround/internal/engine/renderer"
	"github.com/Faultbox/turnaround/internal/engine/renderer/glrender"
)

// newRenderer creates the named render backend.
func newRenderer(backend string, settings renderer.Settings, log *zap.Logger) (renderer.Renderer, error) {
	switch backend {
	case renderer.BackendSoftware, "":
		r, err := renderer.NewSoftware(settings, log)
		if err != nil {
			return nil, err
		}
		return r, nil
	case renderer.BackendGL:
		r, err := glrender.New(settings, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", renderer.ErrBackendUnavailable, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %q", renderer.ErrUnknownBackend, backend)
	}
}
