//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

const (
	binDir  = "bin"
	mainPkg = "./cmd/turnaround"
)

type Build mg.Namespace

// Binary builds bin/turnaround with the version stamped in. The gl backend
// needs cgo with SDL2 and OpenGL headers.
func (Build) Binary() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}
	ldflags := fmt.Sprintf("-s -w -X main.version=%s", gitVersion())
	out := filepath.Join(binDir, "turnaround")
	_, err := executeCmd("go", withArgs("build", "-ldflags", ldflags, "-o", out, mainPkg), withStream())
	return err
}

// Tidy runs go mod tidy.
func (Build) Tidy() error {
	_, err := executeCmd("go", withArgs("mod", "tidy"))
	return err
}

type Test mg.Namespace

// Unit runs every package test with the race detector.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Core runs the tests that need neither cgo nor a display.
func (Test) Core() error {
	_, err := executeCmd("go", withArgs("test", "-count=1",
		"./pkg/...",
		"./internal/config/...",
		"./internal/logger/...",
		"./internal/pipeline/...",
		"./internal/watch/...",
		"./internal/engine/camera/...",
		"./internal/engine/capture/...",
		"./internal/engine/geometry/...",
		"./internal/engine/lighting/...",
	), withStream())
	return err
}

// Lint runs go vet.
func Lint() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// All tidies, lints, tests and builds.
func All() {
	mg.SerialDeps(Build.Tidy, Lint, Test.Unit, Build.Binary)
}
