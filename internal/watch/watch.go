// Package watch feeds model files dropped into a directory to a handler
// once they stop changing.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrClosed is returned by Run on a closed watcher.
var ErrClosed = errors.New("watcher already closed")

// DefaultSettle is how long a file must stay quiet before it is handled.
const DefaultSettle = 500 * time.Millisecond

// Handler processes one settled file. Calls never overlap.
type Handler func(ctx context.Context, path string)

// Watcher debounces create and write events in one directory
// (non-recursively).
type Watcher struct {
	dir    string
	settle time.Duration
	accept func(path string) bool
	log    *zap.Logger

	fs      *fsnotify.Watcher
	pending map[string]time.Time
	closed  bool
}

// New starts watching dir. Events for paths accept rejects are ignored; a
// nil accept takes every file.
func New(dir string, settle time.Duration, accept func(path string) bool, log *zap.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch %s: not a directory", dir)
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	if accept == nil {
		accept = func(string) bool { return true }
	}
	if log == nil {
		log = zap.NewNop()
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatch.Add(dir); err != nil {
		fsWatch.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		settle:  settle,
		accept:  accept,
		log:     log.With(zap.String("dir", dir)),
		fs:      fsWatch,
		pending: make(map[string]time.Time),
	}, nil
}

// Run delivers settled files to handle until ctx is done, then closes the
// watcher. Files are handled one at a time, in path order when several
// settle together.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	if w.closed {
		return ErrClosed
	}
	defer w.Close()

	timer := time.NewTimer(w.settle)
	timer.Stop()
	w.log.Info("watching", zap.Duration("settle", w.settle))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopped", zap.Int("pending", len(w.pending)))
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					delete(w.pending, event.Name)
				}
				continue
			}
			if !w.accept(event.Name) {
				continue
			}
			w.pending[event.Name] = time.Now().Add(w.settle)
			w.rearm(timer)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case now := <-timer.C:
			for _, path := range w.due(now) {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Debug("file settled", zap.String("file", path))
				handle(ctx, path)
			}
			w.rearm(timer)
		}
	}
}

// due removes and returns the pending paths whose deadline has passed.
func (w *Watcher) due(now time.Time) []string {
	var ready []string
	for path, deadline := range w.pending {
		if !deadline.After(now) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	slices.Sort(ready)
	return ready
}

// rearm points the timer at the earliest pending deadline.
func (w *Watcher) rearm(timer *time.Timer) {
	timer.Stop()
	if len(w.pending) == 0 {
		return
	}
	var next time.Time
	for _, deadline := range w.pending {
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	timer.Reset(max(time.Until(next), 0))
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fs.Close()
}
