package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	accept := func(path string) bool { return strings.HasSuffix(path, ".obj") }

	w, err := New(dir, 50*time.Millisecond, accept, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(_ context.Context, path string) { handled <- path })
	}()

	model := filepath.Join(dir, "chair.obj")
	f, err := os.Create(model)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.WriteString("v 0 0 0\n")
		require.NoError(t, err)
		require.NoError(t, f.Sync())
	}
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case path := <-handled:
		assert.Equal(t, model, path)
	case <-time.After(5 * time.Second):
		t.Fatal("settled file was not handled")
	}

	select {
	case path := <-handled:
		t.Fatalf("unexpected second delivery %s", path)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	assert.ErrorIs(t, w.Run(context.Background(), nil), ErrClosed)
	assert.NoError(t, w.Close())
}

func TestDueOrdersAndRemoves(t *testing.T) {
	now := time.Now()
	w := &Watcher{pending: map[string]time.Time{
		"b.obj": now.Add(-time.Millisecond),
		"a.obj": now,
		"c.obj": now.Add(time.Second),
	}}

	assert.Equal(t, []string{"a.obj", "b.obj"}, w.due(now))
	assert.Len(t, w.pending, 1)
	assert.Contains(t, w.pending, "c.obj")
	assert.Empty(t, w.due(now))
}

func TestNewRejectsMissingDir(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), 0, nil, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.obj")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, 0, nil, nil)
	assert.Error(t, err)
}
