package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
	ch    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) onChange(paths []string) {
	r.mu.Lock()
	r.paths = append(r.paths, paths...)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func startWatcher(t *testing.T, root string, rec *recorder) *Watcher {
	t.Helper()
	w, err := New(root, nil, rec.onChange)
	require.NoError(t, err)
	w.debounceDur = 50 * time.Millisecond
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	return w
}

func TestWatcherReportsGoFileWrites(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))

	rec.wait(t)
	assert.Contains(t, rec.seen(), path)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x_test.go"), []byte("package x\n"), 0644))

	// Settle well past the debounce window.
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, rec.seen())
}

func TestWatcherDebouncesRapidSaves(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	startWatcher(t, root, rec)

	path := filepath.Join(root, "main.go")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0644))
		time.Sleep(5 * time.Millisecond)
	}

	rec.wait(t)
	assert.Equal(t, []string{path}, rec.seen())
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	rec := newRecorder()
	w := startWatcher(t, root, rec)

	w.Stop()
	w.Stop()
}
