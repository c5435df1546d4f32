package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string, rebuilds *atomic.Int32) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(root, 100*time.Millisecond, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(context.Context) error {
			rebuilds.Add(1)
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before mutating the tree
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func waitForRebuilds(t *testing.T, rebuilds *atomic.Int32, want int32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return rebuilds.Load() >= want
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherRebuildsOnMarkdownChange(t *testing.T) {
	root := t.TempDir()
	var rebuilds atomic.Int32
	startWatcher(t, root, &rebuilds)

	require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("# hi"), 0o644))

	waitForRebuilds(t, &rebuilds, 1)
}

func TestWatcherDebouncesBursts(t *testing.T) {
	root := t.TempDir()
	var rebuilds atomic.Int32
	startWatcher(t, root, &rebuilds)

	// A burst of writes inside the debounce window collapses into one
	// rebuild
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "note.md"), []byte("edit"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	waitForRebuilds(t, &rebuilds, 1)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), rebuilds.Load())
}

func TestWatcherIgnoresNonMarkdown(t *testing.T) {
	root := t.TempDir()
	var rebuilds atomic.Int32
	startWatcher(t, root, &rebuilds)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{0x89}, 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, rebuilds.Load())
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	var rebuilds atomic.Int32
	startWatcher(t, root, &rebuilds)

	sub := filepath.Join(root, "pages")
	require.NoError(t, os.Mkdir(sub, 0o755))
	waitForRebuilds(t, &rebuilds, 1)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.md"), []byte("# new"), 0o644))
	waitForRebuilds(t, &rebuilds, 2)
}

func TestWatcherStopsOnCancel(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	w := New(root, 50*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
