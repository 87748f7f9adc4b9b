package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buggy-grass/rotgis-desktop-sub000/internal/clock"
	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func TestWatcher_WatchesNearestExistingAncestor(t *testing.T) {
	w, err := NewWatcher(clock.NewFake(), 100*time.Millisecond, nil, nil)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "north", "metadata.json")
	require.NoError(t, w.Watch([]string{target}))
	require.Equal(t, []string{dir}, w.Watched())

	require.NoError(t, w.Watch(nil))
	require.Empty(t, w.Watched())
}

func TestWatcher_ReportsReappearedAsset(t *testing.T) {
	clk := clock.NewFake()
	appeared := make(chan []string, 4)
	w, err := NewWatcher(clk, 200*time.Millisecond, func(paths []string) { appeared <- paths }, nil)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "north", "metadata.json")
	require.NoError(t, w.Watch([]string{target}))

	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("{}"), 0o644))
	require.Eventually(t, func() bool { return clk.Pending() > 0 }, 2*time.Second, 10*time.Millisecond)

	clk.Advance(200 * time.Millisecond)
	select {
	case got := <-appeared:
		require.Equal(t, []string{target}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("asset was not reported")
	}
}

func TestWatcher_IgnoresUnrelatedAndIncompleteEvents(t *testing.T) {
	clk := clock.NewFake()
	calls := 0
	w, err := NewWatcher(clk, 50*time.Millisecond, func([]string) { calls++ }, nil)
	require.NoError(t, err)
	defer w.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "north", "metadata.json")
	require.NoError(t, w.Watch([]string{target}))

	w.handle(fsnotify.Event{Name: filepath.Join(dir, "other.txt"), Op: fsnotify.Create})
	require.Equal(t, 0, clk.Pending())

	w.handle(fsnotify.Event{Name: target, Op: fsnotify.Chmod})
	require.Equal(t, 0, clk.Pending())

	// The event names the target but the file is still absent at flush time.
	w.handle(fsnotify.Event{Name: target, Op: fsnotify.Create})
	require.Equal(t, 1, clk.Pending())
	clk.Advance(time.Second)
	require.Equal(t, 0, calls)
}

func TestWatcher_CloseDropsPending(t *testing.T) {
	clk := clock.NewFake()
	w, err := NewWatcher(clk, 50*time.Millisecond, func([]string) { t.Fatal("flushed after close") }, nil)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "metadata.json")
	require.NoError(t, w.Watch([]string{target}))
	w.handle(fsnotify.Event{Name: target, Op: fsnotify.Create})

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	clk.Advance(time.Second)
}
