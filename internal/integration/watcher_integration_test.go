package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternsearch/lantern/internal/policy"
	"github.com/lanternsearch/lantern/internal/watcher"
)

// Watcher integration tests: changes under a crawl root must surface
// as debounced events, filtered through the indexing policy.

func newTestWatcher(t *testing.T, root string) *watcher.HybridWatcher {
	t.Helper()

	w, err := watcher.NewHybridWatcher(watcher.Options{
		Policy:          policy.DeveloperPreset([]string{root}),
		DebounceWindow:  100 * time.Millisecond,
		EventBufferSize: 100,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

// waitForEvent drains event batches until match returns true or the
// context expires.
func waitForEvent(ctx context.Context, t *testing.T, w *watcher.HybridWatcher, match func(watcher.FileEvent) bool) bool {
	t.Helper()
	for {
		select {
		case events := <-w.Events():
			for _, e := range events {
				if match(e) {
					return true
				}
			}
		case <-ctx.Done():
			return false
		}
	}
}

func TestWatcher_FileCreated_EmitsEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes"), 0o644)
	require.NoError(t, err)

	found := waitForEvent(ctx, t, w, func(e watcher.FileEvent) bool {
		return e.Operation == watcher.OpCreate && filepath.Base(e.Path) == "notes.md"
	})
	assert.True(t, found, "should receive CREATE event for notes.md")
}

func TestWatcher_FileModified_EmitsEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	existing := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(existing, []byte("# Report"), 0o644))

	w := newTestWatcher(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(existing, []byte("# Report\n\nUpdated."), 0o644))

	found := waitForEvent(ctx, t, w, func(e watcher.FileEvent) bool {
		return e.Operation == watcher.OpModify && filepath.Base(e.Path) == "report.md"
	})
	assert.True(t, found, "should receive MODIFY event for report.md")
}

func TestWatcher_FileDeleted_EmitsEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	doomed := filepath.Join(dir, "stale.md")
	require.NoError(t, os.WriteFile(doomed, []byte("old"), 0o644))

	w := newTestWatcher(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.Remove(doomed))

	found := waitForEvent(ctx, t, w, func(e watcher.FileEvent) bool {
		return e.Operation == watcher.OpDelete && filepath.Base(e.Path) == "stale.md"
	})
	assert.True(t, found, "should receive DELETE event for stale.md")
}

func TestWatcher_IsHealthy_ReportsCorrectly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	assert.True(t, w.IsHealthy(), "new watcher should be healthy")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsHealthy(), "stopped watcher should not be healthy")
}

func TestWatcher_WatcherType_ReturnsCorrectType(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir)

	assert.Contains(t, []string{"fsnotify", "polling"}, w.WatcherType())
}

// TestWatcher_PolicyFiltered_DoesNotEmitEvents verifies that files the
// indexing policy skips never surface as events: source code is not a
// document, and dependency trees are pruned.
func TestWatcher_PolicyFiltered_DoesNotEmitEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0o755))

	w := newTestWatcher(t, dir)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() { _ = w.Start(ctx) }()
	time.Sleep(200 * time.Millisecond)

	// Skipped: wrong extension, excluded subtree.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "pkg", "readme.md"), []byte("dep"), 0o644))

	// Indexed: document extension at the root.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary.md"), []byte("# Summary"), 0o644))

	sawSummary := false
	deadline := time.After(2 * time.Second)
	for !sawSummary {
		select {
		case events := <-w.Events():
			for _, e := range events {
				base := filepath.Base(e.Path)
				assert.NotEqual(t, "main.go", base, "source files should be filtered")
				assert.NotContains(t, e.Path, "node_modules", "excluded trees should be filtered")
				if base == "summary.md" {
					sawSummary = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for summary.md event")
		}
	}
}
