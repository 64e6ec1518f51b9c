package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternsearch/lantern/internal/policy"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func drainUntil(t *testing.T, events <-chan FileEvent, match func(FileEvent) bool) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event channel closed before match")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestPollingWatcherDetectsCreateModifyDelete(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "existing.md")
	writeFile(t, existing, "baseline content")

	p := NewPollingWatcher(30*time.Millisecond, policy.DeveloperPreset([]string{root}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx) }()
	defer func() { _ = p.Stop() }()

	// Give the baseline scan a moment before mutating.
	time.Sleep(100 * time.Millisecond)

	created := filepath.Join(root, "new.md")
	writeFile(t, created, "fresh")
	ev := drainUntil(t, p.Events(), func(e FileEvent) bool { return e.Path == created })
	assert.Equal(t, OpCreate, ev.Operation)
	assert.False(t, ev.ModTime.IsZero())

	require.NoError(t, os.WriteFile(existing, []byte("changed body, different size"), 0o644))
	ev = drainUntil(t, p.Events(), func(e FileEvent) bool { return e.Path == existing })
	assert.Equal(t, OpModify, ev.Operation)

	require.NoError(t, os.Remove(created))
	ev = drainUntil(t, p.Events(), func(e FileEvent) bool { return e.Path == created && e.Operation == OpDelete })
	assert.True(t, ev.ModTime.IsZero())
}

func TestPollingWatcherPrunesExcludedDirs(t *testing.T) {
	root := t.TempDir()
	p := NewPollingWatcher(30*time.Millisecond, policy.DeveloperPreset([]string{root}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx) }()
	defer func() { _ = p.Stop() }()

	time.Sleep(100 * time.Millisecond)

	writeFile(t, filepath.Join(root, "node_modules", "pkg", "readme.md"), "ignored tree")
	visible := filepath.Join(root, "notes.md")
	writeFile(t, visible, "visible")

	ev := drainUntil(t, p.Events(), func(e FileEvent) bool { return e.Operation == OpCreate && filepath.Ext(e.Path) == ".md" })
	assert.Equal(t, visible, ev.Path, "excluded subtree must not surface first")
}

func TestPollingWatcherWatchesMultipleRoots(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	p := NewPollingWatcher(30*time.Millisecond, policy.DeveloperPreset([]string{rootA, rootB}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Start(ctx) }()
	defer func() { _ = p.Stop() }()

	time.Sleep(100 * time.Millisecond)

	inA := filepath.Join(rootA, "a.md")
	inB := filepath.Join(rootB, "b.md")
	writeFile(t, inA, "alpha")
	writeFile(t, inB, "bravo")

	seen := map[string]bool{}
	for len(seen) < 2 {
		ev := drainUntil(t, p.Events(), func(e FileEvent) bool { return e.Operation == OpCreate })
		seen[ev.Path] = true
	}
	assert.True(t, seen[inA])
	assert.True(t, seen[inB])
}
