package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/lanternsearch/lantern/internal/policy"
)

// PollingWatcher detects changes by periodically rescanning the
// indexed roots and diffing against the previous pass. Fallback for
// filesystems where fsnotify does not work (network mounts, some
// container volumes).
type PollingWatcher struct {
	interval  time.Duration
	pol       *policy.Policy
	roots     []string
	fileState map[string]fileSnapshot
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	mu        sync.Mutex
	stopped   bool
}

type fileSnapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// NewPollingWatcher creates a polling watcher over the policy's roots.
func NewPollingWatcher(interval time.Duration, pol *policy.Policy) *PollingWatcher {
	return &PollingWatcher{
		interval:  interval,
		pol:       pol,
		roots:     append([]string(nil), pol.AllowlistRoots...),
		fileState: make(map[string]fileSnapshot),
		events:    make(chan FileEvent, 100),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}
}

// Start establishes the baseline scan and then polls until the
// context is cancelled or Stop is called.
func (p *PollingWatcher) Start(ctx context.Context) error {
	p.mu.Lock()
	p.fileState = p.snapshotRoots()
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			p.detectChanges()
		}
	}
}

// Stop stops the polling watcher. Safe to call more than once.
func (p *PollingWatcher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}

// Events returns the channel of file events.
func (p *PollingWatcher) Events() <-chan FileEvent {
	return p.events
}

// Errors returns the channel of errors.
func (p *PollingWatcher) Errors() <-chan error {
	return p.errors
}

// snapshotRoots walks every root and records current file state,
// pruning policy-excluded subtrees without descending.
func (p *PollingWatcher) snapshotRoots() map[string]fileSnapshot {
	state := make(map[string]fileSnapshot)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entries are invisible, not fatal
			}
			if d.IsDir() {
				if path != root && !p.pol.EvaluateDir(path).Index() {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			state[path] = fileSnapshot{
				modTime: info.ModTime(),
				size:    info.Size(),
			}
			return nil
		})
	}
	return state
}

// detectChanges diffs the current state against the previous pass and
// emits create/modify/delete events.
func (p *PollingWatcher) detectChanges() {
	current := p.snapshotRoots()

	p.mu.Lock()
	defer p.mu.Unlock()

	for path, snap := range current {
		prev, existed := p.fileState[path]
		switch {
		case !existed:
			p.emitEvent(FileEvent{
				Path:      path,
				Operation: OpCreate,
				ModTime:   snap.modTime,
				Timestamp: time.Now(),
			})
		case prev.modTime != snap.modTime || prev.size != snap.size:
			p.emitEvent(FileEvent{
				Path:      path,
				Operation: OpModify,
				ModTime:   snap.modTime,
				Timestamp: time.Now(),
			})
		}
	}

	for path, snap := range p.fileState {
		if _, exists := current[path]; !exists {
			p.emitEvent(FileEvent{
				Path:      path,
				Operation: OpDelete,
				IsDir:     snap.isDir,
				Timestamp: time.Now(),
			})
		}
	}

	p.fileState = current
}

// emitEvent sends an event without blocking. Must hold p.mu.
func (p *PollingWatcher) emitEvent(event FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- event:
	default:
		slog.Warn("polling_watcher_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()))
	}
}
