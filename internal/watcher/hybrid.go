package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lanternsearch/lantern/internal/policy"
)

// HybridWatcher watches the policy roots with fsnotify when available
// and falls back to the polling scanner otherwise. Output events are
// debounced batches, already filtered through the indexing policy.
type HybridWatcher struct {
	fsWatcher      *fsnotify.Watcher
	pollWatcher    *PollingWatcher
	useFsnotify    bool
	debouncer      *Debouncer
	pol            *policy.Policy
	roots          []string
	events         chan []FileEvent
	errors         chan error
	stopCh         chan struct{}
	opts           Options
	mu             sync.RWMutex
	stopped        bool
	droppedBatches atomic.Uint64
}

// NewHybridWatcher creates a watcher over opts.Policy's roots.
// fsnotify is preferred; a setup failure selects polling instead of
// erroring, so the daemon still sees changes on filesystems fsnotify
// cannot serve.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	if opts.Policy == nil {
		return nil, fmt.Errorf("watcher: policy is required")
	}
	opts = opts.WithDefaults()

	h := &HybridWatcher{
		debouncer: NewDebouncer(opts.DebounceWindow),
		pol:       opts.Policy,
		roots:     append([]string(nil), opts.Policy.AllowlistRoots...),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		opts:      opts,
	}

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		h.fsWatcher = fsw
		h.useFsnotify = true
	} else {
		slog.Warn("fsnotify_unavailable_using_polling",
			slog.String("error", err.Error()))
		h.pollWatcher = NewPollingWatcher(opts.PollInterval, opts.Policy)
	}
	return h, nil
}

// Start begins watching. Blocks until the context is cancelled or
// Stop is called.
func (h *HybridWatcher) Start(ctx context.Context) error {
	go h.forwardDebouncedEvents(ctx)

	if h.useFsnotify {
		return h.startFsnotify(ctx)
	}
	return h.startPolling(ctx)
}

func (h *HybridWatcher) startFsnotify(ctx context.Context) error {
	for _, root := range h.roots {
		if err := h.addRecursive(root); err != nil {
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case event, ok := <-h.fsWatcher.Events:
			if !ok {
				return nil
			}
			h.handleFsnotifyEvent(event)
		case err, ok := <-h.fsWatcher.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) startPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stopCh:
				return
			case event, ok := <-h.pollWatcher.Events():
				if !ok {
					return
				}
				// The polling scanner already pruned excluded dirs;
				// file-level policy still applies.
				if event.Operation != OpDelete && !h.allowsFile(event.Path, event.ModTime) {
					continue
				}
				h.debouncer.Add(event)
			case err, ok := <-h.pollWatcher.Errors():
				if !ok {
					return
				}
				h.emitError(err)
			}
		}
	}()

	return h.pollWatcher.Start(ctx)
}

// handleFsnotifyEvent converts, filters, and debounces one raw event.
func (h *HybridWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	path := event.Name

	isDir := false
	var modTime time.Time
	if info, err := os.Stat(path); err == nil {
		isDir = info.IsDir()
		modTime = info.ModTime()
	}

	if isDir && !h.pol.EvaluateDir(path).Index() {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		// New directories join the watch set so their contents are
		// seen too.
		if isDir {
			_ = h.addRecursive(path)
			return
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		// Chmod and unknown ops carry no content change.
		return
	}

	// Deletes cannot be stat'ed; filter them on path alone so removals
	// of previously indexed files still propagate.
	if op != OpDelete && op != OpRename && !h.allowsFile(path, modTime) {
		return
	}

	h.debouncer.Add(FileEvent{
		Path:      path,
		Operation: op,
		IsDir:     isDir,
		ModTime:   modTime,
		Timestamp: time.Now(),
	})
}

// allowsFile applies file-level policy; deferred (oversized) files are
// held back the same as skipped ones.
func (h *HybridWatcher) allowsFile(path string, modTime time.Time) bool {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return h.pol.Evaluate(path, size, modTime).Index()
}

func (h *HybridWatcher) forwardDebouncedEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case events, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			if len(events) > 0 {
				h.emitEvents(events)
			}
		}
	}
}

// addRecursive registers root and every non-excluded directory under
// it with fsnotify.
func (h *HybridWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && !h.pol.EvaluateDir(path).Index() {
			return filepath.SkipDir
		}
		return h.fsWatcher.Add(path)
	})
}

// emitEvents sends a batch without blocking; a full buffer drops the
// batch and counts it.
func (h *HybridWatcher) emitEvents(events []FileEvent) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case h.events <- events:
	default:
		count := h.droppedBatches.Add(1)
		slog.Warn("watcher_buffer_full_dropping_batch",
			slog.Int("batch_size", len(events)),
			slog.Uint64("total_dropped_batches", count))
	}
}

// DroppedBatches returns how many event batches were dropped due to
// buffer overflow.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	stopped := h.stopped
	h.mu.RUnlock()
	if stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop stops the watcher and releases resources. Safe to call more
// than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)

	h.debouncer.Stop()
	if h.fsWatcher != nil {
		_ = h.fsWatcher.Close()
	}
	if h.pollWatcher != nil {
		_ = h.pollWatcher.Stop()
	}

	close(h.events)
	close(h.errors)
	return nil
}

// Events returns the channel of debounced, policy-filtered event
// batches.
func (h *HybridWatcher) Events() <-chan []FileEvent {
	return h.events
}

// Errors returns the channel of non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error {
	return h.errors
}

// IsHealthy reports whether the watcher is still running.
func (h *HybridWatcher) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.stopped
}

// WatcherType reports the active mechanism, "fsnotify" or "polling".
func (h *HybridWatcher) WatcherType() string {
	if h.useFsnotify {
		return "fsnotify"
	}
	return "polling"
}
