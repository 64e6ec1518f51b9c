// Package retrieval hosts the coordinator actor that owns the
// ingestion pipeline: scan, extract, chunk, embed, store. All mutable
// state lives behind the service mutex; work is driven by a single
// loop goroutine consuming a bounded pending queue.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lanternsearch/lantern/internal/chunk"
	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/embed"
	"github.com/lanternsearch/lantern/internal/extract"
	"github.com/lanternsearch/lantern/internal/policy"
	"github.com/lanternsearch/lantern/internal/preflight"
	"github.com/lanternsearch/lantern/internal/search"
	"github.com/lanternsearch/lantern/internal/store"
)

const (
	// DefaultQueueCapacity bounds the pending ingestion queue.
	DefaultQueueCapacity = 1024

	// DefaultSnapshotInterval is how often the pending queue is
	// persisted for crash recovery.
	DefaultSnapshotInterval = 30 * time.Second

	// DefaultHotPartitionMaxAge separates hot from cold documents by
	// modification age.
	DefaultHotPartitionMaxAge = 180 * 24 * time.Hour
)

// Config configures the retrieval service.
type Config struct {
	// Policy governs what the connector crawls and the per-file
	// extraction budget.
	Policy *policy.Policy

	// DataDir is the daemon state directory (preflight marker, lock
	// files).
	DataDir string

	// QueueCapacity bounds the pending event queue (0 = default).
	QueueCapacity int

	// SnapshotInterval is the crash-recovery snapshot cadence
	// (0 = default).
	SnapshotInterval time.Duration

	// HotPartitionMaxAge is the modification-age threshold for the hot
	// partition (0 = default).
	HotPartitionMaxAge time.Duration

	// SkipPreflight disables the startup environment checks (tests).
	SkipPreflight bool
}

func (c Config) queueCapacity() int {
	if c.QueueCapacity > 0 {
		return c.QueueCapacity
	}
	return DefaultQueueCapacity
}

func (c Config) snapshotInterval() time.Duration {
	if c.SnapshotInterval > 0 {
		return c.SnapshotInterval
	}
	return DefaultSnapshotInterval
}

func (c Config) hotPartitionMaxAge() time.Duration {
	if c.HotPartitionMaxAge > 0 {
		return c.HotPartitionMaxAge
	}
	return DefaultHotPartitionMaxAge
}

// Service is the top-level retrieval coordinator.
type Service struct {
	cfg       Config
	store     *store.Store
	connector *connector.FileConnector
	extractor *extract.Service
	chunker   *chunk.TextChunker
	embedder  embed.Embedder
	engine    *search.Engine
	now       func() time.Time

	mu               sync.Mutex
	running          bool
	paused           bool
	pausedAt         time.Time
	currentOperation string
	inFlight         int
	resumeToken      string
	counters         map[string]*SourceCounters
	progress         map[string]*progressState
	pending          []store.IngestionEvent

	wake   chan struct{}
	stopCh chan struct{}
	loopWG sync.WaitGroup
	cancel context.CancelFunc
}

// New wires a service over its pipeline stages. The engine, store,
// connector, extractor, and embedder are constructed by the caller so
// tests can substitute any stage.
func New(cfg Config, st *store.Store, conn *connector.FileConnector, ext *extract.Service, emb embed.Embedder, eng *search.Engine) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("retrieval: store is required")
	}
	if conn == nil {
		return nil, fmt.Errorf("retrieval: connector is required")
	}
	if ext == nil {
		return nil, fmt.Errorf("retrieval: extractor is required")
	}
	if emb == nil {
		return nil, fmt.Errorf("retrieval: embedder is required")
	}
	if eng == nil {
		return nil, fmt.Errorf("retrieval: search engine is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("retrieval: policy is required")
	}

	return &Service{
		cfg:       cfg,
		store:     st,
		connector: conn,
		extractor: ext,
		chunker:   chunk.NewTextChunker(),
		embedder:  emb,
		engine:    eng,
		now:       time.Now,
		counters:  make(map[string]*SourceCounters),
		progress:  make(map[string]*progressState),
		wake:      make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start runs preflight checks, restores the crash-recovery queue
// snapshot, and launches the worker loop. Idempotent while running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if !s.cfg.SkipPreflight {
		if err := s.runPreflight(ctx); err != nil {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return err
		}
	}

	// Re-enqueue whatever was pending when the last process died.
	recovered, err := s.store.LoadLatestQueueSnapshot(ctx)
	if err != nil {
		slog.Warn("queue_snapshot_load_failed", slog.String("error", err.Error()))
	} else if len(recovered) > 0 {
		slog.Info("queue_snapshot_recovered", slog.Int("items", len(recovered)))
		s.enqueue(recovered)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.loopWG.Add(2)
	go s.loop(loopCtx)
	go s.snapshotLoop(loopCtx)

	slog.Info("retrieval_service_started",
		slog.Int("queue_capacity", s.cfg.queueCapacity()))
	return nil
}

// Stop drains the loop, persists the pending queue, and releases the
// worker goroutines. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	close(s.stopCh)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.loopWG.Wait()

	// Final snapshot so a restart resumes where we stopped.
	s.saveSnapshot(context.Background())

	slog.Info("retrieval_service_stopped")
}

// runPreflight verifies the environment before ingestion starts.
// Warnings log; critical failures abort the start. A recent passing
// run is remembered on disk so restarts skip the checks.
func (s *Service) runPreflight(ctx context.Context) error {
	if !preflight.NeedsCheck(s.cfg.DataDir) {
		return nil
	}

	checker := preflight.New()
	results := checker.RunAll(ctx, s.cfg.DataDir)
	for _, r := range results {
		if r.Status == preflight.StatusPass {
			continue
		}
		slog.Warn("preflight_check",
			slog.String("name", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("retrieval: preflight checks failed")
	}
	if err := preflight.MarkPassed(s.cfg.DataDir); err != nil {
		slog.Warn("preflight_marker_write_failed", slog.String("error", err.Error()))
	}
	return nil
}

// enqueue appends events to the bounded pending queue, dropping the
// oldest entries on overflow, and wakes the loop.
func (s *Service) enqueue(events []store.IngestionEvent) {
	if len(events) == 0 {
		return
	}
	capacity := s.cfg.queueCapacity()

	s.mu.Lock()
	s.pending = append(s.pending, events...)
	if overflow := len(s.pending) - capacity; overflow > 0 {
		slog.Warn("ingestion_queue_overflow", slog.Int("dropped", overflow))
		s.pending = s.pending[overflow:]
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dequeue pops the oldest pending event. ok is false when the queue is
// empty or the service is paused.
func (s *Service) dequeue() (store.IngestionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || len(s.pending) == 0 {
		return store.IngestionEvent{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	s.inFlight++
	return ev, true
}

// loop is the single consumer of the pending queue.
func (s *Service) loop(ctx context.Context) {
	defer s.loopWG.Done()
	for {
		ev, ok := s.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.wake:
				continue
			}
		}

		s.processEvent(ctx, ev)

		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}
}

// snapshotLoop persists the pending queue periodically so a crash
// loses at most one interval of queue state.
func (s *Service) snapshotLoop(ctx context.Context) {
	defer s.loopWG.Done()
	ticker := time.NewTicker(s.cfg.snapshotInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.saveSnapshot(ctx)
		}
	}
}

func (s *Service) saveSnapshot(ctx context.Context) {
	s.mu.Lock()
	items := make([]store.IngestionEvent, len(s.pending))
	copy(items, s.pending)
	s.mu.Unlock()

	if err := s.store.SaveQueueSnapshot(ctx, items); err != nil {
		slog.Warn("queue_snapshot_save_failed", slog.String("error", err.Error()))
	}
}

// PauseForSystemSleep stops initiating new ingestion work. Queued work
// is kept; in-flight work finishes.
func (s *Service) PauseForSystemSleep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}
	s.paused = true
	s.pausedAt = s.now()
	slog.Info("retrieval_paused_for_sleep", slog.Int("queued", len(s.pending)))
}

// ResumeAfterSystemWake resumes the queue and reconciles filesystem
// changes missed during the pause window: a bounded incremental scan
// re-enqueues files modified since the pause began.
func (s *Service) ResumeAfterSystemWake(ctx context.Context) {
	s.mu.Lock()
	if !s.paused {
		s.mu.Unlock()
		return
	}
	s.paused = false
	pausedAt := s.pausedAt
	s.mu.Unlock()

	slog.Info("retrieval_resumed_after_wake",
		slog.Time("paused_at", pausedAt))

	// Wake the loop for the retained queue first, then reconcile.
	select {
	case s.wake <- struct{}{}:
	default:
	}

	go s.reconcileSince(ctx, pausedAt)
}

// reconcileSince rescans the roots and re-enqueues files whose mtime
// is at or after the cutoff. The current-attempt check downstream makes
// over-enqueueing harmless.
func (s *Service) reconcileSince(ctx context.Context, cutoff time.Time) {
	s.setOperation("reconciling missed changes")
	defer s.setOperation("")

	var changed []store.IngestionEvent
	_, err := s.connector.RunBackfill(ctx, "", connector.ModeFull, s.cfg.Policy, 0,
		func(_ context.Context, events []store.IngestionEvent, _ connector.ScanBatchStats) error {
			for _, ev := range events {
				if !ev.OccurredAt.Before(cutoff) {
					changed = append(changed, ev)
				}
			}
			return nil
		})
	if err != nil {
		slog.Warn("wake_reconcile_failed", slog.String("error", err.Error()))
		return
	}
	if len(changed) > 0 {
		slog.Info("wake_reconcile_enqueued", slog.Int("items", len(changed)))
		s.enqueue(changed)
	}
}

// Suggest delegates to the hybrid search engine.
func (s *Service) Suggest(ctx context.Context, req search.Request) (*search.Response, error) {
	return s.engine.Suggest(ctx, req)
}

// IndexStats reports corpus-level totals.
func (s *Service) IndexStats(ctx context.Context) (IndexStats, error) {
	count, err := s.store.DocumentCount(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{TotalDocumentCount: count}, nil
}

// IngestPath enqueues one file for targeted ingestion (watcher create/
// write events).
func (s *Service) IngestPath(path string, modTime time.Time) {
	title := titleFromPath(path)
	s.enqueue([]store.IngestionEvent{{
		SourceType: store.SourceTypeFile,
		SourceID:   path,
		Title:      title,
		Path:       path,
		OccurredAt: modTime,
	}})
}

// RemovePath deletes all documents under the path (watcher remove
// events).
func (s *Service) RemovePath(ctx context.Context, path string) (int, error) {
	return s.store.DeleteDocumentsForPath(ctx, store.SourceTypeFile, path)
}

// PurgeExtensions deletes every file-sourced document whose path ends
// in one of the extensions and clears their ingestion attempts, so the
// next backfill reconsiders those files from scratch.
func (s *Service) PurgeExtensions(ctx context.Context, extensions []string) (int, error) {
	s.setOperation("purging extensions")
	defer s.setOperation("")

	removed, err := s.store.PurgeFileDocumentsForExtensions(ctx, extensions)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.RecordDeletion(store.SourceTypeFile, removed)
		slog.Info("purged_documents",
			slog.Int("removed", removed),
			slog.String("extensions", strings.Join(extensions, ",")))
	}
	return removed, nil
}

func (s *Service) setOperation(op string) {
	s.mu.Lock()
	s.currentOperation = op
	s.mu.Unlock()
}
