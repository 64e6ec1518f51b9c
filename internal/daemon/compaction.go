package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CompactionConfig tunes background vector-index compaction.
type CompactionConfig struct {
	Enabled bool

	// IdleTimeout is how long the index must go without queries before
	// compaction may start.
	IdleTimeout time.Duration

	// OrphanThreshold is the orphaned/total node ratio above which
	// compaction is worthwhile.
	OrphanThreshold float64

	// MinOrphanCount avoids churning a small index for a handful of
	// orphans.
	MinOrphanCount int

	// Cooldown is the minimum gap between compactions.
	Cooldown time.Duration

	// CheckInterval is the eligibility polling cadence.
	CheckInterval time.Duration
}

// DefaultCompactionConfig returns the standard compaction settings.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Enabled:         true,
		IdleTimeout:     2 * time.Minute,
		OrphanThreshold: 0.20,
		MinOrphanCount:  500,
		Cooldown:        30 * time.Minute,
		CheckInterval:   30 * time.Second,
	}
}

// CompactableIndex is the vector-index surface compaction needs.
// *store.HNSWIndex satisfies it.
type CompactableIndex interface {
	OrphanStats() (live, orphaned int)
	Compact(ctx context.Context) (int, error)
}

// CompactionManager removes lazily deleted orphans from the vector
// index in the background. Re-ingesting a document replaces its
// vectors by orphaning the old graph nodes, so a long-running daemon
// accumulates dead nodes that slow every search.
//
// Compaction runs only when all of these hold:
//  1. the index has been idle for IdleTimeout
//  2. the orphan ratio exceeds OrphanThreshold
//  3. at least MinOrphanCount orphans exist
//  4. Cooldown has elapsed since the last compaction
//
// Any query arriving during compaction cancels it; the rebuild is
// retried on a later idle window.
type CompactionManager struct {
	config CompactionConfig
	index  CompactableIndex

	mu           sync.Mutex
	lastActivity time.Time
	lastCompact  time.Time
	compacting   bool
	cancelRun    context.CancelFunc

	now func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCompactionManager creates a manager for the given index.
func NewCompactionManager(index CompactableIndex, cfg CompactionConfig) *CompactionManager {
	return &CompactionManager{
		config: cfg,
		index:  index,
		now:    time.Now,
	}
}

// Start begins the eligibility check loop.
func (m *CompactionManager) Start(ctx context.Context) {
	if !m.config.Enabled {
		return
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Lock()
	m.lastActivity = m.now()
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()

	slog.Debug("compaction_manager_started",
		slog.Float64("orphan_threshold", m.config.OrphanThreshold),
		slog.Int("min_orphan_count", m.config.MinOrphanCount))
}

// Stop shuts the manager down, cancelling any in-progress compaction.
func (m *CompactionManager) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		m.wg.Wait()
	})
}

// NoteActivity records a query against the index. It resets the idle
// clock and interrupts an in-progress compaction so searches never
// wait on a rebuild.
func (m *CompactionManager) NoteActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = m.now()
	if m.compacting && m.cancelRun != nil {
		m.cancelRun()
	}
}

func (m *CompactionManager) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.eligible() {
				m.run()
			}
		}
	}
}

// eligible checks every compaction precondition under the lock.
func (m *CompactionManager) eligible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.compacting {
		return false
	}
	now := m.now()
	if now.Sub(m.lastActivity) < m.config.IdleTimeout {
		return false
	}
	if !m.lastCompact.IsZero() && now.Sub(m.lastCompact) < m.config.Cooldown {
		return false
	}

	live, orphaned := m.index.OrphanStats()
	if orphaned < m.config.MinOrphanCount {
		return false
	}
	total := live + orphaned
	if total == 0 {
		return false
	}
	return float64(orphaned)/float64(total) > m.config.OrphanThreshold
}

// run performs one compaction with a cancellable context.
func (m *CompactionManager) run() {
	runCtx, cancel := context.WithCancel(m.ctx)

	m.mu.Lock()
	m.compacting = true
	m.cancelRun = cancel
	m.mu.Unlock()

	defer func() {
		cancel()
		m.mu.Lock()
		m.compacting = false
		m.cancelRun = nil
		m.mu.Unlock()
	}()

	start := m.now()
	removed, err := m.index.Compact(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			slog.Debug("compaction_interrupted")
		} else {
			slog.Warn("compaction_failed", slog.String("error", err.Error()))
		}
		return
	}

	m.mu.Lock()
	m.lastCompact = m.now()
	m.mu.Unlock()

	slog.Info("compaction_complete",
		slog.Int("orphans_removed", removed),
		slog.Duration("elapsed", m.now().Sub(start)))
}
