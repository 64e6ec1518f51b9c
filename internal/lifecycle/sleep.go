// Package lifecycle ties the daemon to its host machine's lifecycle:
// system sleep/wake detection and POSIX signal wiring.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultTickInterval is how often the sleep watcher samples the
	// wall clock.
	DefaultTickInterval = 10 * time.Second

	// DefaultGapThreshold is the wall-clock jump that counts as a
	// sleep/wake cycle rather than scheduler jitter.
	DefaultGapThreshold = 30 * time.Second
)

// SleepWatcher detects system sleep by watching for wall-clock jumps:
// a ticker that fires far later than scheduled means the process (and
// almost certainly the machine) was suspended in between. This needs
// no platform APIs and works identically on macOS and Linux.
type SleepWatcher struct {
	tick      time.Duration
	threshold time.Duration
	onSleep   func()
	onWake    func(gap time.Duration)
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// SleepWatcherOptions configures a SleepWatcher.
type SleepWatcherOptions struct {
	// TickInterval is the sampling cadence (0 = default).
	TickInterval time.Duration

	// GapThreshold is the minimum wall-clock jump treated as a sleep
	// cycle (0 = default). Must exceed TickInterval to be meaningful.
	GapThreshold time.Duration

	// OnSleep fires once per detected cycle, before OnWake. The
	// system already slept by the time we can observe it, so this is
	// the point to pause new work and discard stale state.
	OnSleep func()

	// OnWake fires after OnSleep with the observed gap length.
	OnWake func(gap time.Duration)
}

// NewSleepWatcher creates a sleep watcher. Callbacks may be nil.
func NewSleepWatcher(opts SleepWatcherOptions) *SleepWatcher {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.GapThreshold <= 0 {
		opts.GapThreshold = DefaultGapThreshold
	}
	return &SleepWatcher{
		tick:      opts.TickInterval,
		threshold: opts.GapThreshold,
		onSleep:   opts.OnSleep,
		onWake:    opts.OnWake,
		now:       time.Now,
	}
}

// Start launches the watcher goroutine. Idempotent while running.
func (w *SleepWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})

	w.wg.Add(1)
	go w.watch(ctx, w.stopCh)
}

// Stop halts the watcher and waits for its goroutine.
func (w *SleepWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *SleepWatcher) watch(ctx context.Context, stopCh chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	last := w.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			now := w.now()
			gap := now.Sub(last) - w.tick
			last = now
			if gap < w.threshold {
				continue
			}
			slog.Info("system_sleep_detected",
				slog.Duration("gap", gap))
			if w.onSleep != nil {
				w.onSleep()
			}
			if w.onWake != nil {
				w.onWake(gap)
			}
		}
	}
}
