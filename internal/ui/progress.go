package ui

import (
	"sync"
	"time"
)

const (
	// etaAlpha is the exponential smoothing weight for new ETA
	// estimates. Batch embedding times vary a lot between batches;
	// without smoothing the countdown jumps around.
	etaAlpha = 0.3

	// speedAlpha smooths the rolling items/sec average.
	speedAlpha = 0.2

	// speedInterval is how often throughput is sampled. Sampling on
	// every Update would mostly measure scheduler noise.
	speedInterval = 500 * time.Millisecond
)

// speedMeter derives items/sec from monotonically increasing progress
// counts and feeds a sparkline. Callers hold the tracker lock.
type speedMeter struct {
	lastCount int
	lastTick  time.Time
	current   float64
	average   float64
	peak      float64
	samples   int
	spark     *Sparkline
}

func newSpeedMeter(now time.Time) *speedMeter {
	return &speedMeter{
		lastTick: now,
		spark:    NewSparkline(60),
	}
}

func (m *speedMeter) reset(now time.Time) {
	m.lastCount = 0
	m.lastTick = now
	m.current = 0
	m.average = 0
	m.peak = 0
	m.samples = 0
	m.spark.Clear()
}

func (m *speedMeter) observe(now time.Time, count int) {
	elapsed := now.Sub(m.lastTick)
	if elapsed < speedInterval {
		return
	}

	if delta := count - m.lastCount; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		m.current = speed

		m.samples++
		if m.samples == 1 {
			m.average = speed
		} else {
			m.average = speedAlpha*speed + (1-speedAlpha)*m.average
		}
		if speed > m.peak {
			m.peak = speed
		}
		m.spark.Add(speed)
	}

	m.lastCount = count
	m.lastTick = now
}

func (m *speedMeter) stats() SpeedStats {
	return SpeedStats{Current: m.current, Avg: m.average, Peak: m.peak}
}

// SpeedStats is a snapshot of throughput metrics.
type SpeedStats struct {
	Current float64 // items/sec over the last sample window
	Avg     float64 // smoothed rolling average
	Peak    float64 // highest observed
}

// ProgressStats is a point-in-time snapshot of tracker state.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// ProgressTracker accumulates progress across pipeline stages. All
// methods are safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	startedAt   time.Time
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent
	smoothedETA time.Duration
	speed       *speedMeter
}

// NewProgressTracker returns a tracker starting in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:      StageScanning,
		startedAt:  now,
		stageStart: now,
		speed:      newSpeedMeter(now),
	}
}

// SetStage moves to a new stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = time.Now()
	p.smoothedETA = 0
	p.speed.reset(p.stageStart)
}

// Update records progress within the current stage. An empty file
// keeps the previously shown one.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}
	p.speed.observe(time.Now(), current)
}

// AddError records a failed or partially processed item.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Progress returns stage completion in the range 0 to 1.
func (p *ProgressTracker) Progress() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fractionLocked()
}

func (p *ProgressTracker) fractionLocked() float64 {
	if p.total == 0 {
		return 0
	}
	f := float64(p.current) / float64(p.total)
	if f > 1 {
		return 1
	}
	return f
}

// ETA estimates remaining time for the current stage. It takes the
// write lock because each call advances the smoothing state.
func (p *ProgressTracker) ETA() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remainingLocked()
}

// Elapsed returns time since the tracker was created.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.startedAt)
}

// Stats returns a consistent snapshot of all tracker state.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    p.fractionLocked(),
		ETA:         p.remainingLocked(),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed:       p.speed.stats(),
	}
}

// remainingLocked extrapolates remaining time from stage elapsed time
// and smooths it against the previous estimate.
func (p *ProgressTracker) remainingLocked() time.Duration {
	frac := p.fractionLocked()
	if frac <= 0 || frac >= 1 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	raw := time.Duration(float64(elapsed)/frac) - elapsed
	if raw < 0 {
		return 0
	}

	if p.smoothedETA == 0 {
		p.smoothedETA = raw
		return raw
	}
	p.smoothedETA = time.Duration(etaAlpha*float64(raw) + (1-etaAlpha)*float64(p.smoothedETA))
	return p.smoothedETA
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.errors))
	copy(out, p.errors)
	return out
}

// Warnings returns a copy of the recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ErrorEvent, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// RenderSparkline draws the throughput sparkline at the given width,
// or at full width when width is zero or negative.
func (p *ProgressTracker) RenderSparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if width <= 0 {
		return p.speed.spark.Render()
	}
	return p.speed.spark.RenderWithWidth(width)
}

// SpeedStats returns the current throughput snapshot.
func (p *ProgressTracker) SpeedStats() SpeedStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.speed.stats()
}
