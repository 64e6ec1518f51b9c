package retrieval

import (
	"context"
	"sort"
	"time"
)

// SourceCounters accumulates per-source-type ingestion outcomes for
// the lifetime of the process.
type SourceCounters struct {
	EventsProcessed int `json:"eventsProcessed"`
	Succeeded       int `json:"succeeded"`
	Unsupported     int `json:"unsupported"`
	Failed          int `json:"failed"`
	Partial         int `json:"partial"`
	SkippedCurrent  int `json:"skippedCurrent"`
	Deleted         int `json:"deleted"`
}

// ProgressRow describes one source's backfill position.
type ProgressRow struct {
	SourceType      string  `json:"sourceType"`
	ItemsProcessed  int     `json:"itemsProcessed"`
	EstimatedTotal  int     `json:"estimatedTotal"`
	PercentComplete float64 `json:"percentComplete"`
	Active          bool    `json:"active"`
}

// progressState is the mutable backing for a ProgressRow.
type progressState struct {
	processed int
	total     int
	active    bool
}

// StateSnapshot is a point-in-time view of the service for status
// surfaces. All fields are copies; it holds no references into the
// service.
type StateSnapshot struct {
	Running          bool                      `json:"running"`
	Paused           bool                      `json:"paused"`
	CurrentOperation string                    `json:"currentOperation,omitempty"`
	QueueDepth       int                       `json:"queueDepth"`
	InFlightCount    int                       `json:"inFlightCount"`
	Sources          map[string]SourceCounters `json:"sources"`
	Progress         []ProgressRow             `json:"progress"`
	TotalDocuments   int                       `json:"totalDocuments"`
}

// IndexStats reports corpus-level totals.
type IndexStats struct {
	TotalDocumentCount int `json:"totalDocumentCount"`
}

// StateSnapshot reports the service's current state. The document
// count comes from the store; a count error leaves TotalDocuments at
// zero rather than failing the whole snapshot.
func (s *Service) StateSnapshot(ctx context.Context) StateSnapshot {
	s.mu.Lock()
	snap := StateSnapshot{
		Running:          s.running,
		Paused:           s.paused,
		CurrentOperation: s.currentOperation,
		QueueDepth:       len(s.pending),
		InFlightCount:    s.inFlight,
		Sources:          make(map[string]SourceCounters, len(s.counters)),
	}
	for sourceType, c := range s.counters {
		snap.Sources[sourceType] = *c
	}
	for sourceType, p := range s.progress {
		snap.Progress = append(snap.Progress, progressRow(sourceType, p))
	}
	s.mu.Unlock()

	sort.Slice(snap.Progress, func(i, j int) bool {
		return snap.Progress[i].SourceType < snap.Progress[j].SourceType
	})

	if count, err := s.store.DocumentCount(ctx); err == nil {
		snap.TotalDocuments = count
	}
	return snap
}

// progressRow converts mutable progress state into its reported form.
// An idle source with no known total reads as fully complete, so
// status surfaces never show a stuck partial bar between backfills.
func progressRow(sourceType string, p *progressState) ProgressRow {
	row := ProgressRow{
		SourceType:     sourceType,
		ItemsProcessed: p.processed,
		EstimatedTotal: p.total,
		Active:         p.active,
	}
	switch {
	case !p.active && p.total <= p.processed:
		row.PercentComplete = 1.0
	case p.total > 0:
		row.PercentComplete = float64(p.processed) / float64(p.total)
	}
	return row
}

// countersFor returns the mutable counter set for a source type,
// creating it on first use. Callers take s.mu before writing fields.
func (s *Service) countersFor(sourceType string) *SourceCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[sourceType]
	if !ok {
		c = &SourceCounters{}
		s.counters[sourceType] = c
	}
	return c
}

func (s *Service) beginProgress(sourceType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[sourceType] = &progressState{active: true}
}

func (s *Service) advanceProgress(sourceType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.progress[sourceType]; ok {
		p.processed++
	}
}

func (s *Service) finishProgress(sourceType string, estimatedTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[sourceType]
	if !ok {
		return
	}
	p.active = false
	if estimatedTotal > p.total {
		p.total = estimatedTotal
	}
}

// RecordDeletion bumps the per-source deletion counter (watcher remove
// events route through here after RemovePath).
func (s *Service) RecordDeletion(sourceType string, count int) {
	if count <= 0 {
		return
	}
	c := s.countersFor(sourceType)
	s.mu.Lock()
	c.Deleted += count
	s.mu.Unlock()
}

// Uptime-style helper for status surfaces: time since pause began, or
// zero when running.
func (s *Service) PausedFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return 0
	}
	return s.now().Sub(s.pausedAt)
}
