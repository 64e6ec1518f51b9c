package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerStartsScanning(t *testing.T) {
	stats := NewProgressTracker().Stats()

	assert.Equal(t, StageScanning, stats.Stage)
	assert.Zero(t, stats.Current)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.ErrorCount)
}

func TestTrackerStageTransitions(t *testing.T) {
	tracker := NewProgressTracker()

	tracker.SetStage(StageScanning, 100)
	tracker.Update(100, "docs/last.md")

	tracker.SetStage(StageExtracting, 500)
	stats := tracker.Stats()
	assert.Equal(t, StageExtracting, stats.Stage)
	assert.Equal(t, 500, stats.Total)
	assert.Zero(t, stats.Current, "counter resets on stage change")
	assert.Empty(t, stats.CurrentFile)

	tracker.SetStage(StageEmbedding, 500)
	tracker.Update(250, "docs/report.pdf")
	stats = tracker.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.Equal(t, "docs/report.pdf", stats.CurrentFile)

	tracker.SetStage(StageComplete, 0)
	assert.Equal(t, StageComplete, tracker.Stats().Stage)
}

func TestTrackerUpdateKeepsLastFile(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageExtracting, 10)

	tracker.Update(3, "notes/meeting.txt")
	tracker.Update(4, "")

	stats := tracker.Stats()
	assert.Equal(t, 4, stats.Current)
	assert.Equal(t, "notes/meeting.txt", stats.CurrentFile)
}

func TestTrackerFraction(t *testing.T) {
	cases := []struct {
		name    string
		current int
		total   int
		want    float64
	}{
		{"no total", 5, 0, 0},
		{"nothing done", 0, 80, 0},
		{"halfway", 40, 80, 0.5},
		{"done", 80, 80, 1},
		{"overshoot clamps", 120, 80, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tracker := NewProgressTracker()
			tracker.SetStage(StageIndexing, tc.total)
			tracker.Update(tc.current, "")

			assert.InDelta(t, tc.want, tracker.Progress(), 0.001)
		})
	}
}

func TestTrackerErrorsAndWarnings(t *testing.T) {
	tracker := NewProgressTracker()

	tracker.AddError(ErrorEvent{File: "broken.pdf", Err: assert.AnError})
	tracker.AddError(ErrorEvent{File: "odd.docx", Err: assert.AnError, IsWarn: true})
	tracker.AddError(ErrorEvent{File: "corrupt.xlsx", Err: assert.AnError})

	stats := tracker.Stats()
	assert.Equal(t, 2, stats.ErrorCount)
	assert.Equal(t, 1, stats.WarnCount)

	errs := tracker.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "broken.pdf", errs[0].File)

	warns := tracker.Warnings()
	require.Len(t, warns, 1)
	assert.Equal(t, "odd.docx", warns[0].File)

	// Returned slices are copies.
	errs[0].File = "mutated"
	assert.Equal(t, "broken.pdf", tracker.Errors()[0].File)
}

func TestTrackerETAWithoutProgress(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)

	assert.Equal(t, time.Duration(0), tracker.ETA())
}

func TestTrackerETAEstimate(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)

	time.Sleep(40 * time.Millisecond)
	tracker.Update(50, "")

	// Half done in ~40ms leaves roughly 40ms; allow generous slack.
	eta := tracker.ETA()
	assert.Greater(t, eta, time.Duration(0))
	assert.Less(t, eta, time.Second)
}

func TestTrackerETASmoothing(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 1000)

	time.Sleep(20 * time.Millisecond)
	tracker.Update(10, "")

	first := tracker.ETA()
	require.Greater(t, first, time.Duration(0))

	// A big jump in completed items shrinks the raw estimate; the
	// smoothed value moves only part of the way there.
	tracker.Update(900, "")
	second := tracker.ETA()
	assert.Less(t, second, first)
	assert.Greater(t, second, time.Duration(0))
}

func TestTrackerElapsed(t *testing.T) {
	tracker := NewProgressTracker()
	time.Sleep(10 * time.Millisecond)

	assert.GreaterOrEqual(t, tracker.Elapsed(), 10*time.Millisecond)
}

func TestTrackerSparklineAndSpeed(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageEmbedding, 100)

	// Before any samples the chart is blank and speeds are zero.
	assert.NotEmpty(t, tracker.RenderSparkline(20))
	speed := tracker.SpeedStats()
	assert.Zero(t, speed.Current)
	assert.Zero(t, speed.Avg)
	assert.Zero(t, speed.Peak)
}

func TestTrackerConcurrentAccess(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageExtracting, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tracker.Update(n, "docs/file.md")
			tracker.AddError(ErrorEvent{File: "x", Err: assert.AnError, IsWarn: n%2 == 0})
			_ = tracker.Progress()
			_ = tracker.Stats()
			_ = tracker.RenderSparkline(10)
			_ = tracker.SpeedStats()
		}(i)
	}
	wg.Wait()

	stats := tracker.Stats()
	assert.Equal(t, 100, stats.ErrorCount+stats.WarnCount)
}
