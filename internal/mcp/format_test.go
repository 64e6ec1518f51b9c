package mcp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/search"
)

func TestFormatSuggestionsEmpty(t *testing.T) {
	out := FormatSuggestions("quarterly report", nil)
	assert.Equal(t, `No suggestions found for "quarterly report"`, out)
}

func TestFormatSuggestions(t *testing.T) {
	suggestions := []*search.Suggestion{
		{
			DocumentID:       "doc-1",
			Title:            "Quarterly Report",
			Path:             "/home/u/Documents/q3-report.md",
			Score:            0.92,
			LexicalScore:     0.8,
			VectorSimilarity: 0.71,
			Snippet:          "Revenue grew 14% quarter over quarter.",
		},
		nil,
		{
			DocumentID:  "doc-2",
			Path:        "/home/u/Documents/reports",
			Score:       0.61,
			GraphBoost:  0.1,
			IsDirectory: true,
		},
	}

	out := FormatSuggestions("quarterly report", suggestions)

	assert.Contains(t, out, `## Suggestions for "quarterly report"`)
	assert.Contains(t, out, "Found 3 results")
	assert.Contains(t, out, "### 1. Quarterly Report (score: 0.92)")
	assert.Contains(t, out, "`/home/u/Documents/q3-report.md`")
	assert.Contains(t, out, "keyword match")
	assert.Contains(t, out, "semantic similarity 0.71")
	assert.Contains(t, out, "> Revenue grew 14%")

	// Nil entries are skipped, so the directory entry keeps its rank.
	assert.Contains(t, out, "### 3. /home/u/Documents/reports (score: 0.61)")
	assert.Contains(t, out, "directory with multiple matching documents")
	assert.Contains(t, out, "related documents nearby")
}

func TestFormatSuggestionsSingular(t *testing.T) {
	out := FormatSuggestions("q", []*search.Suggestion{{DocumentID: "d", Title: "T", Score: 1}})
	assert.Contains(t, out, "Found 1 result\n")
	assert.NotContains(t, out, "Found 1 results")
}

func TestTruncateSnippet(t *testing.T) {
	assert.Equal(t, "short", truncateSnippet("  short  "))

	long := strings.Repeat("é", maxSnippetRunes+50)
	got := truncateSnippet(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), maxSnippetRunes)

	exact := strings.Repeat("x", maxSnippetRunes)
	assert.Equal(t, exact, truncateSnippet(exact))
}

func TestFormatStateSnapshot(t *testing.T) {
	snap := retrieval.StateSnapshot{
		Running:          true,
		CurrentOperation: "backfill",
		QueueDepth:       3,
		InFlightCount:    2,
		TotalDocuments:   120,
		Sources: map[string]retrieval.SourceCounters{
			"file": {EventsProcessed: 10, Succeeded: 8, Failed: 1, SkippedCurrent: 1},
		},
		Progress: []retrieval.ProgressRow{
			{SourceType: "file", ItemsProcessed: 50, EstimatedTotal: 100, PercentComplete: 0.5},
		},
	}

	out := FormatStateSnapshot(snap)
	assert.Contains(t, out, "**State:** running")
	assert.Contains(t, out, "**Current operation:** backfill")
	assert.Contains(t, out, "**Documents:** 120")
	assert.Contains(t, out, "**Queue depth:** 3 (in flight: 2)")
	assert.Contains(t, out, "| file | 50 | 100 | 50% |")
	assert.Contains(t, out, "| file | 10 | 8 | 0 | 0 | 1 | 1 |")
}

func TestFormatStateSnapshotStates(t *testing.T) {
	assert.Contains(t, FormatStateSnapshot(retrieval.StateSnapshot{}), "**State:** stopped")
	assert.Contains(t,
		FormatStateSnapshot(retrieval.StateSnapshot{Running: true, Paused: true}),
		"**State:** paused")
}

func TestFormatBenchReport(t *testing.T) {
	out := FormatBenchReport(map[string]float64{
		"meeting notes":    41.5,
		"budget":           12.25,
		"quarterly report": 12.25,
	})

	// Slowest query first; equal latencies tie-break by query text.
	notes := strings.Index(out, "meeting notes")
	budget := strings.Index(out, "budget")
	quarterly := strings.Index(out, "quarterly report")
	require.True(t, notes > 0 && budget > 0 && quarterly > 0)
	assert.Less(t, notes, budget)
	assert.Less(t, budget, quarterly)

	assert.Contains(t, out, "- **budget:** 12.25 ms")
	assert.Contains(t, out, "- **meeting notes:** 41.50 ms")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-5, 10, 1, 50))
	assert.Equal(t, 25, clampLimit(25, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(200, 10, 1, 50))
}

func TestToSuggestionOutput(t *testing.T) {
	assert.Equal(t, SuggestionOutput{}, ToSuggestionOutput(nil))

	got := ToSuggestionOutput(&search.Suggestion{
		DocumentID:       "doc-9",
		Title:            "Notes",
		Path:             "/docs/notes.md",
		Reason:           search.ReasonSemantic,
		Score:            0.8,
		VectorSimilarity: 0.75,
		Snippet:          "meeting notes",
	})
	assert.Equal(t, "doc-9", got.DocumentID)
	assert.Equal(t, "semantic", got.Reason)
	assert.Equal(t, 0.75, got.VectorSimilarity)
	assert.Equal(t, "meeting notes", got.Snippet)
}
