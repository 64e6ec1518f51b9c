package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/search"
)

// maxSnippetRunes bounds snippet length in tool output so a handful of
// verbose documents cannot blow the client's token budget.
const maxSnippetRunes = 280

// FormatSuggestions renders ranked suggestions as markdown.
func FormatSuggestions(query string, suggestions []*search.Suggestion) string {
	if len(suggestions) == 0 {
		return fmt.Sprintf("No suggestions found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Suggestions for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(suggestions))
	if len(suggestions) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, s := range suggestions {
		if s == nil {
			continue
		}
		formatSuggestion(&sb, i+1, s)
	}
	return sb.String()
}

func formatSuggestion(sb *strings.Builder, num int, s *search.Suggestion) {
	title := s.Title
	if title == "" {
		title = s.Path
	}
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n", num, title, s.Score)

	if s.Path != "" && s.Path != title {
		fmt.Fprintf(sb, "`%s`\n", s.Path)
	}
	if reason := matchReason(s); reason != "" {
		fmt.Fprintf(sb, "_%s_\n", reason)
	}
	if s.Snippet != "" {
		fmt.Fprintf(sb, "\n> %s\n", truncateSnippet(s.Snippet))
	}
	sb.WriteString("\n")
}

// matchReason explains which signals surfaced a suggestion.
func matchReason(s *search.Suggestion) string {
	var parts []string
	if s.IsDirectory {
		parts = append(parts, "directory with multiple matching documents")
	}
	if s.LexicalScore > 0 {
		parts = append(parts, "keyword match")
	}
	if s.VectorSimilarity > 0 {
		parts = append(parts, fmt.Sprintf("semantic similarity %.2f", s.VectorSimilarity))
	}
	if s.GraphBoost > 0 {
		parts = append(parts, "related documents nearby")
	}
	return strings.Join(parts, "; ")
}

// truncateSnippet caps a snippet at maxSnippetRunes without splitting
// a rune.
func truncateSnippet(snippet string) string {
	runes := []rune(strings.TrimSpace(snippet))
	if len(runes) <= maxSnippetRunes {
		return string(runes)
	}
	return string(runes[:maxSnippetRunes-3]) + "..."
}

// FormatStateSnapshot renders the service snapshot as markdown.
func FormatStateSnapshot(snap retrieval.StateSnapshot) string {
	var sb strings.Builder
	sb.WriteString("## Retrieval Service State\n\n")

	state := "running"
	if !snap.Running {
		state = "stopped"
	}
	if snap.Paused {
		state = "paused"
	}
	fmt.Fprintf(&sb, "**State:** %s\n", state)
	if snap.CurrentOperation != "" {
		fmt.Fprintf(&sb, "**Current operation:** %s\n", snap.CurrentOperation)
	}
	fmt.Fprintf(&sb, "**Documents:** %d\n", snap.TotalDocuments)
	fmt.Fprintf(&sb, "**Queue depth:** %d (in flight: %d)\n\n", snap.QueueDepth, snap.InFlightCount)

	if len(snap.Progress) > 0 {
		sb.WriteString("| Source | Processed | Total | Complete |\n")
		sb.WriteString("|--------|-----------|-------|----------|\n")
		for _, p := range snap.Progress {
			fmt.Fprintf(&sb, "| %s | %d | %d | %.0f%% |\n",
				p.SourceType, p.ItemsProcessed, p.EstimatedTotal, p.PercentComplete*100)
		}
		sb.WriteString("\n")
	}

	if len(snap.Sources) > 0 {
		names := make([]string, 0, len(snap.Sources))
		for name := range snap.Sources {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("| Source | Events | Succeeded | Partial | Unsupported | Failed | Skipped |\n")
		sb.WriteString("|--------|--------|-----------|---------|-------------|--------|---------|\n")
		for _, name := range names {
			c := snap.Sources[name]
			fmt.Fprintf(&sb, "| %s | %d | %d | %d | %d | %d | %d |\n",
				name, c.EventsProcessed, c.Succeeded, c.Partial,
				c.Unsupported, c.Failed, c.SkippedCurrent)
		}
	}

	return sb.String()
}

// FormatBenchReport renders the per-query latency report as markdown,
// slowest query first.
func FormatBenchReport(report map[string]float64) string {
	var sb strings.Builder
	sb.WriteString("## Benchmark Report\n\n")

	queries := make([]string, 0, len(report))
	for q := range report {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		if report[queries[i]] != report[queries[j]] {
			return report[queries[i]] > report[queries[j]]
		}
		return queries[i] < queries[j]
	})

	for _, q := range queries {
		fmt.Fprintf(&sb, "- **%s:** %.2f ms\n", q, report[q])
	}
	return sb.String()
}

// clampLimit bounds a requested limit, substituting the default for
// unset values.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

// ToSuggestionOutput converts an engine suggestion to the tool output
// schema.
func ToSuggestionOutput(s *search.Suggestion) SuggestionOutput {
	if s == nil {
		return SuggestionOutput{}
	}
	return SuggestionOutput{
		DocumentID:       s.DocumentID,
		Title:            s.Title,
		Path:             s.Path,
		Score:            s.Score,
		Reason:           string(s.Reason),
		LexicalScore:     s.LexicalScore,
		VectorSimilarity: s.VectorSimilarity,
		GraphBoost:       s.GraphBoost,
		Snippet:          truncateSnippet(s.Snippet),
		IsDirectory:      s.IsDirectory,
	}
}
