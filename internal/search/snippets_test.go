package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLexicalSnippetWindowsAroundMatch(t *testing.T) {
	body := strings.Repeat("filler words before the match ", 20) +
		"the quarterly budget review happens in march " +
		strings.Repeat("filler words after the match ", 20)

	s := lexicalSnippet(body, []string{"budget"})
	assert.Contains(t, s, "budget")
	assert.True(t, strings.HasPrefix(s, "…"), "snippet from mid-body is marked truncated")
	assert.True(t, strings.HasSuffix(s, "…"))
	assert.LessOrEqual(t, len(s), snippetWindow+8)
}

func TestLexicalSnippetNoMatch(t *testing.T) {
	assert.Empty(t, lexicalSnippet("completely unrelated text", []string{"budget"}))
	assert.Empty(t, lexicalSnippet("", []string{"budget"}))
	assert.Empty(t, lexicalSnippet("some body", nil))
}

func TestLexicalSnippetMatchAtStart(t *testing.T) {
	s := lexicalSnippet("budget numbers for the quarter", []string{"budget"})
	assert.Equal(t, "budget numbers for the quarter", s)
}

func TestBuildSnippetVectorEvidenceUsesChunk(t *testing.T) {
	c := &candidate{
		title:     "Holiday Itinerary",
		fromVec:   true,
		bestChunk: "day three: museum visit and dinner reservation",
	}
	s := buildSnippet(c, "full body text here", "vacation plans")
	assert.Equal(t, "day three: museum visit and dinner reservation", s)
}

func TestBuildSnippetTitleOverlapPrefersBody(t *testing.T) {
	c := &candidate{
		title:     "Vacation Plans 2026",
		fromVec:   true,
		bestChunk: "chunk text",
	}
	s := buildSnippet(c, "body text of the vacation document", "vacation plans")
	assert.Equal(t, "body text of the vacation document", s)
}

func TestTruncateSnippetCollapsesWhitespace(t *testing.T) {
	s := truncateSnippet("line one\n\nline   two")
	assert.Equal(t, "line one line two", s)

	long := strings.Repeat("word ", 100)
	got := truncateSnippet(long)
	assert.LessOrEqual(t, len(got), snippetWindow+4)
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestTitleOverlapsQuery(t *testing.T) {
	assert.True(t, titleOverlapsQuery("Quarterly Budget", "budget review"))
	assert.False(t, titleOverlapsQuery("Holiday Itinerary", "vacation plans"))
	assert.False(t, titleOverlapsQuery("Anything", "a b"), "single-letter terms are ignored")
}
