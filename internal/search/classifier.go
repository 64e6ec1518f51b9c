package search

import (
	"context"
	"regexp"
	"strings"
)

// Classification patterns, compiled at package init.
var (
	// Quoted exact phrases: "..." or '...'
	quotedPattern = regexp.MustCompile(`^["'].*["']$`)

	// File names and paths with a document extension.
	filePathPattern = regexp.MustCompile(`(?i)^[\w\-\./\\ ]+\.(pdf|docx?|pptx?|xlsx?|md|markdown|txt|rtf|csv|json|log|png|jpe?g|tiff?)$`)

	// Identifier-shaped tokens (version tags, ticket ids, snake/camel
	// case) that want exact matching.
	identifierPattern = regexp.MustCompile(`^([A-Za-z]+[-_][A-Za-z0-9_-]+|[a-z]+([A-Z][a-z0-9]*)+|[A-Z]{2,}-\d+|v\d+(\.\d+)*)$`)

	// Natural language starters (questions, commands).
	naturalLanguagePattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|who|can|does|did|is|are|should|explain|describe|show|find|list|notes?|about)\s`)
)

// PatternClassifier labels queries with compiled regex heuristics.
// Deterministic and allocation-light; suitable for the typing-mode hot
// path.
type PatternClassifier struct{}

// NewPatternClassifier creates a pattern-based classifier.
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{}
}

// Classify labels the query. Never returns an error.
func (p *PatternClassifier) Classify(_ context.Context, query string) (QueryType, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryTypeMixed, nil
	}
	if p.isLexical(query) {
		return QueryTypeLexical, nil
	}
	if naturalLanguagePattern.MatchString(query) {
		return QueryTypeSemantic, nil
	}
	// Multi-word queries that look like prose lean semantic.
	if len(strings.Fields(query)) >= 4 {
		return QueryTypeSemantic, nil
	}
	return QueryTypeMixed, nil
}

func (p *PatternClassifier) isLexical(query string) bool {
	if quotedPattern.MatchString(query) {
		return true
	}
	if filePathPattern.MatchString(query) {
		return true
	}
	if !strings.Contains(query, " ") && identifierPattern.MatchString(query) {
		return true
	}
	return false
}

var _ Classifier = (*PatternClassifier)(nil)
