package store

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric sequences (underscores kept for the
// initial split).
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// DefaultStopWords are high-frequency English words filtered from both
// indexed text and queries.
var DefaultStopWords = []string{
	"the", "a", "an", "and", "or", "but", "of", "to", "in", "on",
	"for", "with", "at", "by", "from", "as", "is", "are", "was",
	"were", "be", "been", "this", "that", "it", "its",
}

// TokenizeText splits text into lowercase search tokens. It handles
// camelCase, PascalCase, and snake_case (common in filenames and
// technical documents) and drops tokens shorter than 2 characters.
func TokenizeText(text string) []string {
	var tokens []string

	words := tokenRegex.FindAllString(text, -1)
	for _, word := range words {
		for _, t := range splitIdentifier(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}

	return tokens
}

// splitIdentifier splits snake_case then camelCase within each part.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}
	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase words.
// Examples:
//   - "QuarterlyPlanReview" -> ["Quarterly", "Plan", "Review"]
//   - "PDFReport" -> ["PDF", "Report"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])

			// Split if previous is lowercase OR next is lowercase (handles acronyms)
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}

	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a lookup map.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
