package search

import (
	"strings"
	"unicode"
)

// snippetWindow is the target snippet length in bytes.
const snippetWindow = 160

// buildSnippet picks the evidence text for a suggestion. Lexical
// matches get a window around the first matched term in the body.
// Vector-only evidence whose title shares no term with the query would
// otherwise look arbitrary, so it shows the matching chunk's text
// instead.
func buildSnippet(c *candidate, body, query string) string {
	if c.fromLex {
		if s := lexicalSnippet(body, c.terms); s != "" {
			return s
		}
	}
	if c.fromVec && c.bestChunk != "" && !titleOverlapsQuery(c.title, query) {
		return truncateSnippet(c.bestChunk)
	}
	return truncateSnippet(body)
}

// lexicalSnippet extracts a window around the first occurrence of any
// matched term.
func lexicalSnippet(body string, terms []string) string {
	if body == "" || len(terms) == 0 {
		return ""
	}
	lower := strings.ToLower(body)

	idx := -1
	for _, term := range terms {
		t := strings.ToLower(term)
		if t == "" {
			continue
		}
		if i := strings.Index(lower, t); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx < 0 {
		return ""
	}

	start := idx - snippetWindow/3
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(body) {
		end = len(body)
	}

	snippet := strings.TrimSpace(trimToWords(body[start:end], start > 0, end < len(body)))
	if start > 0 {
		snippet = "…" + snippet
	}
	if end < len(body) {
		snippet += "…"
	}
	return snippet
}

// trimToWords drops a cut-off leading/trailing word fragment.
func trimToWords(s string, trimHead, trimTail bool) string {
	if trimHead {
		if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
			s = s[i:]
		}
	}
	if trimTail {
		if i := strings.LastIndexFunc(s, unicode.IsSpace); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func truncateSnippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= snippetWindow {
		return s
	}
	cut := s[:snippetWindow]
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

// titleOverlapsQuery reports whether any query term appears in the
// title.
func titleOverlapsQuery(title, query string) bool {
	lowTitle := strings.ToLower(title)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if len(term) < 2 {
			continue
		}
		if strings.Contains(lowTitle, term) {
			return true
		}
	}
	return false
}
