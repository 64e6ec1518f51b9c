// Package chunk splits extracted document text into ordered spans for
// embedding. Splitting is paragraph-aware (blank lines), with markdown
// header awareness for .md bodies; oversized paragraphs are split with
// overlap so no span loses its surrounding context entirely.
package chunk

import (
	"regexp"
	"strings"
)

// Chunk size defaults.
const (
	DefaultMaxChunkTokens = 512 // recall sweet spot for retrieval chunks
	DefaultOverlapTokens  = 64  // ~12.5% overlap when splitting oversized paragraphs
	TokensPerChar         = 4   // rough approximation: 4 chars = 1 token
)

// Span is one ordered slice of a document's text.
type Span struct {
	Ordinal int
	Text    string
}

// Chunker splits extracted text into spans.
type Chunker interface {
	Chunk(text string, markdown bool) []Span
}

// Options configures a TextChunker.
type Options struct {
	MaxChunkTokens int // maximum tokens per span (default DefaultMaxChunkTokens)
	OverlapTokens  int // overlap when splitting oversized paragraphs (default DefaultOverlapTokens)
}

// TextChunker is the paragraph/header-aware Chunker implementation.
type TextChunker struct {
	options Options
}

var _ Chunker = (*TextChunker)(nil)

// headerPattern matches markdown headers: # Title, ## Title, etc.
var headerPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// NewTextChunker creates a chunker with default options.
func NewTextChunker() *TextChunker {
	return NewTextChunkerWithOptions(Options{})
}

// NewTextChunkerWithOptions creates a chunker with custom options.
func NewTextChunkerWithOptions(opts Options) *TextChunker {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.OverlapTokens == 0 {
		opts.OverlapTokens = DefaultOverlapTokens
	}
	return &TextChunker{options: opts}
}

// Chunk splits text into ordered spans. With markdown set, header
// sections form the outer split so a span never straddles two
// sections.
func (c *TextChunker) Chunk(text string, markdown bool) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var blocks []string
	if markdown {
		blocks = splitSections(text)
	} else {
		blocks = []string{text}
	}

	var spans []Span
	for _, block := range blocks {
		for _, piece := range c.packParagraphs(block) {
			spans = append(spans, Span{Ordinal: len(spans), Text: piece})
		}
	}
	return spans
}

// splitSections splits markdown text at headers, keeping each header
// with its section body.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var sections []string
	var current strings.Builder

	for _, line := range lines {
		if headerPattern.MatchString(line) && current.Len() > 0 {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// packParagraphs greedily packs blank-line-separated paragraphs into
// spans up to the token budget, splitting oversized paragraphs with
// overlap.
func (c *TextChunker) packParagraphs(text string) []string {
	var pieces []string
	var current strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			pieces = append(pieces, trimmed)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		paraTokens := estimateTokens(para)
		if paraTokens > c.options.MaxChunkTokens {
			flush()
			pieces = append(pieces, c.splitOversized(para)...)
			continue
		}

		if current.Len() > 0 && estimateTokens(current.String())+paraTokens > c.options.MaxChunkTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return pieces
}

// splitOversized windows a paragraph larger than the budget, stepping
// by (max - overlap) tokens so consecutive windows share context.
func (c *TextChunker) splitOversized(para string) []string {
	maxChars := c.options.MaxChunkTokens * TokensPerChar
	overlapChars := c.options.OverlapTokens * TokensPerChar
	step := maxChars - overlapChars
	if step <= 0 {
		step = maxChars
	}

	runes := []rune(para)
	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return pieces
}

// estimateTokens approximates the token count from character length.
func estimateTokens(text string) int {
	return (len(text) + TokensPerChar - 1) / TokensPerChar
}
