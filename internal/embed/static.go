package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// StaticEmbedder generates embeddings with a deterministic hash mix:
// no network, no model download, instant availability. Semantic
// quality is reduced but token and trigram overlap still cluster
// related documents, which is enough for a fallback and for tests.
type StaticEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// Vector mixing weights.
const (
	tokenWeight   = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

// commonStopWords are high-frequency words that carry no signal for
// document similarity.
var commonStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "for": true,
	"is": true, "are": true, "was": true, "be": true, "this": true,
	"that": true, "with": true, "as": true, "at": true, "by": true,
	"it": true, "from": true, "but": true, "not": true,
}

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates a static embedder with the default
// dimension.
func NewStaticEmbedder() *StaticEmbedder {
	return NewStaticEmbedderWithDimensions(DefaultStaticDimensions)
}

// NewStaticEmbedderWithDimensions creates a static embedder with a
// custom vector width (useful for matching a replaced model's index).
func NewStaticEmbedderWithDimensions(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultStaticDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}
	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch implements Embedder.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions implements Embedder.
func (e *StaticEmbedder) Dimensions() int { return e.dims }

// ModelName implements Embedder.
func (e *StaticEmbedder) ModelName() string { return "static" }

// Available implements Embedder.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close implements Embedder.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// generateVector mixes hashed tokens (weight 0.7) with hashed
// character trigrams (weight 0.3). Trigrams give partial-word overlap
// so "planning" and "plan" land near each other.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, e.dims)

	for _, token := range tokenizeIdentifierAware(text) {
		if commonStopWords[token] {
			continue
		}
		vector[hashToIndex(token, e.dims)] += tokenWeight
	}

	normalized := stripNonAlnum(text)
	for i := 0; i+trigramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+trigramSize], e.dims)] += trigramWeight
	}
	return vector
}

// tokenizeIdentifierAware lowercases and splits on word boundaries,
// camelCase and snake_case, so filenames like QuarterlyPlan_v2 yield
// useful tokens.
func tokenizeIdentifierAware(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, sub := range splitCamel(part) {
				if lower := strings.ToLower(sub); lower != "" {
					tokens = append(tokens, lower)
				}
			}
		}
	}
	return tokens
}

// splitCamel splits camelCase runs, keeping acronyms together.
func splitCamel(s string) []string {
	if s == "" {
		return nil
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
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

// stripNonAlnum lowercases and drops everything but letters/digits.
func stripNonAlnum(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashToIndex maps a string to a vector index via FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
