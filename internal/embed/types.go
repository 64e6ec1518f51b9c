// Package embed generates vector embeddings for document chunks and
// queries. A deterministic hash-based embedder is always available;
// an Ollama-backed embedder is used when the daemon can reach one.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts per embedding request.
	DefaultBatchSize = 32

	// MaxBatchSize bounds a single request to protect memory.
	MaxBatchSize = 256

	// DefaultWarmTimeout applies when the model served recently.
	DefaultWarmTimeout = 60 * time.Second

	// DefaultColdTimeout applies on first use, when the backend may
	// still need to load the model.
	DefaultColdTimeout = 180 * time.Second

	// ModelUnloadThreshold is how long after the last call the model
	// is assumed unloaded (Ollama evicts idle models after ~5m).
	ModelUnloadThreshold = 5 * time.Minute

	// DefaultMaxRetries is the per-request retry budget.
	DefaultMaxRetries = 3
)

// DefaultStaticDimensions is the hash embedder's vector width.
const DefaultStaticDimensions = 384

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, index-aligned
	// with the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks whether the embedder is ready to serve.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. Zero vectors pass through.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
