package embed

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// EmbedderEnvVar overrides the embedder selection ("ollama",
// "static").
const EmbedderEnvVar = "LANTERN_EMBEDDER"

// FactoryConfig configures embedder selection.
type FactoryConfig struct {
	// Backend forces a specific embedder; empty means auto (ollama
	// with static fallback). The LANTERN_EMBEDDER environment
	// variable takes precedence.
	Backend string

	// Ollama parameters for the ollama backend.
	Ollama OllamaConfig

	// StaticDimensions overrides the static embedder's width.
	StaticDimensions int

	// CacheSize for the LRU wrapper; 0 uses the default, negative
	// disables caching.
	CacheSize int
}

// NewEmbedder selects an embedder per config and environment, wrapped
// in the LRU cache. It always returns a working embedder: when the
// Ollama backend is unreachable it falls back to the static embedder
// rather than failing.
func NewEmbedder(ctx context.Context, cfg FactoryConfig) Embedder {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if env := strings.ToLower(strings.TrimSpace(os.Getenv(EmbedderEnvVar))); env != "" {
		backend = env
	}

	var inner Embedder
	switch backend {
	case "static":
		inner = NewStaticEmbedderWithDimensions(cfg.StaticDimensions)
	case "ollama", "":
		ollama, err := NewOllamaEmbedder(ctx, cfg.Ollama)
		if err != nil {
			if backend == "ollama" {
				slog.Warn("requested ollama embedder unavailable, falling back to static",
					slog.String("error", err.Error()))
			} else {
				slog.Info("ollama not reachable, using static embedder",
					slog.String("error", err.Error()))
			}
			inner = NewStaticEmbedderWithDimensions(cfg.StaticDimensions)
		} else {
			slog.Info("using ollama embedder",
				slog.String("model", ollama.ModelName()),
				slog.Int("dimensions", ollama.Dimensions()))
			inner = ollama
		}
	default:
		slog.Warn("unknown embedder backend, using static", slog.String("backend", backend))
		inner = NewStaticEmbedderWithDimensions(cfg.StaticDimensions)
	}

	if cfg.CacheSize < 0 {
		return inner
	}
	return NewCachedEmbedder(inner, cfg.CacheSize)
}
