package embed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryStaticBackend(t *testing.T) {
	e := NewEmbedder(context.Background(), FactoryConfig{Backend: "static"})
	defer e.Close()

	assert.Equal(t, "static", e.ModelName())
	assert.True(t, e.Available(context.Background()))

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok, "factory wraps embedders in the LRU cache")
	_, ok = cached.Inner().(*StaticEmbedder)
	assert.True(t, ok)
}

func TestFactoryEnvOverride(t *testing.T) {
	t.Setenv(EmbedderEnvVar, "static")

	e := NewEmbedder(context.Background(), FactoryConfig{Backend: "ollama"})
	defer e.Close()
	assert.Equal(t, "static", e.ModelName())
}

func TestFactoryUnknownBackendFallsBack(t *testing.T) {
	e := NewEmbedder(context.Background(), FactoryConfig{Backend: "gpu-cluster"})
	defer e.Close()
	assert.Equal(t, "static", e.ModelName())
}

func TestFactoryOllamaUnreachableFallsBack(t *testing.T) {
	e := NewEmbedder(context.Background(), FactoryConfig{
		Backend: "ollama",
		Ollama:  OllamaConfig{Host: "http://127.0.0.1:1"},
	})
	defer e.Close()
	assert.Equal(t, "static", e.ModelName())
}

func TestFactoryCacheDisabled(t *testing.T) {
	e := NewEmbedder(context.Background(), FactoryConfig{Backend: "static", CacheSize: -1})
	defer e.Close()
	_, ok := e.(*StaticEmbedder)
	assert.True(t, ok)
}

func TestOllamaEmbedAgainstFakeServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"nomic-embed-text:latest"}]}`))
		case "/api/embed":
			_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[3.0,4.0]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: server.URL})
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 2, e.Dimensions(), "auto-detected from the probe embedding")

	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, v, 2)
	assert.InDelta(t, 0.6, float64(v[0]), 1e-6, "vectors are normalized")
	assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaModelFallbackResolution(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"mxbai-embed-large:latest"}]}`))
		case "/api/embed":
			_, _ = w.Write([]byte(`{"embeddings":[[1.0]]}`))
		}
	}))
	defer server.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:           server.URL,
		Model:          "nomic-embed-text",
		FallbackModels: []string{"mxbai-embed-large"},
	})
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, "mxbai-embed-large:latest", e.ModelName())
}

func TestOllamaNoModelAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: server.URL, FallbackModels: []string{}})
	require.Error(t, err)
}

func TestDownloadWithRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: 1, MaxDelay: 2, Multiplier: 2}
	err := DownloadWithRetry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDownloadWithRetryExhausted(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: 1, MaxDelay: 2, Multiplier: 2}
	err := DownloadWithRetry(context.Background(), cfg, func() error { return assert.AnError })
	require.ErrorIs(t, err, assert.AnError)
}

func TestFileLock(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLock(dir)

	require.NoError(t, l.Lock())
	assert.True(t, l.IsLocked())

	other := NewFileLock(dir)
	acquired, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired, "exclusive lock held by first holder")

	require.NoError(t, l.Unlock())
	assert.False(t, l.IsLocked())
	require.NoError(t, l.Unlock(), "double unlock is safe")

	acquired, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, other.Unlock())
}
