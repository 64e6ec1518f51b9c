package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Contains(t, cfg.Roots, "~/Documents")
	assert.Equal(t, "developer", cfg.Policy.Preset)
	assert.Equal(t, "sqlite", cfg.Search.LexicalBackend)
	assert.Equal(t, "nomic-embed-text-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, 1024, cfg.Retrieval.QueueCapacity)
	assert.Equal(t, "500ms", cfg.Watcher.Debounce)
	assert.Equal(t, "info", cfg.Daemon.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
roots:
  - /srv/docs
policy:
  exclude:
    - Archive
  max_file_size_mb: 100
search:
  lexical_backend: bleve
  default_limit: 5
embeddings:
  provider: static
retrieval:
  queue_capacity: 64
daemon:
  log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"/srv/docs"}, cfg.Roots)
	assert.Contains(t, cfg.Policy.Exclude, "Archive")
	assert.Equal(t, 100, cfg.Policy.MaxFileSizeMB)
	assert.Equal(t, "bleve", cfg.Search.LexicalBackend)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 64, cfg.Retrieval.QueueCapacity)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)

	// Untouched sections keep their defaults.
	assert.Equal(t, "nomic-embed-text-v1.5", cfg.Embeddings.Model)
	assert.Equal(t, "500ms", cfg.Watcher.Debounce)
}

func TestLoadReadsUserConfigFromXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := filepath.Join(xdg, "lantern")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("roots:\n  - /srv/docs\n"), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/docs"}, cfg.Roots)
}

func TestLoadWithoutUserConfigUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "developer", cfg.Policy.Preset)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := filepath.Join(xdg, "lantern")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("embeddings:\n  provider: ollama\ndaemon:\n  log_level: warn\n"), 0o644))

	t.Setenv("LANTERN_EMBEDDER", "static")
	t.Setenv("LANTERN_LOG_LEVEL", "debug")
	t.Setenv("LANTERN_SOCKET", "/tmp/custom.sock")
	t.Setenv("LANTERN_DATA_DIR", "/tmp/lantern-data")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, "debug", cfg.Daemon.LogLevel)
	assert.Equal(t, "/tmp/custom.sock", cfg.SocketPath())
	assert.Equal(t, "/tmp/lantern-data", cfg.DataDir)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no roots", func(c *Config) { c.Roots = nil }},
		{"unknown preset", func(c *Config) { c.Policy.Preset = "kitchen-sink" }},
		{"bad extraction time", func(c *Config) { c.Policy.MaxExtractionTime = "fast" }},
		{"negative weight", func(c *Config) { c.Search.LexicalWeight = -0.5 }},
		{"similarity above one", func(c *Config) { c.Search.MinVectorSimilarity = 1.5 }},
		{"default above max", func(c *Config) { c.Search.DefaultLimit = 100; c.Search.MaxLimit = 10 }},
		{"unknown backend", func(c *Config) { c.Search.LexicalBackend = "lucene" }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"bad snapshot interval", func(c *Config) { c.Retrieval.SnapshotInterval = "soon" }},
		{"bad debounce", func(c *Config) { c.Watcher.Debounce = "half a second" }},
		{"unknown log level", func(c *Config) { c.Daemon.LogLevel = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuildPolicyAppliesOverrides(t *testing.T) {
	root := t.TempDir()

	cfg := NewConfig()
	cfg.Roots = []string{root}
	cfg.Policy.Exclude = []string{"Scratch"}
	cfg.Policy.MaxFileSizeMB = 10
	cfg.Policy.MaxExtractionTime = "3s"

	pol, err := cfg.BuildPolicy()
	require.NoError(t, err)

	assert.Contains(t, pol.AllowlistRoots, root)
	assert.Contains(t, pol.Excludes, "Scratch")
	assert.Equal(t, int64(10*1024*1024), pol.MaxFileSize)
	assert.Equal(t, 3*time.Second, pol.MaxExtractionTimePerFile)
}

func TestBuildPolicyExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := NewConfig()
	cfg.Roots = []string{"~/Documents"}

	pol, err := cfg.BuildPolicy()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(home, "Documents")}, pol.AllowlistRoots)
}

func TestSearchTuningOverlaysDefaults(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.LexicalWeight = 0.9
	cfg.Search.MaxLimit = 25

	tuning := cfg.SearchTuning()
	assert.Equal(t, 0.9, tuning.LexicalWeight)
	assert.Equal(t, 25, tuning.MaxLimit)

	// Unset fields keep the calibrated defaults.
	assert.Equal(t, 1.0, tuning.VectorWeight)
	assert.Equal(t, 0.30, tuning.MinVectorSimilarity)
	assert.Equal(t, 10, tuning.DefaultLimit)
}

func TestDurationAccessors(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval())
	assert.Equal(t, 180*24*time.Hour, cfg.HotPartitionMaxAge())

	cfg.Retrieval.SnapshotInterval = "2m"
	cfg.Retrieval.HotPartitionMaxAgeDays = 30
	assert.Equal(t, 2*time.Minute, cfg.SnapshotInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.HotPartitionMaxAge())

	// Garbage falls back to the default rather than zero.
	cfg.Retrieval.SnapshotInterval = "bogus"
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval())
}

func TestSocketPathDefault(t *testing.T) {
	cfg := NewConfig()
	cfg.DataDir = "/var/lib/lantern"
	assert.Equal(t, "/var/lib/lantern/run/lantern.sock", cfg.SocketPath())
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Roots = []string{"/srv/docs"}
	cfg.Search.DefaultLimit = 7
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/docs"}, loaded.Roots)
	assert.Equal(t, 7, loaded.Search.DefaultLimit)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/Documents")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "Documents"), got)

	got, err = ExpandPath("/already/absolute")
	require.NoError(t, err)
	assert.Equal(t, "/already/absolute", got)
}
