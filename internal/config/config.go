// Package config loads and validates the daemon configuration: which
// roots to index, policy overrides, search tuning, embedder selection,
// and daemon runtime settings. Precedence is defaults, then the user
// config file, then LANTERN_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lanternsearch/lantern/internal/policy"
	"github.com/lanternsearch/lantern/internal/search"
)

// Config is the complete daemon configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Roots      []string         `yaml:"roots" json:"roots"`
	Policy     PolicyConfig     `yaml:"policy" json:"policy"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Daemon     DaemonConfig     `yaml:"daemon" json:"daemon"`
}

// PolicyConfig overrides the indexing policy preset.
type PolicyConfig struct {
	// Preset names the base policy. Only "developer" exists today.
	Preset string `yaml:"preset" json:"preset"`

	// Exclude adds directory patterns on top of the preset's excludes.
	Exclude []string `yaml:"exclude" json:"exclude"`

	// MaxFileSizeMB defers files larger than this (0 = preset default).
	MaxFileSizeMB int `yaml:"max_file_size_mb" json:"max_file_size_mb"`

	// MaxExtractionTime bounds a single file's extraction, e.g. "12s"
	// (empty = preset default).
	MaxExtractionTime string `yaml:"max_extraction_time" json:"max_extraction_time"`
}

// SearchConfig tunes the hybrid suggest ranking. Zero values fall
// back to the engine defaults.
type SearchConfig struct {
	LexicalWeight       float64 `yaml:"lexical_weight" json:"lexical_weight"`
	VectorWeight        float64 `yaml:"vector_weight" json:"vector_weight"`
	RecencyWeight       float64 `yaml:"recency_weight" json:"recency_weight"`
	MinVectorSimilarity float64 `yaml:"min_vector_similarity" json:"min_vector_similarity"`
	GraphBoostCap       float64 `yaml:"graph_boost_cap" json:"graph_boost_cap"`
	DefaultLimit        int     `yaml:"default_limit" json:"default_limit"`
	MaxLimit            int     `yaml:"max_limit" json:"max_limit"`

	// LexicalBackend selects "sqlite" (FTS5, default) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "static", or empty for auto-detection
	// (Ollama if reachable, static otherwise).
	Provider string `yaml:"provider" json:"provider"`

	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint (empty = default
	// http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	ModelDownloadTimeout time.Duration `yaml:"model_download_timeout" json:"model_download_timeout"`
}

// RetrievalConfig tunes the ingestion pipeline.
type RetrievalConfig struct {
	QueueCapacity          int    `yaml:"queue_capacity" json:"queue_capacity"`
	SnapshotInterval       string `yaml:"snapshot_interval" json:"snapshot_interval"`
	HotPartitionMaxAgeDays int    `yaml:"hot_partition_max_age_days" json:"hot_partition_max_age_days"`
	ExtractionWorkers      int    `yaml:"extraction_workers" json:"extraction_workers"`
}

// WatcherConfig tunes filesystem watching.
type WatcherConfig struct {
	Debounce     string `yaml:"debounce" json:"debounce"`
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
}

// DaemonConfig configures the IPC surface.
type DaemonConfig struct {
	// SocketPath is the unix socket (empty = ~/.lantern/run/lantern.sock).
	SocketPath string `yaml:"socket_path" json:"socket_path"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig returns the hardcoded defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Roots: []string{
			"~/Documents",
			"~/Desktop",
			"~/Downloads",
		},
		Policy: PolicyConfig{
			Preset: "developer",
		},
		Search: SearchConfig{
			LexicalBackend: "sqlite",
		},
		Embeddings: EmbeddingsConfig{
			Provider:             "", // auto-detect: Ollama, else static
			Model:                "nomic-embed-text-v1.5",
			BatchSize:            32,
			ModelDownloadTimeout: 10 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			QueueCapacity:          1024,
			SnapshotInterval:       "30s",
			HotPartitionMaxAgeDays: 180,
			ExtractionWorkers:      64,
		},
		Watcher: WatcherConfig{
			Debounce:     "500ms",
			PollInterval: "5s",
		},
		Daemon: DaemonConfig{
			LogLevel: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lantern")
	}
	return filepath.Join(home, ".lantern")
}

// GetUserConfigPath returns the user configuration file path,
// following the XDG base directory convention:
//   - $XDG_CONFIG_HOME/lantern/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/lantern/config.yaml otherwise
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lantern", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "lantern", "config.yaml")
	}
	return filepath.Join(home, ".config", "lantern", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user config.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration: defaults, then the user
// config file if present, then LANTERN_* environment overrides, then
// validation.
func Load() (*Config, error) {
	cfg := NewConfig()

	path := GetUserConfigPath()
	if fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile builds the configuration from an explicit file path
// (tests, --config flag). The file must exist.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML reads path and merges its non-zero values over c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero values from other onto c. Policy
// excludes append to the preset's set rather than replacing it.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if len(other.Roots) > 0 {
		c.Roots = other.Roots
	}

	if other.Policy.Preset != "" {
		c.Policy.Preset = other.Policy.Preset
	}
	if len(other.Policy.Exclude) > 0 {
		c.Policy.Exclude = append(c.Policy.Exclude, other.Policy.Exclude...)
	}
	if other.Policy.MaxFileSizeMB != 0 {
		c.Policy.MaxFileSizeMB = other.Policy.MaxFileSizeMB
	}
	if other.Policy.MaxExtractionTime != "" {
		c.Policy.MaxExtractionTime = other.Policy.MaxExtractionTime
	}

	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.RecencyWeight != 0 {
		c.Search.RecencyWeight = other.Search.RecencyWeight
	}
	if other.Search.MinVectorSimilarity != 0 {
		c.Search.MinVectorSimilarity = other.Search.MinVectorSimilarity
	}
	if other.Search.GraphBoostCap != 0 {
		c.Search.GraphBoostCap = other.Search.GraphBoostCap
	}
	if other.Search.DefaultLimit != 0 {
		c.Search.DefaultLimit = other.Search.DefaultLimit
	}
	if other.Search.MaxLimit != 0 {
		c.Search.MaxLimit = other.Search.MaxLimit
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.ModelDownloadTimeout != 0 {
		c.Embeddings.ModelDownloadTimeout = other.Embeddings.ModelDownloadTimeout
	}

	if other.Retrieval.QueueCapacity != 0 {
		c.Retrieval.QueueCapacity = other.Retrieval.QueueCapacity
	}
	if other.Retrieval.SnapshotInterval != "" {
		c.Retrieval.SnapshotInterval = other.Retrieval.SnapshotInterval
	}
	if other.Retrieval.HotPartitionMaxAgeDays != 0 {
		c.Retrieval.HotPartitionMaxAgeDays = other.Retrieval.HotPartitionMaxAgeDays
	}
	if other.Retrieval.ExtractionWorkers != 0 {
		c.Retrieval.ExtractionWorkers = other.Retrieval.ExtractionWorkers
	}

	if other.Watcher.Debounce != "" {
		c.Watcher.Debounce = other.Watcher.Debounce
	}
	if other.Watcher.PollInterval != "" {
		c.Watcher.PollInterval = other.Watcher.PollInterval
	}

	if other.Daemon.SocketPath != "" {
		c.Daemon.SocketPath = other.Daemon.SocketPath
	}
	if other.Daemon.LogLevel != "" {
		c.Daemon.LogLevel = other.Daemon.LogLevel
	}
}

// applyEnvOverrides applies LANTERN_* environment variables, the
// highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LANTERN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LANTERN_ROOTS"); v != "" {
		c.Roots = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("LANTERN_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LANTERN_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("LANTERN_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("LANTERN_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("LANTERN_LOG_LEVEL"); v != "" {
		c.Daemon.LogLevel = v
	}
	if v := os.Getenv("LANTERN_MIN_VECTOR_SIMILARITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Search.MinVectorSimilarity = f
		}
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Roots) == 0 {
		return fmt.Errorf("roots must name at least one directory")
	}

	if c.Policy.Preset != "" && c.Policy.Preset != "developer" {
		return fmt.Errorf("policy.preset must be 'developer', got %q", c.Policy.Preset)
	}
	if c.Policy.MaxExtractionTime != "" {
		if _, err := time.ParseDuration(c.Policy.MaxExtractionTime); err != nil {
			return fmt.Errorf("policy.max_extraction_time: %w", err)
		}
	}

	for name, w := range map[string]float64{
		"search.lexical_weight": c.Search.LexicalWeight,
		"search.vector_weight":  c.Search.VectorWeight,
		"search.recency_weight": c.Search.RecencyWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, w)
		}
	}
	if c.Search.MinVectorSimilarity < 0 || c.Search.MinVectorSimilarity > 1 {
		return fmt.Errorf("search.min_vector_similarity must be in [0,1], got %f", c.Search.MinVectorSimilarity)
	}
	if c.Search.DefaultLimit < 0 || c.Search.MaxLimit < 0 {
		return fmt.Errorf("search limits must be non-negative")
	}
	if c.Search.MaxLimit > 0 && c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)",
			c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	switch strings.ToLower(c.Search.LexicalBackend) {
	case "", "sqlite", "bleve":
	default:
		return fmt.Errorf("search.lexical_backend must be 'sqlite' or 'bleve', got %q", c.Search.LexicalBackend)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "", "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama', 'static', or empty (auto-detect), got %q", c.Embeddings.Provider)
	}

	for name, v := range map[string]string{
		"retrieval.snapshot_interval": c.Retrieval.SnapshotInterval,
		"watcher.debounce":            c.Watcher.Debounce,
		"watcher.poll_interval":       c.Watcher.PollInterval,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	switch strings.ToLower(c.Daemon.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("daemon.log_level must be 'debug', 'info', 'warn', or 'error', got %q", c.Daemon.LogLevel)
	}

	return nil
}

// BuildPolicy expands the roots and overlays the policy overrides on
// the preset.
func (c *Config) BuildPolicy() (*policy.Policy, error) {
	roots := make([]string, 0, len(c.Roots))
	for _, r := range c.Roots {
		expanded, err := ExpandPath(r)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r, err)
		}
		roots = append(roots, expanded)
	}

	pol := policy.DeveloperPreset(roots)
	pol.Excludes = append(pol.Excludes, c.Policy.Exclude...)
	if c.Policy.MaxFileSizeMB > 0 {
		pol.MaxFileSize = int64(c.Policy.MaxFileSizeMB) * 1024 * 1024
	}
	if c.Policy.MaxExtractionTime != "" {
		d, err := time.ParseDuration(c.Policy.MaxExtractionTime)
		if err != nil {
			return nil, fmt.Errorf("policy.max_extraction_time: %w", err)
		}
		pol.MaxExtractionTimePerFile = d
	}
	return pol, nil
}

// SearchTuning maps the config's set fields over the engine defaults.
func (c *Config) SearchTuning() search.Tuning {
	t := search.DefaultTuning()
	if c.Search.LexicalWeight != 0 {
		t.LexicalWeight = c.Search.LexicalWeight
	}
	if c.Search.VectorWeight != 0 {
		t.VectorWeight = c.Search.VectorWeight
	}
	if c.Search.RecencyWeight != 0 {
		t.RecencyWeight = c.Search.RecencyWeight
	}
	if c.Search.MinVectorSimilarity != 0 {
		t.MinVectorSimilarity = c.Search.MinVectorSimilarity
	}
	if c.Search.GraphBoostCap != 0 {
		t.GraphBoostCap = c.Search.GraphBoostCap
	}
	if c.Search.DefaultLimit != 0 {
		t.DefaultLimit = c.Search.DefaultLimit
	}
	if c.Search.MaxLimit != 0 {
		t.MaxLimit = c.Search.MaxLimit
	}
	return t
}

// SocketPath returns the configured or default daemon socket path.
func (c *Config) SocketPath() string {
	if c.Daemon.SocketPath != "" {
		return c.Daemon.SocketPath
	}
	return filepath.Join(c.DataDir, "run", "lantern.sock")
}

// SnapshotInterval parses the retrieval snapshot cadence.
func (c *Config) SnapshotInterval() time.Duration {
	d, err := time.ParseDuration(c.Retrieval.SnapshotInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// HotPartitionMaxAge converts the configured day count to a duration.
func (c *Config) HotPartitionMaxAge() time.Duration {
	if c.Retrieval.HotPartitionMaxAgeDays <= 0 {
		return 180 * 24 * time.Hour
	}
	return time.Duration(c.Retrieval.HotPartitionMaxAgeDays) * 24 * time.Hour
}

// ExtractionWorkers returns the extraction pool size.
func (c *Config) ExtractionWorkers() int {
	if c.Retrieval.ExtractionWorkers > 0 {
		return c.Retrieval.ExtractionWorkers
	}
	if n := runtime.NumCPU() * 8; n < 64 {
		return n
	}
	return 64
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return filepath.Abs(path)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// fileExists checks whether path is an existing regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
