package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the sqlite driver for the metrics DB

	"github.com/lanternsearch/lantern/internal/config"
	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/daemon"
	"github.com/lanternsearch/lantern/internal/embed"
	"github.com/lanternsearch/lantern/internal/extract"
	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/search"
	"github.com/lanternsearch/lantern/internal/store"
	"github.com/lanternsearch/lantern/internal/telemetry"
)

// Persistent file names under the data directory.
const (
	storeFileName   = "store.db"
	vectorFileName  = "vectors.hnsw"
	metricsFileName = "metrics.db"
)

// stack is the fully wired retrieval pipeline a command operates on.
type stack struct {
	cfg      *config.Config
	store    *store.Store
	vectors  *store.HNSWIndex
	embedder embed.Embedder
	engine   *search.Engine
	service  *retrieval.Service
	metrics  *telemetry.QueryMetrics

	metricsDB  *sql.DB
	vectorPath string
}

// stackOptions tweak construction per command.
type stackOptions struct {
	// Offline forces the static embedder (no Ollama probe).
	Offline bool

	// SkipPreflight disables the service's startup environment checks.
	SkipPreflight bool
}

// buildStack wires the full pipeline from config: store, vector index,
// embedder, engine, connector, extractor, and the retrieval service on
// top. The caller owns the result and must call close.
func buildStack(ctx context.Context, cfg *config.Config, opts stackOptions) (*stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	pol, err := cfg.BuildPolicy()
	if err != nil {
		return nil, fmt.Errorf("failed to build policy: %w", err)
	}

	backend := cfg.Embeddings.Provider
	if opts.Offline {
		backend = "static"
	}
	embedder := embed.NewEmbedder(ctx, embed.FactoryConfig{
		Backend: backend,
		Ollama: embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
		},
		StaticDimensions: cfg.Embeddings.Dimensions,
	})

	vectors, err := store.NewHNSWIndex(embedder.Dimensions())
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	vectorPath := filepath.Join(cfg.DataDir, vectorFileName)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if loadErr := vectors.Load(vectorPath); loadErr != nil {
			// A stale or corrupt snapshot is rebuilt by the next
			// backfill; starting empty beats not starting.
			slog.Warn("vector_index_load_failed",
				slog.String("path", vectorPath),
				slog.String("error", loadErr.Error()))
		}
	}

	var lexical store.LexicalIndex
	if cfg.Search.LexicalBackend == "bleve" {
		lexical, err = store.NewLexicalBackend("bleve", cfg.DataDir)
		if err != nil {
			_ = vectors.Close()
			_ = embedder.Close()
			return nil, fmt.Errorf("failed to open lexical backend: %w", err)
		}
	}

	st, err := store.New(store.Options{
		Path:    filepath.Join(cfg.DataDir, storeFileName),
		Vectors: vectors,
		Lexical: lexical,
	})
	if err != nil {
		_ = vectors.Close()
		_ = embedder.Close()
		return nil, err
	}
	if err := st.OpenAndMigrate(); err != nil {
		_ = st.Close()
		_ = vectors.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	s := &stack{
		cfg:        cfg,
		store:      st,
		vectors:    vectors,
		embedder:   embedder,
		vectorPath: vectorPath,
	}

	// Query telemetry lives in its own small database so metric writes
	// never contend with the single-writer store.
	metricsDB, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, metricsFileName))
	if err == nil {
		metricsStore, msErr := telemetry.NewSQLiteMetricsStore(metricsDB)
		if msErr == nil {
			s.metrics = telemetry.NewQueryMetrics(metricsStore)
			s.metricsDB = metricsDB
		} else {
			slog.Warn("query_metrics_unavailable", slog.String("error", msErr.Error()))
			_ = metricsDB.Close()
		}
	} else {
		slog.Warn("query_metrics_unavailable", slog.String("error", err.Error()))
	}

	engineOpts := []search.EngineOption{search.WithTuning(cfg.SearchTuning())}
	if s.metrics != nil {
		engineOpts = append(engineOpts, search.WithMetrics(s.metrics))
	}
	engine, err := search.NewEngine(st, vectors, embedder, engineOpts...)
	if err != nil {
		s.close()
		return nil, err
	}
	s.engine = engine

	conn, err := connector.New(connector.Options{RespectGitignore: true})
	if err != nil {
		s.close()
		return nil, err
	}

	extractor := extract.NewService(extract.ServiceOptions{Workers: cfg.ExtractionWorkers()})

	service, err := retrieval.New(retrieval.Config{
		Policy:             pol,
		DataDir:            cfg.DataDir,
		QueueCapacity:      cfg.Retrieval.QueueCapacity,
		SnapshotInterval:   cfg.SnapshotInterval(),
		HotPartitionMaxAge: cfg.HotPartitionMaxAge(),
		SkipPreflight:      opts.SkipPreflight,
	}, st, conn, extractor, embedder, engine)
	if err != nil {
		_ = extractor.Close()
		s.close()
		return nil, err
	}
	s.service = service

	return s, nil
}

// close persists the vector index and releases every component. The
// retrieval service must already be stopped.
func (s *stack) close() {
	if s.vectors != nil && s.vectorPath != "" {
		if err := s.vectors.Save(s.vectorPath); err != nil {
			slog.Warn("vector_index_save_failed",
				slog.String("path", s.vectorPath),
				slog.String("error", err.Error()))
		}
	}
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
	if s.metricsDB != nil {
		_ = s.metricsDB.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.vectors != nil {
		_ = s.vectors.Close()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
}

// daemonConfig derives the IPC socket configuration from the loaded
// config, keeping the PID file next to the socket.
func daemonConfig(cfg *config.Config) daemon.Config {
	dcfg := daemon.DefaultConfig()
	sock := cfg.SocketPath()
	if sock != "" {
		dcfg.SocketPath = sock
		dcfg.PIDPath = filepath.Join(filepath.Dir(sock), "lantern.pid")
	}
	return dcfg
}

// daemonClient returns a client for the configured socket.
func daemonClient(cfg *config.Config) *daemon.Client {
	return daemon.NewClient(daemonConfig(cfg))
}
