package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/config"
	"github.com/lanternsearch/lantern/internal/daemon"
	"github.com/lanternsearch/lantern/internal/lifecycle"
	"github.com/lanternsearch/lantern/internal/logging"
	lanternmcp "github.com/lanternsearch/lantern/internal/mcp"
	"github.com/lanternsearch/lantern/internal/watcher"
)

// newServeCmd creates the serve command: the foreground daemon.
func newServeCmd() *cobra.Command {
	var mcpMode bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval daemon in the foreground",
		Long: `Serve starts the full retrieval pipeline: the ingestion service,
the filesystem watcher, sleep/wake handling, and the Unix socket RPC
surface other lantern commands talk to.

With --mcp, stdout speaks the Model Context Protocol over stdio
instead, for AI assistants. Logs go to the log file in both modes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if mcpMode {
				return runServeMCP(cmd.Context(), cfg, offline)
			}
			return runServeDaemon(cmd.Context(), cfg, offline)
		},
	}

	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "Serve MCP over stdio instead of the Unix socket")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama probe)")

	return cmd
}

// runServeMCP serves MCP over stdio. Stdout carries JSON-RPC framing
// exclusively, so all diagnostics go to the log file.
func runServeMCP(ctx context.Context, cfg *config.Config, offline bool) error {
	cleanup, err := logging.SetupMCPModeWithLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	s, err := buildStack(ctx, cfg, stackOptions{Offline: offline})
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retrieval service: %w", err)
	}
	defer s.service.Stop()

	server, err := lanternmcp.NewServer(s.service, s.embedder)
	if err != nil {
		return err
	}

	slog.Info("mcp_server_starting")
	return server.Serve(ctx)
}

// runServeDaemon runs the socket daemon until a stop signal arrives.
func runServeDaemon(ctx context.Context, cfg *config.Config, offline bool) error {
	logCfg := logging.DefaultConfig()
	if cfg.Daemon.LogLevel != "" {
		logCfg.Level = cfg.Daemon.LogLevel
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	dcfg := daemonConfig(cfg)
	if err := dcfg.EnsureDir(); err != nil {
		return err
	}

	pidfile := daemon.NewPIDFile(dcfg.PIDPath)
	if err := pidfile.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			return fmt.Errorf("lantern daemon is already running (pid file %s)", dcfg.PIDPath)
		}
		return err
	}
	defer func() { _ = pidfile.Release() }()

	s, err := buildStack(ctx, cfg, stackOptions{Offline: offline})
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start retrieval service: %w", err)
	}
	defer s.service.Stop()

	startWatcher(ctx, cfg, s)

	sleepWatcher := lifecycle.NewSleepWatcher(lifecycle.SleepWatcherOptions{
		OnSleep: s.service.PauseForSystemSleep,
		OnWake: func(gap time.Duration) {
			slog.Info("system_wake_detected", slog.Duration("gap", gap))
			s.service.ResumeAfterSystemWake(ctx)
		},
	})
	sleepWatcher.Start(ctx)
	defer sleepWatcher.Stop()

	compactor := daemon.NewCompactionManager(s.vectors, daemon.DefaultCompactionConfig())
	compactor.Start(ctx)
	defer compactor.Stop()

	server, err := daemon.NewServer(dcfg.SocketPath, s.service)
	if err != nil {
		return err
	}

	go lifecycle.HandleSignals(ctx, lifecycle.SignalHandlers{
		OnStop:   cancel,
		OnPause:  s.service.PauseForSystemSleep,
		OnResume: func() { s.service.ResumeAfterSystemWake(ctx) },
	})

	slog.Info("daemon_started",
		slog.String("socket", dcfg.SocketPath),
		slog.String("data_dir", cfg.DataDir))

	err = server.ListenAndServe(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startWatcher launches filesystem watching over the configured roots
// and feeds changes into the service. Watch failures degrade to
// backfill-only freshness rather than stopping the daemon.
func startWatcher(ctx context.Context, cfg *config.Config, s *stack) {
	pol, err := cfg.BuildPolicy()
	if err != nil {
		slog.Warn("watcher_disabled", slog.String("error", err.Error()))
		return
	}

	opts := watcher.DefaultOptions()
	opts.Policy = pol
	if d, parseErr := time.ParseDuration(cfg.Watcher.Debounce); parseErr == nil && d > 0 {
		opts.DebounceWindow = d
	}
	if d, parseErr := time.ParseDuration(cfg.Watcher.PollInterval); parseErr == nil && d > 0 {
		opts.PollInterval = d
	}

	w, err := watcher.NewHybridWatcher(opts)
	if err != nil {
		slog.Warn("watcher_disabled", slog.String("error", err.Error()))
		return
	}

	go func() {
		if startErr := w.Start(ctx); startErr != nil {
			slog.Warn("watcher_stopped", slog.String("error", startErr.Error()))
		}
	}()
	go func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case events, ok := <-w.Events():
				if !ok {
					return
				}
				applyWatcherEvents(ctx, s, events)
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher_error", slog.String("error", err.Error()))
			}
		}
	}()

	slog.Info("watcher_started", slog.String("type", w.WatcherType()))
}

// applyWatcherEvents translates debounced filesystem events into
// targeted service work.
func applyWatcherEvents(ctx context.Context, s *stack, events []watcher.FileEvent) {
	for _, e := range events {
		if e.IsDir {
			continue
		}
		switch e.Operation {
		case watcher.OpCreate, watcher.OpModify:
			s.service.IngestPath(e.Path, e.ModTime)
		case watcher.OpDelete, watcher.OpRename:
			if _, err := s.service.RemovePath(ctx, e.Path); err != nil {
				slog.Warn("watch_remove_failed",
					slog.String("path", e.Path),
					slog.String("error", err.Error()))
			}
		}
	}
}
