package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/connector"
	"github.com/lanternsearch/lantern/internal/daemon"
	"github.com/lanternsearch/lantern/internal/retrieval"
	"github.com/lanternsearch/lantern/internal/ui"
)

// newBackfillCmd creates the backfill command: crawl the configured
// roots and index every eligible document.
func newBackfillCmd() *cobra.Command {
	var limit int
	var noTUI bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Crawl the configured roots and index documents",
		Long: `Backfill walks the configured roots, extracts document content,
generates embeddings, and builds the search index.

Re-running over an unchanged corpus is cheap: files whose modification
time has not moved are skipped. With --limit the run stops after that
many files and saves a resume token; the next backfill continues from
it.

If the daemon is running, the backfill is delegated to it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(cmd.Context(), limit, noTUI, offline)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Stop after this many files (0 = all)")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Plain text progress output")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama probe)")

	return cmd
}

func runBackfill(ctx context.Context, limit int, noTUI, offline bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// A running daemon owns the index lock; hand the work to it.
	client := daemonClient(cfg)
	if client.IsRunning() {
		result, err := client.Backfill(ctx, daemon.BackfillParams{Limit: limit})
		if err != nil {
			return err
		}
		fmt.Printf("Backfill %s: %d/%d items processed (via daemon)\n",
			result.Status, result.ItemsProcessed, result.EstimatedTotal)
		return nil
	}

	s, err := buildStack(ctx, cfg, stackOptions{Offline: offline})
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.service.Start(ctx); err != nil {
		return err
	}
	defer s.service.Stop()

	renderer := ui.NewRenderer(ui.NewConfig(os.Stdout,
		ui.WithForcePlain(noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithRootsLabel(rootsLabel(cfg.Roots)),
	))
	if err := renderer.Start(ctx); err != nil {
		renderer = ui.NewPlainRenderer(ui.NewConfig(os.Stdout, ui.WithForcePlain(true)))
		_ = renderer.Start(ctx)
	}

	pollCtx, stopPolling := context.WithCancel(ctx)
	go pollBackfillProgress(pollCtx, s.service, renderer)

	start := time.Now()
	checkpoint, backfillErr := s.service.TriggerBackfill(ctx, limit)
	stopPolling()

	if backfillErr != nil {
		_ = renderer.Stop()
		return backfillErr
	}

	renderer.Complete(completionStats(ctx, s, checkpoint, time.Since(start)))
	if err := renderer.Stop(); err != nil {
		return err
	}

	if checkpoint.Status == connector.StatusPaused {
		fmt.Printf("\nBackfill paused at %d/%d files. Run 'lantern backfill' again to continue.\n",
			checkpoint.ItemsProcessed, checkpoint.EstimatedTotal)
	}
	return nil
}

// pollBackfillProgress feeds service snapshots into the renderer until
// cancelled.
func pollBackfillProgress(ctx context.Context, service *retrieval.Service, renderer ui.Renderer) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := service.StateSnapshot(ctx)
			for _, row := range snap.Progress {
				if !row.Active {
					continue
				}
				renderer.UpdateProgress(ui.ProgressEvent{
					Stage:   stageForOperation(snap.CurrentOperation),
					Current: row.ItemsProcessed,
					Total:   row.EstimatedTotal,
				})
			}
		}
	}
}

// stageForOperation maps the service's current operation to a display
// stage. The pipeline interleaves extraction, embedding, and indexing
// per file, so mid-run progress reports as extraction.
func stageForOperation(op string) ui.Stage {
	switch op {
	case "backfill":
		return ui.StageExtracting
	case "":
		return ui.StageComplete
	default:
		return ui.StageScanning
	}
}

// completionStats assembles the final summary for the renderer.
func completionStats(ctx context.Context, s *stack, checkpoint connector.BackfillCheckpoint, elapsed time.Duration) ui.CompletionStats {
	snap := s.service.StateSnapshot(ctx)

	var errs, warnings int
	for _, c := range snap.Sources {
		errs += c.Failed
		warnings += c.Partial + c.Unsupported
	}

	backend := "ollama"
	if s.embedder.ModelName() == "static" {
		backend = "static"
	}

	return ui.CompletionStats{
		Files:     checkpoint.ItemsProcessed,
		Documents: snap.TotalDocuments,
		Duration:  elapsed,
		Errors:    errs,
		Warnings:  warnings,
		Embedder: ui.EmbedderInfo{
			Backend:    backend,
			Model:      s.embedder.ModelName(),
			Dimensions: s.embedder.Dimensions(),
		},
	}
}

// rootsLabel summarizes the crawl roots for the progress header.
func rootsLabel(roots []string) string {
	if len(roots) == 0 {
		return ""
	}
	if len(roots) <= 2 {
		return strings.Join(roots, ", ")
	}
	return fmt.Sprintf("%s +%d more", roots[0], len(roots)-1)
}
