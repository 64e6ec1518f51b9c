package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/output"
	"github.com/lanternsearch/lantern/internal/preflight"
	"github.com/lanternsearch/lantern/internal/store"
)

// newDoctorCmd creates the doctor command.
func newDoctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose environment and index health",
		Long: `Doctor runs the environment checks, validates the index's internal
consistency, and reports whether the daemon is reachable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.Context(), offline)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip checks that need the network")

	return cmd
}

func runDoctor(ctx context.Context, offline bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(os.Stdout)

	// Environment.
	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(true),
	)
	results := checker.RunAll(ctx, cfg.DataDir)
	checker.PrintResults(results)

	// Daemon reachability.
	out.Newline()
	client := daemonClient(cfg)
	if client.IsRunning() {
		if pingErr := client.Ping(ctx); pingErr == nil {
			out.Success("Daemon: running and responsive")
		} else {
			out.Warningf("Daemon: process found but not responding (%v)", pingErr)
		}
	} else {
		out.Status("•", "Daemon: not running")
	}

	// Index consistency. A running daemon holds the store lock, so the
	// on-disk check only runs against a quiescent index.
	out.Newline()
	if client.IsRunning() {
		out.Status("•", "Index consistency: skipped (daemon holds the index)")
	} else if err := checkIndexConsistency(ctx, cfg.DataDir, out); err != nil {
		out.Errorf("Index consistency: %v", err)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("critical environment checks failed")
	}
	return nil
}

// checkIndexConsistency reconciles document, chunk, FTS, and vector
// populations in the on-disk store.
func checkIndexConsistency(ctx context.Context, dataDir string, out *output.Writer) error {
	dbPath := filepath.Join(dataDir, storeFileName)
	if _, err := os.Stat(dbPath); err != nil {
		out.Status("•", "Index consistency: no index yet (run 'lantern backfill')")
		return nil
	}

	vectors, err := store.NewHNSWIndex(1)
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()
	vectorPath := filepath.Join(dataDir, vectorFileName)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		_ = vectors.Load(vectorPath)
	}

	st, err := store.New(store.Options{Path: dbPath, Vectors: vectors})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if err := st.OpenAndMigrate(); err != nil {
		return err
	}

	report, err := st.ValidateConsistency(ctx)
	if err != nil {
		return err
	}

	if report.Consistent() {
		out.Successf("Index consistency: OK (%d documents, %d chunks, %d vectors, checked in %s)",
			report.Documents, report.Chunks, report.VectorCount, report.Duration.Round(time.Millisecond))
		return nil
	}

	out.Warningf("Index consistency: issues found")
	if report.OrphanedChunks > 0 {
		out.Warningf("  %d orphaned chunk(s)", report.OrphanedChunks)
	}
	if report.MissingFTSRows > 0 {
		out.Warningf("  %d document(s) missing from the FTS mirror", report.MissingFTSRows)
	}
	if report.MissingVectors > 0 {
		out.Warningf("  %d embedded chunk(s) missing from the vector index", report.MissingVectors)
	}
	out.Status("•", "Run 'lantern backfill' to rebuild the affected entries")
	return nil
}
