package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/store"
)

// indexStatsReport is the stats command's payload.
type indexStatsReport struct {
	TotalDocumentCount int            `json:"total_document_count"`
	Sources            map[string]int `json:"sources,omitempty"`
	Via                string         `json:"via"` // "daemon" or "direct"
}

// newStatsCmd creates the stats command.
func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus-level index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}

func runStats(ctx context.Context, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	report := indexStatsReport{Via: "direct"}

	client := daemonClient(cfg)
	if client.IsRunning() {
		stats, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		report.TotalDocumentCount = stats.TotalDocumentCount
		report.Via = "daemon"

		if status, statusErr := client.Status(ctx); statusErr == nil {
			report.Sources = make(map[string]int, len(status.Sources))
			for name, c := range status.Sources {
				report.Sources[name] = c.Succeeded
			}
		}
	} else {
		count, err := countDocumentsDirect(ctx, cfg.DataDir)
		if err != nil {
			return err
		}
		report.TotalDocumentCount = count
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("Documents indexed: %d (%s)\n", report.TotalDocumentCount, report.Via)
	if len(report.Sources) > 0 {
		names := make([]string, 0, len(report.Sources))
		for name := range report.Sources {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-10s %d\n", name, report.Sources[name])
		}
	}
	return nil
}

// countDocumentsDirect opens the store read path without the full
// pipeline.
func countDocumentsDirect(ctx context.Context, dataDir string) (int, error) {
	st, err := store.New(store.Options{Path: filepath.Join(dataDir, storeFileName)})
	if err != nil {
		return 0, fmt.Errorf("failed to open index (is the daemon holding it?): %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.OpenAndMigrate(); err != nil {
		return 0, err
	}
	return st.DocumentCount(ctx)
}
