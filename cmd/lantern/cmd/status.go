package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/config"
	"github.com/lanternsearch/lantern/internal/ui"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and daemon status",
		Long: `Status reports the state of the index on disk and, when the
daemon is running, its live ingestion counters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(ctx context.Context, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info := collectStatus(ctx, cfg)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	renderer := ui.NewStatusRenderer(os.Stdout, ui.DetectNoColor())
	return renderer.Render(info)
}

// collectStatus gathers on-disk sizes and, when reachable, the live
// daemon snapshot.
func collectStatus(ctx context.Context, cfg *config.Config) ui.StatusInfo {
	info := ui.StatusInfo{
		DataDir:       cfg.DataDir,
		DaemonStatus:  "stopped",
		WatcherStatus: "n/a",
	}

	info.MetadataSize = fileSize(filepath.Join(cfg.DataDir, storeFileName))
	info.FTSSize = dirSize(filepath.Join(cfg.DataDir, "bleve"))
	info.VectorSize = fileSize(filepath.Join(cfg.DataDir, vectorFileName))
	info.TotalSize = info.MetadataSize + info.FTSSize + info.VectorSize

	info.EmbedderType = cfg.Embeddings.Provider
	if info.EmbedderType == "" {
		info.EmbedderType = "auto"
	}
	info.EmbedderModel = cfg.Embeddings.Model

	client := daemonClient(cfg)
	if !client.IsRunning() {
		info.EmbedderStatus = "offline"
		return info
	}

	status, err := client.Status(ctx)
	if err != nil {
		info.DaemonStatus = "unreachable"
		return info
	}

	info.DaemonStatus = "running"
	if status.Paused {
		info.DaemonStatus = "paused"
	}
	info.WatcherStatus = "running"
	info.EmbedderStatus = "ready"
	info.TotalDocuments = status.TotalDocuments
	for _, c := range status.Sources {
		info.TotalFiles += c.EventsProcessed
	}
	return info
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

// dirSize totals a directory tree; 0 when absent.
func dirSize(root string) int64 {
	var total int64
	_ = filepath.Walk(root, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !fi.IsDir() {
			total += fi.Size()
		}
		return nil
	})
	return total
}
