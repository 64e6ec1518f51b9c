package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/daemon"
)

// newPurgeCmd creates the purge command.
func newPurgeCmd() *cobra.Command {
	var extensions []string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove documents of the given file extensions from the index",
		Long: `Purge removes every indexed document whose file extension matches
--ext, along with its chunks, vectors, and graph edges. The cached
extraction outcomes are dropped too, so a later backfill re-examines
those files from scratch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(extensions) == 0 {
				return fmt.Errorf("at least one --ext is required")
			}
			return runPurge(cmd.Context(), extensions)
		},
	}

	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to purge (e.g. --ext pdf --ext docx)")

	return cmd
}

func runPurge(ctx context.Context, extensions []string) error {
	for i, ext := range extensions {
		extensions[i] = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := daemonClient(cfg)
	if client.IsRunning() {
		result, err := client.Purge(ctx, daemon.PurgeParams{Extensions: extensions})
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d document(s).\n", result.Removed)
		return nil
	}

	s, err := buildStack(ctx, cfg, stackOptions{Offline: true, SkipPreflight: true})
	if err != nil {
		return err
	}
	defer s.close()

	removed, err := s.service.PurgeExtensions(ctx, extensions)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d document(s).\n", removed)
	return nil
}
