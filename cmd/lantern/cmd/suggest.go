package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/config"
	"github.com/lanternsearch/lantern/internal/daemon"
	"github.com/lanternsearch/lantern/internal/search"
)

// newSuggestCmd creates the suggest command.
func newSuggestCmd() *cobra.Command {
	var limit int
	var typing bool
	var jsonOutput bool
	var offline bool
	var sources []string

	cmd := &cobra.Command{
		Use:   "suggest <query>",
		Short: "Query the document index",
		Long: `Suggest runs one query against the index and prints the ranked
results. It talks to the running daemon when there is one; otherwise
it opens the index directly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSuggest(cmd.Context(), query, limit, typing, jsonOutput, offline, sources)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().BoolVar(&typing, "typing", false, "Rank for as-you-type completion (similarity over recency)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama probe)")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "Restrict results to these source types")

	return cmd
}

func runSuggest(ctx context.Context, query string, limit int, typing, jsonOutput, offline bool, sources []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := suggestViaDaemonOrLocal(ctx, cfg, query, limit, typing, offline, sources)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	printSuggestions(query, resp)
	return nil
}

func suggestViaDaemonOrLocal(ctx context.Context, cfg *config.Config, query string, limit int, typing, offline bool, sources []string) (*search.Response, error) {
	client := daemonClient(cfg)
	if client.IsRunning() {
		resp, err := client.Suggest(ctx, daemon.SuggestParams{
			Query:   query,
			Limit:   limit,
			Typing:  typing,
			Sources: sources,
		})
		if err == nil {
			return resp, nil
		}
		// Daemon reachable but failing: fall through to in-process.
	}

	s, err := buildStack(ctx, cfg, stackOptions{Offline: offline, SkipPreflight: true})
	if err != nil {
		return nil, err
	}
	defer s.close()

	return s.service.Suggest(ctx, search.Request{
		Query:         query,
		Limit:         limit,
		TypingMode:    typing,
		SourceFilters: sources,
	})
}

// printSuggestions renders results for a terminal.
func printSuggestions(query string, resp *search.Response) {
	if len(resp.Suggestions) == 0 {
		fmt.Printf("No results for %q.\n", query)
		return
	}

	fmt.Printf("%d result(s) for %q (%s):\n\n", len(resp.Suggestions), query, resp.Elapsed.Round(time.Millisecond))
	for i, sug := range resp.Suggestions {
		if sug == nil {
			continue
		}
		title := sug.Title
		if title == "" {
			title = sug.Path
		}
		if sug.IsDirectory {
			fmt.Printf("%2d. %s/ (%d matching documents)\n", i+1, title, sug.MemberCount)
		} else {
			fmt.Printf("%2d. %s (%.2f)\n", i+1, title, sug.Score)
		}
		fmt.Printf("    %s\n", sug.Path)
		if snippet := strings.TrimSpace(sug.Snippet); snippet != "" {
			fmt.Printf("    %s\n", firstLine(snippet))
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
