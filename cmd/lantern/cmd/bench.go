package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lanternsearch/lantern/internal/daemon"
)

// defaultBenchQueries exercise the main query shapes: short keyword,
// multi-term, and natural-language.
var defaultBenchQueries = []string{
	"budget",
	"meeting notes",
	"quarterly report",
	"project plan timeline",
	"how do I set up my development environment",
}

// newBenchCmd creates the bench command.
func newBenchCmd() *cobra.Command {
	var jsonOutput bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "bench [query ...]",
		Short: "Measure suggest latency against the live index",
		Long: `Bench runs each query through the full suggest path and reports
its latency. Without arguments a default query sample is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := args
			if len(queries) == 0 {
				queries = defaultBenchQueries
			}
			return runBench(cmd.Context(), queries, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip Ollama probe)")

	return cmd
}

func runBench(ctx context.Context, queries []string, jsonOutput, offline bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var report map[string]float64

	client := daemonClient(cfg)
	if client.IsRunning() {
		report, err = client.Bench(ctx, daemon.BenchParams{Queries: queries})
		if err != nil {
			return err
		}
	} else {
		s, buildErr := buildStack(ctx, cfg, stackOptions{Offline: offline, SkipPreflight: true})
		if buildErr != nil {
			return buildErr
		}
		defer s.close()

		report, err = s.service.RunBenchmarkSample(ctx, queries)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printBenchReport(report)
	return nil
}

// printBenchReport renders the per-query latencies, slowest first so
// the problem queries lead.
func printBenchReport(report map[string]float64) {
	queries := make([]string, 0, len(report))
	for q := range report {
		queries = append(queries, q)
	}
	sort.Slice(queries, func(i, j int) bool {
		if report[queries[i]] != report[queries[j]] {
			return report[queries[i]] > report[queries[j]]
		}
		return queries[i] < queries[j]
	})

	fmt.Println("Suggest latency:")
	for _, q := range queries {
		fmt.Printf("  %8.2f ms  %s\n", report[q], q)
	}
}
