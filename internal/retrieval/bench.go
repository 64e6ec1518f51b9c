package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lanternsearch/lantern/internal/search"
)

// RunBenchmarkSample executes the given queries against the live
// index, sequentially, and reports each query's suggest latency in
// milliseconds, keyed by the query text. Each query flows through the
// full suggest path so the numbers reflect what an interactive caller
// would see. Failed queries are logged and omitted from the report.
func (s *Service) RunBenchmarkSample(ctx context.Context, queries []string) (map[string]float64, error) {
	if len(queries) == 0 {
		return nil, fmt.Errorf("retrieval: benchmark needs at least one query")
	}

	s.setOperation("benchmark")
	defer s.setOperation("")

	report := make(map[string]float64, len(queries))
	latencies := make([]time.Duration, 0, len(queries))

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := s.now()
		_, err := s.engine.Suggest(ctx, search.Request{Query: q})
		elapsed := s.now().Sub(start)
		if err != nil {
			slog.Warn("benchmark_query_failed",
				slog.String("query", q),
				slog.String("error", err.Error()))
			continue
		}
		report[q] = toMillis(elapsed)
		latencies = append(latencies, elapsed)
	}

	if len(report) == 0 {
		return nil, fmt.Errorf("retrieval: all benchmark queries failed")
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	slog.Info("benchmark_complete",
		slog.Int("queries", len(latencies)),
		slog.Float64("p50_ms", toMillis(percentile(latencies, 0.50))),
		slog.Float64("p95_ms", toMillis(percentile(latencies, 0.95))))
	return report, nil
}

// percentile picks from a sorted slice using the nearest-rank method.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p * float64(len(sorted)))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
