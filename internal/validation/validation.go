// Package validation provides a data-driven quality harness for the
// suggest pipeline. Queries live in testdata/queries.yaml so the corpus
// of checks can grow without rebuilding the binary; they run against
// the MCP tool surface, the same path AI clients use.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// QuerySpec defines one validation query with expected results.
type QuerySpec struct {
	ID       string   `yaml:"id"`       // e.g. "S-Q3"
	Name     string   `yaml:"name"`     // Human-readable name
	Query    string   `yaml:"query"`    // The suggest query
	Expected []string `yaml:"expected"` // Path fragments that should appear in results
	Notes    string   `yaml:"notes"`    // Optional explanation for maintainers
	Negative bool     `yaml:"-"`        // Set programmatically for the negative section
}

// QueryConfig holds all validation queries loaded from YAML.
type QueryConfig struct {
	// Smoke queries must always pass: exact-title and keyword lookups.
	Smoke []QuerySpec `yaml:"smoke"`
	// Quality queries exercise semantic and graph ranking.
	Quality []QuerySpec `yaml:"quality"`
	// Negative queries only need to not crash or hang.
	Negative []QuerySpec `yaml:"negative"`
}

var (
	queriesOnce sync.Once
	queriesData *QueryConfig
	queriesErr  error
)

// LoadQueries loads validation queries from testdata/queries.yaml.
// Results are cached after first load.
func LoadQueries() (*QueryConfig, error) {
	queriesOnce.Do(func() {
		_, filename, _, ok := runtime.Caller(0)
		if !ok {
			queriesErr = fmt.Errorf("failed to get current file path")
			return
		}

		path := filepath.Join(filepath.Dir(filename), "testdata", "queries.yaml")
		data, err := os.ReadFile(path)
		if err != nil {
			queriesErr = fmt.Errorf("failed to read queries file %s: %w", path, err)
			return
		}

		var cfg QueryConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			queriesErr = fmt.Errorf("failed to parse queries YAML: %w", err)
			return
		}

		for i := range cfg.Negative {
			cfg.Negative[i].Negative = true
		}
		queriesData = &cfg
	})

	return queriesData, queriesErr
}

// ResetQueries clears the cached queries (for testing).
func ResetQueries() {
	queriesOnce = sync.Once{}
	queriesData = nil
	queriesErr = nil
}

// TestResult captures the outcome of a single query check.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ms"`
	TopResults []string      `json:"top_results"` // Paths returned
	MatchedAt  int           `json:"matched_at"`  // Position of first match (-1 if not found)
	Error      string        `json:"error,omitempty"`
}

// RunResult captures the results of a full validation run.
type RunResult struct {
	Timestamp    time.Time    `json:"timestamp"`
	Smoke        []TestResult `json:"smoke"`
	Quality      []TestResult `json:"quality"`
	Negative     []TestResult `json:"negative"`
	SmokePass    int          `json:"smoke_pass"`
	SmokeTotal   int          `json:"smoke_total"`
	QualityPass  int          `json:"quality_pass"`
	QualityTotal int          `json:"quality_total"`
	NegPass      int          `json:"negative_pass"`
	NegTotal     int          `json:"negative_total"`
}

// Passed reports whether every smoke and negative check passed.
// Quality checks are advisory: they gate ranking regressions in CI
// dashboards, not the run itself.
func (r *RunResult) Passed() bool {
	return r.SmokePass == r.SmokeTotal && r.NegPass == r.NegTotal
}

// ToolCaller is the slice of the MCP server the validator needs.
// *mcp.Server satisfies it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Validator runs validation queries against the MCP tool surface.
type Validator struct {
	server ToolCaller
}

// NewValidator creates a validator over an MCP server.
func NewValidator(server ToolCaller) (*Validator, error) {
	if server == nil {
		return nil, fmt.Errorf("validation: mcp server is required")
	}
	return &Validator{server: server}, nil
}

// RunQuery executes a single query and returns the result.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{
		Spec:      spec,
		MatchedAt: -1,
	}

	args := map[string]any{
		"query": spec.Query,
		"limit": float64(10),
	}

	resp, err := v.server.CallTool(ctx, "suggest", args)
	result.Duration = time.Since(start)

	if err != nil {
		// Negative queries may legitimately be rejected.
		if spec.Negative {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.TopResults = extractPaths(resp)

	if len(spec.Expected) == 0 {
		// Nothing expected: the query just needs to settle cleanly.
		result.Passed = true
	} else {
		result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	}

	return result
}

// RunAll executes all validation queries and returns aggregated results.
func (v *Validator) RunAll(ctx context.Context) (*RunResult, error) {
	cfg, err := LoadQueries()
	if err != nil {
		return nil, err
	}

	result := &RunResult{Timestamp: time.Now()}

	for _, spec := range cfg.Smoke {
		tr := v.RunQuery(ctx, spec)
		result.Smoke = append(result.Smoke, tr)
		result.SmokeTotal++
		if tr.Passed {
			result.SmokePass++
		}
	}

	for _, spec := range cfg.Quality {
		tr := v.RunQuery(ctx, spec)
		result.Quality = append(result.Quality, tr)
		result.QualityTotal++
		if tr.Passed {
			result.QualityPass++
		}
	}

	for _, spec := range cfg.Negative {
		tr := v.RunQuery(ctx, spec)
		result.Negative = append(result.Negative, tr)
		result.NegTotal++
		if tr.Passed {
			result.NegPass++
		}
	}

	return result, nil
}

// extractPaths pulls document paths out of the suggest tool's markdown
// output. Paths render as backtick-wrapped code spans, one per result.
func extractPaths(markdown string) []string {
	var paths []string
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "`") || !strings.HasSuffix(line, "`") || len(line) < 3 {
			continue
		}
		path := strings.Trim(line, "`")
		if strings.Contains(path, "/") {
			paths = append(paths, path)
		}
	}
	return paths
}

// checkExpected verifies whether any expected fragment appears in the
// results, returning the position of the first match.
func checkExpected(results []string, expected []string) (bool, int) {
	for i, path := range results {
		for _, exp := range expected {
			if strings.HasPrefix(path, exp) || strings.Contains(path, exp) {
				return true, i
			}
		}
	}
	return false, -1
}
