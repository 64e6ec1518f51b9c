//go:build ignore

// Compares two `go test -bench` output files and flags regressions.
// Usage: go run scripts/bench-compare.go [options] <current.txt> <baseline.txt>
//
// A benchmark counts as regressed when its ns/op grows by more than
// the threshold (default 20%). Exit code 1 on regression unless -fail
// is disabled.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultThreshold     = 0.20 // max allowed slowdown
	improvementThreshold = 0.10 // highlight speedups beyond this
)

var (
	outputJSON    = flag.Bool("json", false, "Emit the report as JSON")
	threshold     = flag.Float64("threshold", defaultThreshold, "Regression threshold (fraction of baseline)")
	verbose       = flag.Bool("verbose", false, "Include unchanged, new, and missing benchmarks")
	failOnRegress = flag.Bool("fail", true, "Exit non-zero when a regression is found")
)

// benchResult holds one parsed benchmark line.
type benchResult struct {
	Name        string  `json:"name"`
	Iterations  int     `json:"iterations"`
	NsPerOp     float64 `json:"ns_per_op"`
	BytesPerOp  float64 `json:"bytes_per_op,omitempty"`
	AllocsPerOp float64 `json:"allocs_per_op,omitempty"`
}

// comparison pairs a benchmark's current and baseline timings.
type comparison struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current_ns_per_op"`
	Baseline float64 `json:"baseline_ns_per_op"`
	DeltaPct float64 `json:"delta_percent"`
	Status   string  `json:"status"` // ok, regression, improved, new, missing
}

// report summarizes the full comparison.
type report struct {
	Total        int           `json:"total_benchmarks"`
	Regressions  int           `json:"regressions"`
	Improvements int           `json:"improvements"`
	Unchanged    int           `json:"unchanged"`
	New          int           `json:"new_benchmarks"`
	Missing      int           `json:"missing_benchmarks"`
	Failed       bool          `json:"regression_failed"`
	Results      []*comparison `json:"results"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(1)
	}

	current, err := parseBenchFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := parseBenchFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := buildReport(current, baseline, *threshold)

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if *failOnRegress && rep.Failed {
		os.Exit(1)
	}
}

func parseBenchFile(path string) (map[string]*benchResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	results := make(map[string]*benchResult)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if r := parseBenchLine(scanner.Text()); r != nil {
			results[r.Name] = r
		}
	}
	return results, scanner.Err()
}

// parseBenchLine parses one benchmark output line, e.g.
//
//	BenchmarkSuggest/typing-8   1203   985423 ns/op   2048 B/op   31 allocs/op
//
// Values after the iteration count come in value/unit pairs; unknown
// units are skipped.
func parseBenchLine(line string) *benchResult {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return nil
	}

	iterations, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil
	}

	r := &benchResult{Name: fields[0], Iterations: iterations}
	for i := 2; i+1 < len(fields); i += 2 {
		value, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil
		}
		switch fields[i+1] {
		case "ns/op":
			r.NsPerOp = value
		case "B/op":
			r.BytesPerOp = value
		case "allocs/op":
			r.AllocsPerOp = value
		}
	}
	if r.NsPerOp == 0 {
		return nil
	}
	return r
}

func buildReport(current, baseline map[string]*benchResult, threshold float64) *report {
	rep := &report{}

	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		curr := current[name]
		rep.Total++

		base, ok := baseline[name]
		if !ok {
			rep.New++
			if *verbose {
				rep.Results = append(rep.Results, &comparison{Name: name, Current: curr.NsPerOp, Status: "new"})
			}
			continue
		}

		var delta float64
		if base.NsPerOp > 0 {
			delta = (curr.NsPerOp - base.NsPerOp) / base.NsPerOp
		}

		c := &comparison{
			Name:     name,
			Current:  curr.NsPerOp,
			Baseline: base.NsPerOp,
			DeltaPct: delta * 100,
		}
		switch {
		case delta > threshold:
			c.Status = "regression"
			rep.Regressions++
			rep.Failed = true
		case delta < -improvementThreshold:
			c.Status = "improved"
			rep.Improvements++
		default:
			c.Status = "ok"
			rep.Unchanged++
		}

		if c.Status != "ok" || *verbose {
			rep.Results = append(rep.Results, c)
		}
	}

	for name, base := range baseline {
		if _, ok := current[name]; !ok {
			rep.Missing++
			if *verbose {
				rep.Results = append(rep.Results, &comparison{Name: name, Baseline: base.NsPerOp, Status: "missing"})
			}
		}
	}

	return rep
}

func printReport(rep *report) {
	fmt.Println("Benchmark comparison")
	fmt.Printf("  total: %d  regressions: %d (>%.0f%%)  improved: %d  unchanged: %d  new: %d  missing: %d\n\n",
		rep.Total, rep.Regressions, *threshold*100, rep.Improvements, rep.Unchanged, rep.New, rep.Missing)

	if len(rep.Results) > 0 {
		fmt.Printf("%-52s %12s %12s %9s  %s\n", "BENCHMARK", "CURRENT", "BASELINE", "DELTA", "STATUS")
		for _, c := range rep.Results {
			name := c.Name
			if len(name) > 52 {
				name = name[:49] + "..."
			}
			if c.Baseline > 0 && c.Current > 0 {
				fmt.Printf("%-52s %10.0fns %10.0fns %+8.1f%%  %s\n",
					name, c.Current, c.Baseline, c.DeltaPct, strings.ToUpper(c.Status))
			} else {
				fmt.Printf("%-52s %12s %12s %9s  %s\n",
					name, fmtNs(c.Current), fmtNs(c.Baseline), "-", strings.ToUpper(c.Status))
			}
		}
		fmt.Println()
	}

	if rep.Failed {
		fmt.Printf("FAILED: %d benchmark(s) regressed by more than %.0f%%\n", rep.Regressions, *threshold*100)
	} else {
		fmt.Println("PASSED: no significant regressions")
	}
}

func fmtNs(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0fns", v)
}
