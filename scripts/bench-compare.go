//go:build ignore

// Command bench-compare diffs two `go test -bench` output files and fails
// when a benchmark regressed.
//
// Typical use:
//
//	go test -bench . -benchmem ./... > /tmp/current.txt
//	go run scripts/bench-compare.go /tmp/current.txt bench-baseline.txt
//
// A benchmark whose ns/op grew by more than the threshold (20% by default)
// exits with code 1 so CI can gate on it. Use -json for machine-readable
// output.
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
	defaultThreshold = 0.20

	// improvementCutoff marks runs at least this much faster as improved.
	improvementCutoff = 0.10
)

var (
	jsonOut   = flag.Bool("json", false, "emit the report as JSON")
	threshold = flag.Float64("threshold", defaultThreshold, "regression threshold as a fraction (0.2 = 20%)")
	verbose   = flag.Bool("verbose", false, "list every benchmark, not just regressions and improvements")
	failHard  = flag.Bool("fail", true, "exit 1 when a regression is found")
)

type measurement struct {
	Name        string  `json:"name"`
	Iterations  int     `json:"iterations"`
	NsPerOp     float64 `json:"ns_per_op"`
	BytesPerOp  int     `json:"bytes_per_op,omitempty"`
	AllocsPerOp int     `json:"allocs_per_op,omitempty"`
	Metric      string  `json:"metric,omitempty"`
	MetricValue float64 `json:"metric_value,omitempty"`
}

type comparison struct {
	Name     string  `json:"name"`
	Current  float64 `json:"current_ns_per_op"`
	Baseline float64 `json:"baseline_ns_per_op,omitempty"`
	DeltaPct float64 `json:"delta_percent"`
	Status   string  `json:"status"`
}

type report struct {
	Total        int           `json:"total_benchmarks"`
	Regressions  int           `json:"regressions"`
	Improvements int           `json:"improvements"`
	Unchanged    int           `json:"unchanged"`
	New          int           `json:"new_benchmarks"`
	Missing      int           `json:"missing_benchmarks"`
	Comparisons  []*comparison `json:"results"`
	Failed       bool          `json:"failed"`
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <current.txt> <baseline.txt>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	current, err := readBenchFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
	baseline, err := readBenchFile(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", flag.Arg(1), err)
		os.Exit(1)
	}

	rep := compare(current, baseline, *threshold)

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
			os.Exit(1)
		}
	} else {
		printReport(rep)
	}

	if *failHard && rep.Failed {
		os.Exit(1)
	}
}

func readBenchFile(path string) (map[string]*measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]*measurement)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if m := parseLine(sc.Text()); m != nil {
			out[m.Name] = m
		}
	}
	return out, sc.Err()
}

// parseLine parses one benchmark result line. After the iteration count the
// line is value/unit pairs; custom metrics from b.ReportMetric land between
// ns/op and the -benchmem columns, so units are matched by name rather than
// by position.
func parseLine(line string) *measurement {
	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.HasPrefix(fields[0], "Benchmark") {
		return nil
	}
	iters, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil
	}
	m := &measurement{Name: fields[0], Iterations: iters}
	for i := 2; i+1 < len(fields); i += 2 {
		val := fields[i]
		switch unit := fields[i+1]; unit {
		case "ns/op":
			m.NsPerOp, _ = strconv.ParseFloat(val, 64)
		case "B/op":
			m.BytesPerOp, _ = strconv.Atoi(val)
		case "allocs/op":
			m.AllocsPerOp, _ = strconv.Atoi(val)
		default:
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				m.Metric = unit
				m.MetricValue = v
			}
		}
	}
	if m.NsPerOp == 0 {
		return nil
	}
	return m
}

func compare(current, baseline map[string]*measurement, threshold float64) *report {
	rep := &report{}

	for name, cur := range current {
		rep.Total++

		base, ok := baseline[name]
		if !ok {
			rep.New++
			if *verbose {
				rep.Comparisons = append(rep.Comparisons, &comparison{Name: name, Current: cur.NsPerOp, Status: "new"})
			}
			continue
		}

		var delta float64
		if base.NsPerOp > 0 {
			delta = (cur.NsPerOp - base.NsPerOp) / base.NsPerOp
		}

		c := &comparison{
			Name:     name,
			Current:  cur.NsPerOp,
			Baseline: base.NsPerOp,
			DeltaPct: delta * 100,
		}

		switch {
		case delta > threshold:
			c.Status = "regression"
			rep.Regressions++
			rep.Failed = true
		case delta < -improvementCutoff:
			c.Status = "improved"
			rep.Improvements++
		default:
			c.Status = "ok"
			rep.Unchanged++
		}

		if c.Status != "ok" || *verbose {
			rep.Comparisons = append(rep.Comparisons, c)
		}
	}

	for name, base := range baseline {
		if _, ok := current[name]; !ok {
			rep.Missing++
			if *verbose {
				rep.Comparisons = append(rep.Comparisons, &comparison{Name: name, Baseline: base.NsPerOp, Status: "missing"})
			}
		}
	}

	// Map iteration order is random; sort so diffs between runs are stable.
	sort.Slice(rep.Comparisons, func(i, j int) bool {
		return rep.Comparisons[i].Name < rep.Comparisons[j].Name
	})

	return rep
}

func printReport(rep *report) {
	fmt.Printf("benchmarks: %d  regressions: %d  improved: %d  unchanged: %d  new: %d  missing: %d\n\n",
		rep.Total, rep.Regressions, rep.Improvements, rep.Unchanged, rep.New, rep.Missing)

	if len(rep.Comparisons) > 0 {
		fmt.Printf("%-55s %12s %12s %9s  %s\n", "BENCHMARK", "CURRENT", "BASELINE", "DELTA", "STATUS")
		fmt.Println(strings.Repeat("-", 100))
		for _, c := range rep.Comparisons {
			name := c.Name
			if len(name) > 55 {
				name = name[:52] + "..."
			}
			fmt.Printf("%-55s %12s %12s %9s  %s\n", name, fmtNs(c.Current), fmtNs(c.Baseline), fmtDelta(c), c.Status)
		}
		fmt.Println()
	}

	if rep.Failed {
		fmt.Printf("FAIL: %d benchmark(s) slower than baseline by more than %.0f%%\n", rep.Regressions, *threshold*100)
	} else {
		fmt.Println("PASS: no regressions above threshold")
	}
}

func fmtNs(v float64) string {
	if v <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.0f ns", v)
}

func fmtDelta(c *comparison) string {
	if c.Current <= 0 || c.Baseline <= 0 {
		return "-"
	}
	return fmt.Sprintf("%+.1f%%", c.DeltaPct)
}
