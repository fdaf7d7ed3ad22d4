package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultTracked = "BenchmarkValidate:ns/op,BenchmarkValidate:allocs/op," +
	"BenchmarkValidateParallel:ns/op,BenchmarkCheckLogin:ns/op," +
	"BenchmarkGetHit:ns/op,BenchmarkRender:ns/op"

// tracked maps a benchmark name to the units compared for it.
type tracked map[string][]string

// samples maps benchmark -> unit -> values, one per -count run.
type samples map[string]map[string][]float64

type result struct {
	benchmark string
	unit      string
	baseline  float64
	candidate float64
	delta     float64
}

func parseTracked(raw string) (tracked, error) {
	out := tracked{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, unit, ok := strings.Cut(pair, ":")
		if !ok || !strings.HasPrefix(name, "Benchmark") || unit == "" {
			return nil, fmt.Errorf("bad pair %q", pair)
		}
		out[name] = append(out[name], unit)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("nothing to track")
	}
	return out, nil
}

func parseBenchmarkFile(path string, t tracked) (samples, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return parseBenchmarks(file, t)
}

func parseBenchmarks(r io.Reader, t tracked) (samples, error) {
	out := samples{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "Benchmark") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}

		name := normalizeBenchmarkName(fields[0])
		if _, ok := t[name]; !ok {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = map[string][]float64{}
		}

		// fields[1] is the iteration count; value/unit pairs follow
		for i := 2; i+1 < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				continue
			}
			out[name][fields[i+1]] = append(out[name][fields[i+1]], value)
		}
	}
	return out, scanner.Err()
}

func compare(baseline, candidate samples, t tracked, threshold float64) ([]result, []string) {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		results  []result
		failures []string
	)
	for _, name := range names {
		for _, unit := range t[name] {
			base := baseline[name][unit]
			cand := candidate[name][unit]
			if len(base) == 0 || len(cand) == 0 {
				failures = append(failures, fmt.Sprintf("missing samples for %s %s", name, unit))
				continue
			}

			baseMedian := median(base)
			candMedian := median(cand)
			if baseMedian <= 0 {
				// allocs/op can legitimately be zero
				if candMedian > 0 {
					failures = append(failures, fmt.Sprintf("%s %s rose from 0 to %.3f", name, unit, candMedian))
				}
				results = append(results, result{benchmark: name, unit: unit, baseline: baseMedian, candidate: candMedian})
				continue
			}

			delta := (candMedian - baseMedian) / baseMedian
			results = append(results, result{benchmark: name, unit: unit, baseline: baseMedian, candidate: candMedian, delta: delta})
			if delta > threshold {
				failures = append(failures, fmt.Sprintf("%s %s regressed by %+0.2f%% (limit %+0.2f%%)", name, unit, delta*100, threshold*100))
			}
		}
	}
	return results, failures
}

func normalizeBenchmarkName(raw string) string {
	if idx := strings.LastIndexByte(raw, '-'); idx > 0 {
		if _, err := strconv.Atoi(raw[idx+1:]); err == nil {
			return raw[:idx]
		}
	}
	return raw
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
