package main

import (
	"strings"
	"testing"
)

const baselineOut = `goos: linux
BenchmarkValidate-8    	  500000	      2000 ns/op	     512 B/op	       9 allocs/op
BenchmarkValidate-8    	  500000	      2200 ns/op	     512 B/op	       9 allocs/op
BenchmarkValidate-8    	  500000	      2100 ns/op	     512 B/op	       9 allocs/op
BenchmarkCheckLogin-8  	 1000000	       800 ns/op	      64 B/op	       2 allocs/op
PASS
`

func TestParseBenchmarks(t *testing.T) {
	tr, err := parseTracked("BenchmarkValidate:ns/op,BenchmarkValidate:allocs/op")
	if err != nil {
		t.Fatalf("parseTracked: %v", err)
	}
	got, err := parseBenchmarks(strings.NewReader(baselineOut), tr)
	if err != nil {
		t.Fatalf("parseBenchmarks: %v", err)
	}
	if n := len(got["BenchmarkValidate"]["ns/op"]); n != 3 {
		t.Fatalf("expected 3 ns/op samples, got %d", n)
	}
	if _, ok := got["BenchmarkCheckLogin"]; ok {
		t.Fatal("untracked benchmark parsed")
	}
	if m := median(got["BenchmarkValidate"]["ns/op"]); m != 2100 {
		t.Fatalf("median = %v, want 2100", m)
	}
}

func TestCompareFlagsRegression(t *testing.T) {
	tr, _ := parseTracked("BenchmarkValidate:ns/op,BenchmarkCheckLogin:ns/op")
	base := samples{
		"BenchmarkValidate":   {"ns/op": {2000}},
		"BenchmarkCheckLogin": {"ns/op": {800}},
	}
	cand := samples{
		"BenchmarkValidate":   {"ns/op": {2100}},
		"BenchmarkCheckLogin": {"ns/op": {1200}},
	}

	results, failures := compare(base, cand, tr, 0.30)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "BenchmarkCheckLogin") {
		t.Fatalf("expected CheckLogin regression only, got %v", failures)
	}
}

func TestCompareMissingAndZeroBaseline(t *testing.T) {
	tr, _ := parseTracked("BenchmarkValidate:allocs/op,BenchmarkRender:ns/op")
	base := samples{"BenchmarkValidate": {"allocs/op": {0}}}
	cand := samples{"BenchmarkValidate": {"allocs/op": {1}}}

	_, failures := compare(base, cand, tr, 0.30)
	if len(failures) != 2 {
		t.Fatalf("expected missing-sample and zero-baseline failures, got %v", failures)
	}
}

func TestParseTrackedRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "Validate:ns/op", "BenchmarkX", "BenchmarkX:"} {
		if _, err := parseTracked(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
