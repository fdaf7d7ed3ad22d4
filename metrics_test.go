package authcache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("expected empty snapshot when disabled")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricTokenValid)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricTokenValid); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	} {
		m.Observe(MetricValidateLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Millisecond) // no histogram, ignored

	buckets := m.Snapshot().Histograms[MetricValidateLatency]
	if len(buckets) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestCacheObserverFeedsEpochCounters(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	uid := te.signup(t, "pat@example.com", "correct-password-1")

	if _, err := te.ValidateTokenEpoch(ctx, uid, te.clock.Now()); err != nil {
		t.Fatalf("validate epoch failed: %v", err)
	}
	te.clock.Advance(25 * time.Hour)
	if _, err := te.ValidateTokenEpoch(ctx, uid, te.clock.Now()); err != nil {
		t.Fatalf("validate epoch failed: %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricEpochCacheHit] == 0 {
		t.Fatal("expected epoch cache hits")
	}
	if snap.Counters[MetricEpochCacheMiss] == 0 {
		t.Fatal("expected epoch cache misses")
	}
	if snap.Counters[MetricEpochCacheExpire] != 1 {
		t.Fatalf("expected one expiry, got %d", snap.Counters[MetricEpochCacheExpire])
	}
}
