package otel

import (
	"context"
	"sync"
	"testing"

	"github.com/MrEthical07/authcache"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot authcache.MetricsSnapshot
	dropped  uint64
	entries  int
}

func (f *fakeSource) MetricsSnapshot() authcache.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := authcache.MetricsSnapshot{
		Counters:   make(map[authcache.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[authcache.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) EpochCacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.entries
}

func newReader(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestExporterCollectsValues(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcache.MetricsSnapshot{
			Counters: map[authcache.MetricID]uint64{
				authcache.MetricTokenRevoked: 3,
			},
			Histograms: map[authcache.MetricID][]uint64{
				authcache.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
		entries: 9,
	}

	exp, err := NewExporter(provider.Meter("authcache-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	got := collect(t, reader)
	checks := map[string]int64{
		"authcache_token_revoked_total":                     3,
		"authcache_login_success_total":                     0,
		"authcache_validate_latency_seconds_bucket_le_inf":  8,
		"authcache_validate_latency_seconds_bucket_le_0_01": 2,
		"authcache_validate_latency_seconds_count":          8,
		"authcache_audit_dropped_total":                     1,
		"authcache_epoch_cache_entries":                     9,
	}
	for name, want := range checks {
		if v, ok := got[name]; !ok || v != want {
			t.Fatalf("%s = %d (present %v), want %d", name, v, ok, want)
		}
	}
}

func TestExporterDisabledMetricsObserveNothing(t *testing.T) {
	reader, provider := newReader(t)
	src := &fakeSource{snapshot: authcache.MetricsSnapshot{}}

	exp, err := NewExporter(provider.Meter("authcache-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("expected no data points, got %v", got)
	}
}

func TestExporterRejectsNilArgs(t *testing.T) {
	_, provider := newReader(t)

	if _, err := NewExporter(provider.Meter("authcache-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewExporter(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newReader(t)

	src := &fakeSource{
		snapshot: authcache.MetricsSnapshot{
			Counters: map[authcache.MetricID]uint64{
				authcache.MetricLoginSuccess: 1,
			},
		},
	}

	exp, err := NewExporter(provider.Meter("authcache-test"), src)
	if err != nil {
		t.Fatalf("NewExporter failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[authcache.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
