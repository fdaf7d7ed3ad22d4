package authcache

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an Engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordChangeReuseRejected
	MetricPasswordChangeRateLimited
	MetricSignupSuccess
	MetricSignupDuplicate
	MetricSignupRateLimited
	MetricPasswordResetRequest
	MetricPasswordResetRateLimited
	MetricTokenValid
	MetricTokenInvalid
	MetricTokenRevoked
	// MetricTokenDegraded counts tokens accepted under FailOpen without an epoch check.
	MetricTokenDegraded
	MetricEpochLoadFailure
	MetricEpochStaleWrite
	MetricEpochCacheHit
	MetricEpochCacheMiss
	MetricEpochCacheEviction
	MetricEpochCacheExpire
	MetricThrottleCacheEviction
	MetricThrottleBackendError
	MetricDelayApplied
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters. Each counter sits on its own
// cache line.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a counter set. Disabled metrics accept calls and record nothing.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the latency histogram of id. Only
// MetricValidateLatency carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current count of id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Disabled metrics yield empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricValidateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

// cacheObserver feeds ttlcache lifecycle events into Metrics.
type cacheObserver struct {
	metrics  *Metrics
	hit      MetricID
	miss     MetricID
	eviction MetricID
	expire   MetricID
	track    bool // false: only evictions are counted
}

func (o cacheObserver) Hit() {
	if o.track {
		o.metrics.Inc(o.hit)
	}
}

func (o cacheObserver) Miss() {
	if o.track {
		o.metrics.Inc(o.miss)
	}
}

func (o cacheObserver) Eviction() {
	o.metrics.Inc(o.eviction)
}

func (o cacheObserver) Expire() {
	if o.track {
		o.metrics.Inc(o.expire)
	}
}

func epochObserver(m *Metrics) cacheObserver {
	return cacheObserver{
		metrics:  m,
		hit:      MetricEpochCacheHit,
		miss:     MetricEpochCacheMiss,
		eviction: MetricEpochCacheEviction,
		expire:   MetricEpochCacheExpire,
		track:    true,
	}
}

func throttleObserver(m *Metrics) cacheObserver {
	return cacheObserver{metrics: m, eviction: MetricThrottleCacheEviction}
}
