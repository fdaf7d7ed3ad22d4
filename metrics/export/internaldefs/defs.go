package internaldefs

import (
	"github.com/MrEthical07/authcache"
)

// CounterDef names one Engine counter.
type CounterDef struct {
	ID   authcache.MetricID
	Name string
	Help string
}

// HistogramDef names one Engine latency histogram.
type HistogramDef struct {
	ID   authcache.MetricID
	Name string
	Help string
}

// GaugeDef names a value read directly from the Engine on each scrape.
type GaugeDef struct {
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcache.MetricLoginSuccess, Name: "authcache_login_success_total", Help: "Successful logins."},
	{ID: authcache.MetricLoginFailure, Name: "authcache_login_failure_total", Help: "Failed logins, unknown identifiers included."},
	{ID: authcache.MetricLoginRateLimited, Name: "authcache_login_rate_limited_total", Help: "Logins denied by the attempt throttle."},
	{ID: authcache.MetricPasswordChangeSuccess, Name: "authcache_password_change_success_total", Help: "Successful password changes."},
	{ID: authcache.MetricPasswordChangeInvalidOld, Name: "authcache_password_change_invalid_old_total", Help: "Password changes with a wrong current password."},
	{ID: authcache.MetricPasswordChangeReuseRejected, Name: "authcache_password_change_reuse_rejected_total", Help: "Password changes rejected for reusing the current password."},
	{ID: authcache.MetricPasswordChangeRateLimited, Name: "authcache_password_change_rate_limited_total", Help: "Password changes denied by the attempt throttle."},
	{ID: authcache.MetricSignupSuccess, Name: "authcache_signup_success_total", Help: "Accounts created."},
	{ID: authcache.MetricSignupDuplicate, Name: "authcache_signup_duplicate_total", Help: "Signups rejected as duplicate."},
	{ID: authcache.MetricSignupRateLimited, Name: "authcache_signup_rate_limited_total", Help: "Signups denied by the origin limiter."},
	{ID: authcache.MetricPasswordResetRequest, Name: "authcache_password_reset_request_total", Help: "Forgot-password requests accepted."},
	{ID: authcache.MetricPasswordResetRateLimited, Name: "authcache_password_reset_rate_limited_total", Help: "Forgot-password requests denied by the origin limiter."},
	{ID: authcache.MetricTokenValid, Name: "authcache_token_valid_total", Help: "Tokens accepted after the epoch check."},
	{ID: authcache.MetricTokenInvalid, Name: "authcache_token_invalid_total", Help: "Tokens that failed to parse or verify."},
	{ID: authcache.MetricTokenRevoked, Name: "authcache_token_revoked_total", Help: "Tokens issued before the last password change."},
	{ID: authcache.MetricTokenDegraded, Name: "authcache_token_degraded_total", Help: "Tokens accepted without an epoch check under fail-open."},
	{ID: authcache.MetricEpochLoadFailure, Name: "authcache_epoch_load_failure_total", Help: "Password epoch loads that failed."},
	{ID: authcache.MetricEpochStaleWrite, Name: "authcache_epoch_stale_write_total", Help: "Epoch writes rejected as older than the cached value."},
	{ID: authcache.MetricEpochCacheHit, Name: "authcache_epoch_cache_hit_total", Help: "Epoch cache hits."},
	{ID: authcache.MetricEpochCacheMiss, Name: "authcache_epoch_cache_miss_total", Help: "Epoch cache misses."},
	{ID: authcache.MetricEpochCacheEviction, Name: "authcache_epoch_cache_eviction_total", Help: "Epoch entries evicted at capacity."},
	{ID: authcache.MetricEpochCacheExpire, Name: "authcache_epoch_cache_expire_total", Help: "Epoch entries dropped after their TTL."},
	{ID: authcache.MetricThrottleCacheEviction, Name: "authcache_throttle_cache_eviction_total", Help: "Throttle records evicted at capacity."},
	{ID: authcache.MetricThrottleBackendError, Name: "authcache_throttle_backend_error_total", Help: "Throttle store errors."},
	{ID: authcache.MetricDelayApplied, Name: "authcache_delay_applied_total", Help: "Failures answered with a progressive delay."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcache.MetricValidateLatency, Name: "authcache_validate_latency_seconds", Help: "Validate latency."},
}

var EpochCacheEntries = GaugeDef{Name: "authcache_epoch_cache_entries", Help: "Password epochs held in memory."}

var AuditDropped = CounterDef{Name: "authcache_audit_dropped_total", Help: "Audit events dropped because the dispatcher queue was full."}

// HistogramBounds are the upper bounds of the Engine's latency buckets, in
// seconds. HistogramBoundSuffix is the same list made safe for instrument names.
var (
	HistogramBounds      = []string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}
	HistogramBoundSuffix = []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}
)

const BucketCount = 8

// CumulativeBuckets turns per-bucket counts into the running totals both
// exposition formats expect. Missing buckets count as zero.
func CumulativeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
