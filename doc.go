// Package authcache is an in-process security cache layer for authentication
// services. It invalidates issued access tokens the moment a password
// changes, throttles login and password-change attempts per identity and per
// network origin, and caps signup and forgot-password requests per origin.
//
// An [Engine] is assembled once with [New] and shared by every handler:
//
//	engine, err := authcache.New().
//		WithConfig(cfg).
//		WithUserProvider(users).
//		Build()
//
// # Token validity
//
// Each user has a password epoch: the Unix second of the last password
// change, or account creation when none is recorded. A token is valid only if
// its iat is at or after the epoch. Epochs are cached per process and only
// move forward; an out-of-order write older than the cached value is logged
// and ignored. When the durable store cannot supply an epoch the configured
// [FailurePolicy] decides the outcome.
//
// # Throttling
//
// Login and password-change checks consult two counters at once, one keyed
// by identity and one by client IP (see [WithClientIP]). The most restrictive
// answer wins. Origin counters are active when
// SecurityConfig.OriginThrottleEnabled reports true, which by default follows
// ProductionMode. With [Builder.WithRedis] the counters are shared across
// instances; otherwise each process enforces its own limits.
//
// Engine methods are safe for concurrent use.
package authcache
