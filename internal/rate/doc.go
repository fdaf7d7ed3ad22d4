// Package rate composes an identity-scoped and an origin-scoped attempt
// throttle into one most-restrictive decision.
//
// # Composition
//
//   - Check: deny if either side denies (longest RetryAfter wins when both do);
//     otherwise report the smaller remaining budget.
//   - RecordFailure: count on both sides; delay follows the larger count.
//   - The origin side is skipped when disabled or when no origin is known.
//
// # What this package must NOT do
//
//   - Own any storage (the throttles do).
//   - Be imported outside the authcache module.
package rate
