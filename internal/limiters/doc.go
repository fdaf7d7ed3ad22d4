// Package limiters provides the two throttling algorithms of the cache layer,
// both built on internal/store.
//
// # Limiters
//
//   - [AttemptThrottle] is a failure counter with lockout and a delay curve, used
//     for login and password-change attempts.
//   - [OriginLimiter] is a fixed-window request cap per origin, used for signup
//     and forgot-password requests.
//
// All limiters are nil-safe: a nil receiver allows everything.
//
// # What this package must NOT do
//
//   - Combine identity and origin decisions (that lives in internal/rate).
//   - Decide how a denial is reported to the client.
package limiters
