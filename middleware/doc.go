// Package middleware adapts authcache.Engine to net/http.
//
// # Handlers
//
//   - [ClientIP] stores the request origin in the context so origin throttles
//     and audit events can see it.
//   - [Guard] validates the bearer access token against the password epoch.
//   - [OriginGate] caps requests per origin and answers denied callers with
//     the same response as accepted ones.
//   - [WriteError] maps Engine errors to status codes.
//
// The package does not parse tokens or touch Redis; every decision is made
// by the Engine.
package middleware
