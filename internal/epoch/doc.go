// Package epoch implements the token-validity cache: a per-user password
// epoch below which issued tokens are rejected.
//
// Writes go through a single atomic compare-and-write, so two racing password
// changes cannot let the older one overwrite the newer one. The cache is
// per-process; instances of a multi-node deployment each reload from the
// durable store at most once per TTL.
package epoch
