// Package ttlcache provides the bounded, write-through-expiry keyed cache that
// every throttle and the token-validity cache are built on.
//
// # Expiry
//
// An entry lives for TTL after its last write. Reads never extend it, so a hot
// key is still reloaded from its source once per TTL.
//
// # Loading
//
// [Cache.Get] calls the configured [Loader] on a miss. Concurrent misses for a
// key share one call; a value written by [Cache.Set] or [Cache.Update] while a
// load is in flight wins over the loaded value.
//
// # What this package must NOT do
//
//   - Hold its mutex while a loader runs.
//   - Know anything about users, tokens, or throttling policy.
package ttlcache
