// Package store provides the keyed record stores behind the attempt throttles
// and origin limiters.
//
// [Memory] keeps records in the process. [Redis] shares them across instances
// so lockouts hold cluster-wide; it is selected when the engine is built with a
// Redis client.
//
// Both implementations give per-key atomic read-modify-write through Update.
package store
