// Package otel publishes authcache Engine metrics through an OpenTelemetry
// Meter. Every counter becomes an Int64ObservableCounter, the latency
// histogram becomes one cumulative gauge per bucket, and a single callback
// reads the Engine snapshot on each collection. The caller owns the
// MeterProvider.
package otel
