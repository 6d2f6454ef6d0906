// Package metrics exposes Prometheus collectors for the Stackdock engine.
//
// Collectors are registered at package init and cover the three layers with
// real behavior: the command executor (invocation counts and latency), the
// discovery cache (hits, misses, stale serves, refresh duration) and the
// operation service (per-verb counts, durations, in-flight gauge). The event
// bridge reports how each incoming Docker event was dispositioned, which is
// the first place to look when refresh traffic seems too high or too low.
//
// Handler returns the http.Handler to mount at /metrics.
package metrics
