// Package metric provides Prometheus metrics for Quartzite catch-up.
//
// It exposes counters for pulled files and bytes, retry and dedup activity,
// install durations, and gauges for slots currently in a non-null catch-up
// state.
package metric
