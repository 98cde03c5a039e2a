// Package observability provides a metrics extension for lanes. The
// MetricsExtension implements lifecycle hooks to record system-wide
// counters for job admission, start, progress, completion, failure,
// cancellation, rejection and eviction.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
