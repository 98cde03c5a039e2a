// Package middleware provides composable middleware for job execution.
//
// A [Middleware] wraps the lane executor a worker invokes for one job.
// Middleware are composed into a chain using [Chain]; the first
// middleware in the slice is the outermost wrapper.
//
//	// logging → recover → executor
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs lane, job ID, duration and outcome
//   - [Recover] converts executor panics into errors
//   - [Timeout] bounds execution time per lane
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records duration and outcome instruments
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        err := next(ctx)
//	        return err
//	    }
//	}
//
// Middleware MUST call next unless intentionally short-circuiting. A
// middleware that short-circuits leaves the job non-terminal; the worker
// then fails it with the returned error.
package middleware
