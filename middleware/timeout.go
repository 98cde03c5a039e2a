package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/tavlicon/lanes/job"
)

// Timeout returns middleware that enforces a per-lane execution deadline.
// Lanes missing from limits, or mapped to a non-positive duration, run
// without a deadline. Cancellation is cooperative: an executor that
// ignores its context keeps running past the deadline.
func Timeout(logger *slog.Logger, limits map[job.Lane]time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d := limits[j.Lane]; d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
