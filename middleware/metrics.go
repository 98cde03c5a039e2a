package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tavlicon/lanes/job"
)

// meterName is the instrumentation scope name for lanes metrics.
const meterName = "github.com/tavlicon/lanes"

// Metrics returns middleware that records per-job execution metrics using
// the global OTel MeterProvider. If no MeterProvider is configured, noop
// instruments are used and this middleware becomes a pass-through.
//
// Instruments:
//   - lanes.job.duration (Float64Histogram): execution time in seconds,
//     with attributes: lane, status ("ok" or "error")
//   - lanes.job.executions (Int64Counter): total executions,
//     with attributes: lane, status
//   - lanes.job.queue_wait (Float64Histogram): time between admission
//     and start in seconds, with attribute: lane
func Metrics() Middleware {
	meter := otel.Meter(meterName)
	return MetricsWithMeter(meter)
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"lanes.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"lanes.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)
	queueWait, _ := meter.Float64Histogram(
		"lanes.job.queue_wait",
		metric.WithDescription("Time a job spent queued before it started, in seconds"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		if j.StartedAt != nil {
			queueWait.Record(ctx, j.StartedAt.Sub(j.CreatedAt).Seconds(),
				metric.WithAttributes(attribute.String("lane", string(j.Lane))))
		}

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("lane", string(j.Lane)),
			attribute.String("status", status),
		)

		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
