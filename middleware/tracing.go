package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavlicon/lanes/job"
)

// tracerName is the instrumentation scope name for lanes tracing.
const tracerName = "github.com/tavlicon/lanes"

// Tracing returns middleware that wraps job execution in an OpenTelemetry span.
// If no TracerProvider is configured globally, the default noop tracer is used
// and this middleware becomes a pass-through.
//
// Span attributes: lanes.job.id, lanes.lane, lanes.queue_wait_ms.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		var waitMS int64
		if j.StartedAt != nil {
			waitMS = j.StartedAt.Sub(j.CreatedAt).Milliseconds()
		}

		ctx, span := tracer.Start(ctx, "lanes.job.execute",
			trace.WithAttributes(
				attribute.String("lanes.job.id", j.ID.String()),
				attribute.String("lanes.lane", string(j.Lane)),
				attribute.Int64("lanes.queue_wait_ms", waitMS),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
