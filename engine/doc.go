// Package engine wires all lanes subsystems together and provides the
// primary application-level API for registering executors and
// submitting work.
//
// # Building an Engine
//
//	rt, err := lanes.New(
//	    lanes.WithQueueCapacity(10),
//	    lanes.WithJobTTL(time.Hour),
//	)
//
//	eng, err := engine.Build(rt,
//	    engine.WithExtension(myExtension),
//	    engine.WithLane(queue.Config{Lane: job.LaneMeshGen, Capacity: 4}),
//	    engine.WithPermits(resource.ClassImage, 1),
//	)
//
// # Registering Executors
//
//	engine.Register(eng, job.NewDefinition(job.LaneImageEdit, editImage))
//
// # Submitting Jobs
//
//	j, err := engine.Submit(ctx, eng, job.LaneImageEdit, params)
//	if errors.Is(err, lanes.ErrQueueFull) {
//	    // back off and retry
//	}
//
// # Following a Job
//
//	events, err := eng.Stream(ctx, j.ID)
//	for evt := range events {
//	    ...
//	}
//
// # Options
//
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the execution chain
//   - [WithLane] configures capacity, workers, rate limit and timeout per lane
//   - [WithPermits] sets the permit count of a resource class
//   - [WithSweepSchedule] runs the cleanup sweep on a cron schedule
//   - [WithTracerProvider] sets the OpenTelemetry tracer provider
//   - [WithMeterProvider] sets the OpenTelemetry meter provider
//   - [WithMetricFactory] sets the lifecycle counter factory
package engine
