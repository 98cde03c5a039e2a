// Package lanes provides an in-process job orchestration core for
// long-running, hardware-bound compute work such as image editing and
// mesh generation.
//
// Work is submitted to a named lane. Each lane owns a bounded FIFO queue
// drained by a fixed number of long-lived workers, so admission control
// is explicit: a saturated lane rejects new work immediately instead of
// blocking the caller. Executors that touch shared hardware take a
// permit from a resource class before doing so, which keeps two lanes
// that share one accelerator from interleaving heavy workloads.
//
// Every state change of a job is recorded as an event in a bounded
// per-job history and fanned out to live subscribers. Streams replay
// that history and then follow live delivery without gaps or
// duplicates. Finished jobs are evicted by a periodic sweep once their
// TTL has elapsed.
//
// # Quick Start
//
//	rt, err := lanes.New(
//	    lanes.WithLogger(logger),
//	    lanes.WithJobTTL(time.Hour),
//	)
//	eng, err := engine.Build(rt)
//	engine.Register(eng, imageEdit)
//	_ = eng.Start(ctx)
//
//	j, err := engine.Submit(ctx, eng, job.LaneImageEdit, req)
//
// # Architecture
//
// The root package holds configuration, sentinel errors and the
// [Runtime] lifecycle. The job package defines the job entity, its
// state machine and the event vocabulary; store/memory is the
// authoritative job store; queue, worker and resource implement lanes,
// lane workers and permit sets; stream bridges history and live
// subscriptions into replay-then-follow sequences and drives the
// cleanup sweep. The engine package wires all of them together.
//
// All job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based and
// unguessable identifiers.
package lanes
