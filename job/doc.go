// Package job defines the job entity, its state machine, the event
// vocabulary delivered to subscribers, typed lane definitions and the
// store interface.
//
// # Job Entity
//
// A [Job] is one unit of work submitted to a [Lane]. It carries an
// opaque JSON payload and progresses through a small state machine:
//
//	queued → running → succeeded
//	queued → running → failed
//	queued → failed       (rejected at admission)
//	queued → cancelled
//
// Succeeded, failed and cancelled are terminal. A running job cannot be
// cancelled directly; cancellation only raises a flag the handler
// observes through [Reporter.CancelRequested].
//
// # Events
//
// Each transition appends an [Event] to the job's history: queued,
// started, progress, completed, failed and cancelled. Events carry a
// per-job sequence number so stream consumers can detect gaps.
//
// # Defining a Lane Handler
//
// Use [Definition] with a typed handler. The payload is decoded from
// JSON before the handler runs and the returned value becomes the
// job's result:
//
//	var ImageEdit = job.NewDefinition(job.LaneImageEdit,
//	    func(ctx context.Context, in ImageEditInput, r job.Reporter) (any, error) {
//	        return pipeline.Run(ctx, in, r.Progress)
//	    },
//	)
//
// [RegisterDefinition] converts it into the type-erased [ExecuteFunc]
// the lane workers call.
package job
