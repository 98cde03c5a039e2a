package ext

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tavlicon/lanes/job"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time.
type jobQueuedEntry struct {
	name string
	hook JobQueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobProgressedEntry struct {
	name string
	hook JobProgressed
}

type jobSucceededEntry struct {
	name string
	hook JobSucceeded
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobCancelledEntry struct {
	name string
	hook JobCancelled
}

type jobRejectedEntry struct {
	name string
	hook JobRejected
}

type jobsEvictedEntry struct {
	name string
	hook JobsEvicted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register must not be called concurrently with the emit methods;
// register every extension before the runtime starts.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobQueued     []jobQueuedEntry
	jobStarted    []jobStartedEntry
	jobProgressed []jobProgressedEntry
	jobSucceeded  []jobSucceededEntry
	jobFailed     []jobFailedEntry
	jobCancelled  []jobCancelledEntry
	jobRejected   []jobRejectedEntry
	jobsEvicted   []jobsEvictedEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobQueued); ok {
		r.jobQueued = append(r.jobQueued, jobQueuedEntry{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, h})
	}
	if h, ok := e.(JobProgressed); ok {
		r.jobProgressed = append(r.jobProgressed, jobProgressedEntry{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, jobSucceededEntry{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, h})
	}
	if h, ok := e.(JobCancelled); ok {
		r.jobCancelled = append(r.jobCancelled, jobCancelledEntry{name, h})
	}
	if h, ok := e.(JobRejected); ok {
		r.jobRejected = append(r.jobRejected, jobRejectedEntry{name, h})
	}
	if h, ok := e.(JobsEvicted); ok {
		r.jobsEvicted = append(r.jobsEvicted, jobsEvictedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitJobEvent routes a store event to the matching hook. The registry
// satisfies the store's emitter contract through this method.
func (r *Registry) EmitJobEvent(ctx context.Context, j *job.Job, evt *job.Event) {
	switch evt.Kind {
	case job.EventQueued:
		r.EmitJobQueued(ctx, j)
	case job.EventStarted:
		r.EmitJobStarted(ctx, j)
	case job.EventProgress:
		if evt.Data.Progress != nil {
			r.EmitJobProgressed(ctx, j, *evt.Data.Progress)
		}
	case job.EventCompleted:
		r.EmitJobSucceeded(ctx, j, j.Elapsed())
	case job.EventFailed:
		msg := j.Error
		if evt.Data.Error != nil {
			msg = evt.Data.Error.Message
		}
		r.EmitJobFailed(ctx, j, errors.New(msg))
	case job.EventCancelled:
		r.EmitJobCancelled(ctx, j)
	}
}

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobQueued notifies all extensions that implement JobQueued.
func (r *Registry) EmitJobQueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobQueued {
		if err := e.hook.OnJobQueued(ctx, j); err != nil {
			r.logHookError("OnJobQueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobProgressed notifies all extensions that implement JobProgressed.
func (r *Registry) EmitJobProgressed(ctx context.Context, j *job.Job, p job.Progress) {
	for _, e := range r.jobProgressed {
		if err := e.hook.OnJobProgressed(ctx, j, p); err != nil {
			r.logHookError("OnJobProgressed", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobCancelled notifies all extensions that implement JobCancelled.
func (r *Registry) EmitJobCancelled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCancelled {
		if err := e.hook.OnJobCancelled(ctx, j); err != nil {
			r.logHookError("OnJobCancelled", e.name, err)
		}
	}
}

// EmitJobRejected notifies all extensions that implement JobRejected.
func (r *Registry) EmitJobRejected(ctx context.Context, j *job.Job, reason error) {
	for _, e := range r.jobRejected {
		if err := e.hook.OnJobRejected(ctx, j, reason); err != nil {
			r.logHookError("OnJobRejected", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitJobsEvicted notifies all extensions that implement JobsEvicted.
func (r *Registry) EmitJobsEvicted(ctx context.Context, count int) {
	for _, e := range r.jobsEvicted {
		if err := e.hook.OnJobsEvicted(ctx, count); err != nil {
			r.logHookError("OnJobsEvicted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
