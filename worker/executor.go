// Package worker drives admitted jobs through their lane executor. A
// Pool runs long-lived worker loops, one or more per lane, and an
// Executor runs a single job through middleware and guarantees that it
// ends in a terminal state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/middleware"
)

// unsettledMessage is recorded when an executor returns without error
// but never recorded an outcome.
const unsettledMessage = "executor returned without a terminal state"

// Executor runs a single job through middleware and the lane executor
// registered for it.
type Executor struct {
	registry *job.Registry
	store    job.Store
	mw       middleware.Middleware
	logger   *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	store job.Store,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry: registry,
		store:    store,
		mw:       middleware.Chain(mws...),
		logger:   logger,
	}
}

// Execute runs a running job through the middleware chain and its lane
// executor. The lane executor is expected to record the outcome itself;
// if the job is still non-terminal afterwards, Execute fails it with the
// returned error's message so no job is left running forever.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	fn, ok := e.registry.Get(j.Lane)
	if !ok {
		err := fmt.Errorf("%w: %s", lanes.ErrNoExecutor, j.Lane)
		e.settle(ctx, j.ID, err)
		return err
	}

	err := e.mw(ctx, j, func(ctx context.Context) error {
		return fn(ctx, j.ID)
	})
	e.settle(ctx, j.ID, err)
	return err
}

// settle fails jobID if it is not yet terminal. cause, when non-nil,
// supplies the failure message.
func (e *Executor) settle(ctx context.Context, jobID id.JobID, cause error) {
	// The job context may already be cancelled by a timeout; recording
	// the outcome must still happen.
	ctx = context.WithoutCancel(ctx)

	cur, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		e.logger.Warn("settle: job lookup failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if cur.State.Terminal() {
		return
	}

	msg := unsettledMessage
	if cause != nil {
		msg = cause.Error()
	}
	if err := e.store.Fail(ctx, jobID, msg); err != nil && !errors.Is(err, lanes.ErrInvalidState) {
		e.logger.Error("settle: failed to record failure",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Warn("job left unsettled by its executor, marked failed",
		slog.String("job_id", jobID.String()),
		slog.String("lane", string(cur.Lane)),
		slog.String("message", msg),
	)
}
