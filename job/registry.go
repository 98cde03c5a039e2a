package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
)

// ExecuteFunc is the type-erased executor for one lane. It fetches the
// job, performs the work and records exactly one terminal outcome in
// the store before returning.
type ExecuteFunc func(ctx context.Context, jobID id.JobID) error

// Registry maps lanes to executors. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	executors map[Lane]ExecuteFunc
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[Lane]ExecuteFunc),
	}
}

// Register sets the executor for a lane, replacing any previous one.
func (r *Registry) Register(lane Lane, fn ExecuteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[lane] = fn
}

// RegisterDefinition registers a typed definition. The handler is
// wrapped in a closure that loads and decodes the payload, reports
// progress through a channel-backed Reporter, and records the outcome
// with Succeed or Fail.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, s Store, def *Definition[T]) {
	r.Register(def.Lane, func(ctx context.Context, jobID id.JobID) error {
		return runDefinition(ctx, s, def, jobID)
	})
}

func runDefinition[T any](ctx context.Context, s Store, def *Definition[T], jobID id.JobID) error {
	j, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	var payload T
	if len(j.Payload) > 0 {
		if err := json.Unmarshal(j.Payload, &payload); err != nil {
			err = fmt.Errorf("decode payload for lane %q: %w", def.Lane, err)
			return failJob(ctx, s, jobID, err)
		}
	}

	pump := newProgressPump(ctx, s, jobID)
	result, herr := func() (any, error) {
		defer pump.close()
		return def.Handler(ctx, payload, pump)
	}()
	if herr != nil {
		return failJob(ctx, s, jobID, herr)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return failJob(ctx, s, jobID, fmt.Errorf("encode result: %w", err))
	}
	return s.Succeed(ctx, jobID, data)
}

// failJob records cause as the job's terminal error and returns it
// wrapped in lanes.ErrExecutorFailure.
func failJob(ctx context.Context, s Store, jobID id.JobID, cause error) error {
	msg := cause.Error()
	if errors.Is(cause, lanes.ErrCancelRequested) {
		msg = lanes.CancelledMessage
	}
	if err := s.Fail(ctx, jobID, msg); err != nil && !errors.Is(err, lanes.ErrInvalidState) {
		return errors.Join(fmt.Errorf("%w: %w", lanes.ErrExecutorFailure, cause), err)
	}
	return fmt.Errorf("%w: %w", lanes.ErrExecutorFailure, cause)
}

// Get returns the executor for the given lane.
// Returns false if no executor is registered.
func (r *Registry) Get(lane Lane) (ExecuteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[lane]
	return fn, ok
}

// Lanes returns all lanes with a registered executor.
func (r *Registry) Lanes() []Lane {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lane, 0, len(r.executors))
	for lane := range r.executors {
		out = append(out, lane)
	}
	return out
}
