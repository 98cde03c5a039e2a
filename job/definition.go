package job

import "context"

// Reporter is handed to a running handler. Progress is a non-blocking
// message send, so it is safe to call from a callback deep inside a
// blocking native computation.
type Reporter interface {
	// Progress reports that current of total units are done in stage.
	Progress(current, total int, stage string)

	// CancelRequested reports whether cancellation was requested for
	// the job. Handlers check it at safe points and return
	// lanes.ErrCancelRequested to stop early.
	CancelRequested() bool
}

// Definition is a typed lane handler.
// T is the payload type (must be JSON-serializable). The value returned
// by Handler is JSON-encoded into the job result.
type Definition[T any] struct {
	// Lane is the lane whose jobs this definition executes.
	Lane Lane

	// Handler processes one job payload.
	Handler func(ctx context.Context, payload T, r Reporter) (any, error)
}

// NewDefinition creates a typed lane handler definition.
func NewDefinition[T any](lane Lane, handler func(ctx context.Context, payload T, r Reporter) (any, error)) *Definition[T] {
	return &Definition[T]{
		Lane:    lane,
		Handler: handler,
	}
}
