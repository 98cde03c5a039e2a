package job

import (
	"context"
	"time"

	"github.com/tavlicon/lanes/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
	// State filters by job state. Empty means all states.
	State State
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Lane filters by lane. Empty means all lanes.
	Lane Lane
	// State filters by job state. Empty means all states.
	State State
}

// Store is the single source of truth for job state and job events.
// It is the only component allowed to mutate a Job; every transition
// appends an event to the job's history and offers it to subscribers.
//
// Transitions refused by the state machine return an error wrapping
// lanes.ErrInvalidState and leave the job untouched. Unknown or evicted
// IDs return an error wrapping lanes.ErrJobNotFound.
type Store interface {
	// CreateJob allocates a fresh job in the queued state and emits a
	// queued event.
	CreateJob(ctx context.Context, lane Lane, payload []byte) (*Job, error)

	// GetJob returns a copy of the job.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// ListJobs returns copies of jobs matching opts, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching opts.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// SetRunning moves a queued job to running, records its start time
	// and emits a started event.
	SetRunning(ctx context.Context, jobID id.JobID) error

	// SetProgress updates the progress of a running job and emits a
	// progress event.
	SetProgress(ctx context.Context, jobID id.JobID, current, total int, stage string) error

	// Succeed moves a running job to succeeded with the given result,
	// releases waiters and emits a completed event.
	Succeed(ctx context.Context, jobID id.JobID, result []byte) error

	// Fail moves a queued or running job to failed with the given
	// message, releases waiters and emits a failed event.
	Fail(ctx context.Context, jobID id.JobID, message string) error

	// Cancel sets the cancel-request flag. A queued job additionally
	// moves to cancelled, releases waiters and emits a cancelled event.
	// Returns a copy of the job after the call.
	Cancel(ctx context.Context, jobID id.JobID) (*Job, error)

	// Subscribe registers a live listener for the job's future events.
	Subscribe(ctx context.Context, jobID id.JobID) (*Subscription, error)

	// SubscribeWithHistory snapshots the job's history and registers a
	// live listener in one atomic step, so that no event falls between
	// the two and none appears in both.
	SubscribeWithHistory(ctx context.Context, jobID id.JobID) ([]*Event, *Subscription, error)

	// Unsubscribe removes and closes a listener. Unknown jobs and
	// subscriptions are ignored.
	Unsubscribe(jobID id.JobID, sub *Subscription)

	// ListEvents returns a point-in-time copy of the job's history,
	// oldest first.
	ListEvents(ctx context.Context, jobID id.JobID) ([]*Event, error)

	// Wait blocks until the job is terminal, the timeout elapses
	// (lanes.ErrTimeout) or ctx is done. A zero timeout waits on ctx only.
	Wait(ctx context.Context, jobID id.JobID, timeout time.Duration) (*Job, error)

	// CleanupExpired evicts every terminal job whose end time is older
	// than the store TTL and returns how many were evicted.
	CleanupExpired(ctx context.Context) (int, error)
}
