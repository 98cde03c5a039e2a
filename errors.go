package lanes

import "errors"

var (
	// Lookup errors.
	ErrJobNotFound  = errors.New("lanes: job not found")
	ErrUnknownLane  = errors.New("lanes: unknown lane")
	ErrUnknownClass = errors.New("lanes: unknown resource class")

	// Admission errors.
	ErrQueueFull   = errors.New("lanes: queue is full")
	ErrNotStarted  = errors.New("lanes: runtime not started")
	ErrNoExecutor  = errors.New("lanes: no executor registered for lane")
	ErrInvalidArgs = errors.New("lanes: invalid job parameters")

	// Waiting errors.
	ErrTimeout = errors.New("lanes: timed out waiting for job")

	// Execution errors.
	ErrExecutorFailure = errors.New("lanes: executor failure")
	ErrCancelRequested = errors.New("lanes: cancellation requested")

	// State errors. A transition refused with ErrInvalidState is a
	// programming error in the caller, never a user-facing condition.
	ErrInvalidState = errors.New("lanes: invalid state transition")
)

// QueueFullMessage is the terminal error recorded on a job that could
// not be admitted to its lane.
const QueueFullMessage = "Queue is full. Try again shortly."

// StoppedMessage is the terminal error recorded on a job that was
// submitted to, or left queued in, a runtime that has been stopped.
const StoppedMessage = "Server is shutting down."

// CancelledMessage is the terminal error recorded on a running job whose
// executor stopped early because cancellation was requested.
const CancelledMessage = "cancelled by request"
