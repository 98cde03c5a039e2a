package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tavlicon/lanes/id"
)

// Lane is a named category of work with its own bounded queue and
// workers. The set of lanes is closed.
type Lane string

const (
	// LaneImageEdit runs image-to-image generation.
	LaneImageEdit Lane = "image_edit"
	// LaneMeshGen runs single-image mesh reconstruction.
	LaneMeshGen Lane = "mesh_gen"
)

// Lanes returns every known lane in a stable order.
func Lanes() []Lane { return []Lane{LaneImageEdit, LaneMeshGen} }

// Valid reports whether l is one of the known lanes.
func (l Lane) Valid() bool {
	switch l {
	case LaneImageEdit, LaneMeshGen:
		return true
	}
	return false
}

// ParseLane converts s into a Lane, rejecting unknown names.
func ParseLane(s string) (Lane, error) {
	l := Lane(s)
	if !l.Valid() {
		return "", fmt.Errorf("job: unknown lane %q", s)
	}
	return l, nil
}

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is admitted and waiting for a lane worker.
	StateQueued State = "queued"
	// StateRunning means a lane worker is executing the job.
	StateRunning State = "running"
	// StateSucceeded means the executor reported a result.
	StateSucceeded State = "succeeded"
	// StateFailed means the executor reported an error, or the job
	// could not be admitted.
	StateFailed State = "failed"
	// StateCancelled means the job was cancelled before it started.
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from → to is an edge of the job state
// machine:
//
//	queued → running → succeeded
//	queued → running → failed
//	queued → failed     (admission rejected)
//	queued → cancelled
func CanTransition(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateRunning || to == StateFailed || to == StateCancelled
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	}
	return false
}

// Progress is a point-in-time progress snapshot of a running job.
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
	Stage   string  `json:"stage"`
}

// NewProgress builds a Progress, computing Percent from current and
// total. A non-positive total yields zero percent.
func NewProgress(current, total int, stage string) Progress {
	var pct float64
	if total > 0 {
		pct = float64(current) / float64(total) * 100.0
	}
	return Progress{Current: current, Total: total, Percent: pct, Stage: stage}
}

// Job represents a unit of work submitted to a lane.
//
// Jobs are created and mutated exclusively through a Store. Values
// returned by a Store are copies; mutating them has no effect.
type Job struct {
	ID              id.JobID        `json:"job_id"`
	Lane            Lane            `json:"lane"`
	State           State           `json:"status"`
	Progress        Progress        `json:"progress"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	CancelRequested bool            `json:"cancel_requested"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`

	// Payload is the caller-supplied input. It is retained until the
	// job is evicted and never serialized back to clients.
	Payload []byte `json:"-"`
}

// Clone returns a copy of j that shares no mutable state with it.
// Payload and Result are immutable once set and are shared.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// Elapsed returns the execution time of a finished job, or zero when
// the job never started or has not ended.
func (j *Job) Elapsed() time.Duration {
	if j.StartedAt == nil || j.EndedAt == nil {
		return 0
	}
	return j.EndedAt.Sub(*j.StartedAt)
}
