package job

import (
	"encoding/json"
	"time"

	"github.com/tavlicon/lanes/id"
)

// EventKind names a job lifecycle event delivered over streams.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
)

// Terminal reports whether k closes a job's event stream.
func (k EventKind) Terminal() bool {
	switch k {
	case EventCompleted, EventFailed, EventCancelled:
		return true
	}
	return false
}

// ErrorDetail carries a human-readable failure message.
type ErrorDetail struct {
	Message string `json:"message"`
}

// EventData is the payload of an Event. Which fields are set depends on
// the event kind: progress events carry the embedded Progress, completed
// events carry Result and failed events carry Error.
type EventData struct {
	Status State `json:"status,omitempty"`
	*Progress
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// Event is an immutable, timestamped record of a job state change.
// Seq numbers are assigned per job, start at 1 and increase by one for
// every emitted event, so consumers can detect gaps and duplicates.
type Event struct {
	Seq       uint64    `json:"seq"`
	JobID     id.JobID  `json:"job_id"`
	Kind      EventKind `json:"event"`
	Data      EventData `json:"data"`
	Timestamp time.Time `json:"ts"`
}
