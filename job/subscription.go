package job

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tavlicon/lanes/id"
)

// Subscription is one listener's live feed of a job's events.
//
// Delivery never blocks the producer: when the buffer is full the event
// is dropped for this subscription only and counted. The channel is
// closed once the job's terminal event has been offered, when the job is
// evicted, or on Unsubscribe.
//
// Send and Close must be serialized by the owning store.
type Subscription struct {
	id    string
	jobID id.JobID
	ch    chan *Event

	delivered atomic.Int64
	dropped   atomic.Int64
	closed    atomic.Bool
}

// NewSubscription creates a subscription to jobID with the given buffer.
func NewSubscription(jobID id.JobID, bufferSize int) *Subscription {
	return &Subscription{
		id:    uuid.NewString(),
		jobID: jobID,
		ch:    make(chan *Event, bufferSize),
	}
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// JobID returns the job this subscription follows.
func (s *Subscription) JobID() id.JobID { return s.jobID }

// C returns the read-only event channel.
func (s *Subscription) C() <-chan *Event { return s.ch }

// Delivered returns how many events were placed on the channel.
func (s *Subscription) Delivered() int64 { return s.delivered.Load() }

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Closed reports whether the subscription has been closed.
func (s *Subscription) Closed() bool { return s.closed.Load() }

// Send attempts a non-blocking delivery of evt.
// Returns false if the subscription is closed or its buffer is full.
func (s *Subscription) Send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- evt:
		s.delivered.Add(1)
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call multiple times.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
