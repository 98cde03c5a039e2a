package stream

import (
	"context"

	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

// Source is the part of job.Store that Follow reads from.
type Source interface {
	SubscribeWithHistory(ctx context.Context, jobID id.JobID) ([]*job.Event, *job.Subscription, error)
	ListEvents(ctx context.Context, jobID id.JobID) ([]*job.Event, error)
	Unsubscribe(jobID id.JobID, sub *job.Subscription)
}

// Follow returns the replay-then-follow event sequence of a job. The
// returned channel is closed after the terminal event has been sent,
// when the job is evicted, or when ctx is done. The live subscription
// is released in every case.
//
// An unknown job returns an error wrapping lanes.ErrJobNotFound.
func Follow(ctx context.Context, src Source, jobID id.JobID) (<-chan *job.Event, error) {
	history, sub, err := src.SubscribeWithHistory(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := make(chan *job.Event)
	f := &follower{ctx: ctx, src: src, jobID: jobID, out: out}
	go func() {
		defer close(out)
		defer src.Unsubscribe(jobID, sub)
		f.run(history, sub)
	}()
	return out, nil
}

type follower struct {
	ctx   context.Context
	src   Source
	jobID id.JobID
	out   chan<- *job.Event
	last  uint64
	done  bool
}

func (f *follower) run(history []*job.Event, sub *job.Subscription) {
	if !f.sendAll(history, 0) {
		return
	}

	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				// Closed by the terminal event, eviction or an
				// Unsubscribe. Anything still retained that the
				// buffer dropped is recovered from history.
				f.catchUp(0)
				return
			}
			if evt.Seq > f.last+1 && !f.catchUp(evt.Seq) {
				return
			}
			if !f.send(evt) {
				return
			}
		case <-f.ctx.Done():
			return
		}
	}
}

// catchUp sends retained history events with a sequence number below
// before, or all of them when before is zero. It reports whether the
// sequence should continue.
func (f *follower) catchUp(before uint64) bool {
	events, err := f.src.ListEvents(f.ctx, f.jobID)
	if err != nil {
		return !f.done && f.ctx.Err() == nil
	}
	return f.sendAll(events, before)
}

func (f *follower) sendAll(events []*job.Event, before uint64) bool {
	for _, evt := range events {
		if before > 0 && evt.Seq >= before {
			break
		}
		if !f.send(evt) {
			return false
		}
	}
	return true
}

// send delivers evt unless it was already delivered. It reports false
// once the terminal event went out or the consumer is gone.
func (f *follower) send(evt *job.Event) bool {
	if f.done {
		return false
	}
	if evt.Seq <= f.last {
		return true
	}
	select {
	case f.out <- evt:
		f.last = evt.Seq
		if evt.Kind.Terminal() {
			f.done = true
			return false
		}
		return true
	case <-f.ctx.Done():
		return false
	}
}
