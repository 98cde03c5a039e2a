// Package memory provides the in-process job store. Job state lives for
// the lifetime of the process only; finished jobs are evicted once
// their TTL has passed.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

// Ensure Store implements job.Store at compile time.
var _ job.Store = (*Store)(nil)

// Emitter is notified of every event after the store lock is released,
// in the order the events were emitted.
// ext.Registry satisfies this interface.
type Emitter interface {
	EmitJobEvent(ctx context.Context, j *job.Job, evt *job.Event)
	EmitJobsEvicted(ctx context.Context, count int)
}

// record is the store-owned state of one job.
type record struct {
	job     *job.Job
	history *history
	seq     uint64
	order   uint64
	subs    map[string]*job.Subscription
	done    chan struct{}
}

// Store is an in-memory implementation of job.Store.
//
// A single mutex serializes every read-modify-write of the job table,
// histories and subscriber sets. Executors do their work outside the
// lock and only call in to record transitions.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*record
	created uint64

	pending    []*notice
	delivering bool

	ttl        time.Duration
	maxEvents  int
	bufferSize int
	now        func() time.Time
	emitter    Emitter
	logger     *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets how long terminal jobs are retained.
func WithTTL(d time.Duration) Option {
	return func(s *Store) { s.ttl = d }
}

// WithMaxEvents sets the per-job event history cap.
func WithMaxEvents(n int) Option {
	return func(s *Store) { s.maxEvents = n }
}

// WithSubscriberBuffer sets the delivery buffer of new subscriptions.
func WithSubscriberBuffer(n int) Option {
	return func(s *Store) { s.bufferSize = n }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(s *Store) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	cfg := lanes.DefaultConfig()
	s := &Store{
		jobs:       make(map[string]*record),
		ttl:        cfg.JobTTL,
		maxEvents:  cfg.MaxEventsPerJob,
		bufferSize: cfg.SubscriberBuffer,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// notice is an event to hand to the emitter once the lock is released.
type notice struct {
	ctx context.Context
	job *job.Job
	evt *job.Event
}

// queue records n for delivery in emission order. Callers must hold s.mu.
func (s *Store) queue(ctx context.Context, n *notice) {
	if s.emitter == nil || n == nil {
		return
	}
	n.ctx = ctx
	s.pending = append(s.pending, n)
}

// deliver hands queued notices to the emitter outside the lock. Only one
// goroutine delivers at a time; a caller that finds delivery in progress
// leaves its notices to that goroutine, so the emitter sees events in
// the order they were emitted, even when a hook calls back into the
// store.
func (s *Store) deliver() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		for _, n := range batch {
			s.emitOne(n)
		}
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *Store) emitOne(n *notice) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event emitter panicked",
				slog.String("job_id", n.job.ID.String()),
				slog.String("event", string(n.evt.Kind)),
				slog.Any("panic", r),
			)
		}
	}()
	s.emitter.EmitJobEvent(n.ctx, n.job, n.evt)
}

// lookup returns the record for jobID. Callers must hold s.mu.
func (s *Store) lookup(jobID id.JobID) (*record, error) {
	r, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", lanes.ErrJobNotFound, jobID)
	}
	return r, nil
}

// emit appends an event to the record's history and offers it to every
// subscriber without blocking. A terminal event closes all
// subscriptions, since nothing can follow it. Callers must hold s.mu.
func (s *Store) emit(r *record, kind job.EventKind, data job.EventData) *notice {
	r.seq++
	evt := &job.Event{
		Seq:       r.seq,
		JobID:     r.job.ID,
		Kind:      kind,
		Data:      data,
		Timestamp: s.now(),
	}
	r.history.append(evt)

	for _, sub := range r.subs {
		if !sub.Send(evt) {
			s.logger.Debug("subscriber buffer full, event dropped",
				slog.String("job_id", r.job.ID.String()),
				slog.String("subscription", sub.ID()),
				slog.String("event", string(kind)),
			)
		}
	}

	if kind.Terminal() {
		for key, sub := range r.subs {
			sub.Close()
			delete(r.subs, key)
		}
	}

	return &notice{job: r.job.Clone(), evt: evt}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// CreateJob implements job.Store.
func (s *Store) CreateJob(ctx context.Context, lane job.Lane, payload []byte) (*job.Job, error) {
	if !lane.Valid() {
		return nil, fmt.Errorf("%w: %q", lanes.ErrUnknownLane, lane)
	}

	s.mu.Lock()
	j := &job.Job{
		ID:        id.NewJobID(),
		Lane:      lane,
		State:     job.StateQueued,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	s.created++
	r := &record{
		job:     j,
		order:   s.created,
		history: newHistory(s.maxEvents),
		subs:    make(map[string]*job.Subscription),
		done:    make(chan struct{}),
	}
	s.jobs[j.ID.String()] = r
	n := s.emit(r, job.EventQueued, job.EventData{Status: job.StateQueued})
	out := j.Clone()
	s.queue(ctx, n)
	s.mu.Unlock()

	s.deliver()
	return out, nil
}

// GetJob implements job.Store.
func (s *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return r.job.Clone(), nil
}

// SetRunning implements job.Store.
func (s *Store) SetRunning(ctx context.Context, jobID id.JobID) error {
	s.mu.Lock()
	r, err := s.lookup(jobID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !job.CanTransition(r.job.State, job.StateRunning) {
		state := r.job.State
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, cannot start", lanes.ErrInvalidState, jobID, state)
	}
	now := s.now()
	r.job.State = job.StateRunning
	r.job.StartedAt = &now
	n := s.emit(r, job.EventStarted, job.EventData{Status: job.StateRunning})
	s.queue(ctx, n)
	s.mu.Unlock()

	s.deliver()
	return nil
}

// SetProgress implements job.Store.
func (s *Store) SetProgress(ctx context.Context, jobID id.JobID, current, total int, stage string) error {
	s.mu.Lock()
	r, err := s.lookup(jobID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if r.job.State != job.StateRunning {
		state := r.job.State
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, cannot report progress", lanes.ErrInvalidState, jobID, state)
	}
	p := job.NewProgress(current, total, stage)
	r.job.Progress = p
	n := s.emit(r, job.EventProgress, job.EventData{Progress: &p})
	s.queue(ctx, n)
	s.mu.Unlock()

	s.deliver()
	return nil
}

// Succeed implements job.Store.
//
// Only the first terminal transition takes effect. A second Succeed or
// Fail leaves the job untouched, logs a warning and returns an error
// wrapping lanes.ErrInvalidState.
func (s *Store) Succeed(ctx context.Context, jobID id.JobID, result []byte) error {
	return s.finish(ctx, jobID, job.StateSucceeded, func(r *record) *notice {
		r.job.Result = result
		return s.emit(r, job.EventCompleted, job.EventData{
			Status: job.StateSucceeded,
			Result: result,
		})
	})
}

// Fail implements job.Store. See Succeed for the double-transition policy.
func (s *Store) Fail(ctx context.Context, jobID id.JobID, message string) error {
	return s.finish(ctx, jobID, job.StateFailed, func(r *record) *notice {
		r.job.Error = message
		return s.emit(r, job.EventFailed, job.EventData{
			Status: job.StateFailed,
			Error:  &job.ErrorDetail{Message: message},
		})
	})
}

// finish applies a terminal transition. apply records the outcome and
// emits the terminal event; it runs under the lock after the state and
// end time are set.
func (s *Store) finish(ctx context.Context, jobID id.JobID, to job.State, apply func(*record) *notice) error {
	s.mu.Lock()
	r, err := s.lookup(jobID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if !job.CanTransition(r.job.State, to) {
		state := r.job.State
		s.mu.Unlock()
		if state.Terminal() {
			s.logger.Warn("ignoring second terminal transition",
				slog.String("job_id", jobID.String()),
				slog.String("state", string(state)),
				slog.String("requested", string(to)),
			)
		}
		return fmt.Errorf("%w: %s is %s, cannot move to %s", lanes.ErrInvalidState, jobID, state, to)
	}
	now := s.now()
	r.job.State = to
	r.job.EndedAt = &now
	n := apply(r)
	close(r.done)
	s.queue(ctx, n)
	s.mu.Unlock()

	s.deliver()
	return nil
}

// Cancel implements job.Store.
func (s *Store) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	s.mu.Lock()
	r, err := s.lookup(jobID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	r.job.CancelRequested = true

	var n *notice
	if r.job.State == job.StateQueued {
		now := s.now()
		r.job.State = job.StateCancelled
		r.job.EndedAt = &now
		n = s.emit(r, job.EventCancelled, job.EventData{Status: job.StateCancelled})
		close(r.done)
	}
	out := r.job.Clone()
	s.queue(ctx, n)
	s.mu.Unlock()

	s.deliver()
	return out, nil
}

// Wait implements job.Store.
func (s *Store) Wait(ctx context.Context, jobID id.JobID, timeout time.Duration) (*job.Job, error) {
	s.mu.Lock()
	r, err := s.lookup(jobID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if r.job.State.Terminal() {
		out := r.job.Clone()
		s.mu.Unlock()
		return out, nil
	}
	done := r.done
	s.mu.Unlock()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		return s.GetJob(ctx, jobID)
	case <-timer:
		return nil, fmt.Errorf("%w: %s after %s", lanes.ErrTimeout, jobID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ──────────────────────────────────────────────────
// Events and subscriptions
// ──────────────────────────────────────────────────

// Subscribe implements job.Store. Subscribing to a job that is already
// terminal yields a closed subscription: its history holds everything
// that will ever be emitted.
func (s *Store) Subscribe(_ context.Context, jobID id.JobID) (*job.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return s.subscribe(r), nil
}

// SubscribeWithHistory implements job.Store.
func (s *Store) SubscribeWithHistory(_ context.Context, jobID id.JobID) ([]*job.Event, *job.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(jobID)
	if err != nil {
		return nil, nil, err
	}
	return r.history.snapshot(), s.subscribe(r), nil
}

// subscribe registers a new subscription. Callers must hold s.mu.
func (s *Store) subscribe(r *record) *job.Subscription {
	sub := job.NewSubscription(r.job.ID, s.bufferSize)
	if r.job.State.Terminal() {
		sub.Close()
		return sub
	}
	r.subs[sub.ID()] = sub
	return sub
}

// Unsubscribe implements job.Store.
func (s *Store) Unsubscribe(jobID id.JobID, sub *job.Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.jobs[jobID.String()]; ok {
		delete(r.subs, sub.ID())
	}
	sub.Close()
}

// ListEvents implements job.Store.
func (s *Store) ListEvents(_ context.Context, jobID id.JobID) ([]*job.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return r.history.snapshot(), nil
}

// SubscriberCount returns the number of live subscriptions to a job.
func (s *Store) SubscriberCount(jobID id.JobID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.jobs[jobID.String()]; ok {
		return len(r.subs)
	}
	return 0
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// ListJobs implements job.Store.
func (s *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	s.mu.Lock()
	records := make([]*record, 0, len(s.jobs))
	for _, r := range s.jobs {
		if opts.Lane != "" && r.job.Lane != opts.Lane {
			continue
		}
		if opts.State != "" && r.job.State != opts.State {
			continue
		}
		records = append(records, r)
	}
	// Newest first; creation order breaks CreatedAt ties.
	sort.Slice(records, func(i, k int) bool {
		a, b := records[i], records[k]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.order > b.order
	})
	matched := make([]*job.Job, len(records))
	for i, r := range records {
		matched[i] = r.job.Clone()
	}
	s.mu.Unlock()

	if opts.Offset > 0 {
		if opts.Offset >= len(matched) {
			return []*job.Job{}, nil
		}
		matched = matched[opts.Offset:]
	}
	if opts.Limit > 0 && len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}

// CountJobs implements job.Store.
func (s *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, r := range s.jobs {
		if opts.Lane != "" && r.job.Lane != opts.Lane {
			continue
		}
		if opts.State != "" && r.job.State != opts.State {
			continue
		}
		n++
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Eviction
// ──────────────────────────────────────────────────

// CleanupExpired implements job.Store. Non-terminal jobs are never
// evicted, however old they are.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	s.mu.Lock()
	now := s.now()
	evicted := 0
	for key, r := range s.jobs {
		if !r.job.State.Terminal() || r.job.EndedAt == nil {
			continue
		}
		if now.Sub(*r.job.EndedAt) <= s.ttl {
			continue
		}
		for _, sub := range r.subs {
			sub.Close()
		}
		delete(s.jobs, key)
		evicted++
	}
	s.mu.Unlock()

	if evicted > 0 {
		s.logger.Debug("evicted expired jobs", slog.Int("count", evicted))
		if s.emitter != nil {
			s.emitter.EmitJobsEvicted(ctx, evicted)
		}
	}
	return evicted, nil
}
