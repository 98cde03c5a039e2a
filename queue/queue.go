package queue

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

// Config defines per-lane admission and execution settings.
type Config struct {
	// Lane is the lane this config applies to.
	Lane job.Lane

	// Capacity is the maximum number of admitted jobs waiting for a
	// worker. Defaults to 1 if zero.
	Capacity int

	// Workers is the number of long-lived worker loops draining this
	// lane. Each worker runs one job at a time. Defaults to 1 if zero.
	Workers int

	// RateLimit is the maximum sustained admissions per second. Zero
	// disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int

	// Timeout bounds execution of a single job. Zero means no limit.
	Timeout time.Duration
}

// laneState tracks runtime state for a single lane.
type laneState struct {
	config  Config
	ch      chan id.JobID
	limiter *rate.Limiter

	enqueued    atomic.Int64
	rejected    atomic.Int64
	rateLimited atomic.Int64
	dequeued    atomic.Int64
}

// Manager owns the bounded queue of every lane. The set of lanes is
// fixed at construction. It is safe for concurrent use.
type Manager struct {
	lanes map[job.Lane]*laneState
}

// NewManager creates a Manager with one queue per config. A later config
// for the same lane replaces an earlier one.
func NewManager(configs ...Config) *Manager {
	m := &Manager{lanes: make(map[job.Lane]*laneState, len(configs))}
	for _, cfg := range configs {
		m.lanes[cfg.Lane] = newLaneState(cfg)
	}
	return m
}

func newLaneState(cfg Config) *laneState {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	ls := &laneState{
		config: cfg,
		ch:     make(chan id.JobID, cfg.Capacity),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.config.RateBurst = burst
		ls.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ls
}

func (m *Manager) lane(lane job.Lane) (*laneState, error) {
	ls, ok := m.lanes[lane]
	if !ok {
		return nil, fmt.Errorf("%w: %q", lanes.ErrUnknownLane, lane)
	}
	return ls, nil
}

// Enqueue admits jobID to lane without blocking. It fails with an error
// wrapping lanes.ErrQueueFull when the lane is at capacity or over its
// rate limit.
func (m *Manager) Enqueue(jobID id.JobID, lane job.Lane) error {
	ls, err := m.lane(lane)
	if err != nil {
		return err
	}
	if ls.limiter != nil && !ls.limiter.Allow() {
		ls.rateLimited.Add(1)
		ls.rejected.Add(1)
		return fmt.Errorf("%w: lane %s rate limited", lanes.ErrQueueFull, lane)
	}
	select {
	case ls.ch <- jobID:
		ls.enqueued.Add(1)
		return nil
	default:
		ls.rejected.Add(1)
		return fmt.Errorf("%w: lane %s at capacity %d", lanes.ErrQueueFull, lane, ls.config.Capacity)
	}
}

// EnqueueWait admits jobID to lane, blocking until there is room (and a
// rate token, if the lane is rate limited) or ctx is done.
func (m *Manager) EnqueueWait(ctx context.Context, jobID id.JobID, lane job.Lane) error {
	ls, err := m.lane(lane)
	if err != nil {
		return err
	}
	if ls.limiter != nil {
		if err := ls.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for %s rate token: %w", lane, err)
		}
	}
	select {
	case ls.ch <- jobID:
		ls.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available on lane or ctx is done.
func (m *Manager) Dequeue(ctx context.Context, lane job.Lane) (id.JobID, error) {
	ls, err := m.lane(lane)
	if err != nil {
		return id.Nil, err
	}
	select {
	case jobID := <-ls.ch:
		ls.dequeued.Add(1)
		return jobID, nil
	case <-ctx.Done():
		return id.Nil, ctx.Err()
	}
}

// Drain removes and returns every job waiting on lane without blocking.
func (m *Manager) Drain(lane job.Lane) []id.JobID {
	ls, ok := m.lanes[lane]
	if !ok {
		return nil
	}
	var out []id.JobID
	for {
		select {
		case jobID := <-ls.ch:
			ls.dequeued.Add(1)
			out = append(out, jobID)
		default:
			return out
		}
	}
}

// Lanes returns the configured lanes in name order.
func (m *Manager) Lanes() []job.Lane {
	out := make([]job.Lane, 0, len(m.lanes))
	for lane := range m.lanes {
		out = append(out, lane)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// Config returns the effective configuration of lane.
func (m *Manager) Config(lane job.Lane) (Config, bool) {
	ls, ok := m.lanes[lane]
	if !ok {
		return Config{}, false
	}
	return ls.config, true
}

// Workers returns the number of workers configured for lane, or zero
// for an unknown lane.
func (m *Manager) Workers(lane job.Lane) int {
	if ls, ok := m.lanes[lane]; ok {
		return ls.config.Workers
	}
	return 0
}

// Timeouts returns the per-lane execution limits of every lane that has one.
func (m *Manager) Timeouts() map[job.Lane]time.Duration {
	out := make(map[job.Lane]time.Duration)
	for lane, ls := range m.lanes {
		if ls.config.Timeout > 0 {
			out[lane] = ls.config.Timeout
		}
	}
	return out
}

// Depth returns the number of jobs waiting on lane.
func (m *Manager) Depth(lane job.Lane) int {
	if ls, ok := m.lanes[lane]; ok {
		return len(ls.ch)
	}
	return 0
}

// Stats is a point-in-time view of one lane queue.
type Stats struct {
	Lane        job.Lane `json:"lane"`
	Depth       int      `json:"depth"`
	Capacity    int      `json:"capacity"`
	Workers     int      `json:"workers"`
	Enqueued    int64    `json:"enqueued"`
	Dequeued    int64    `json:"dequeued"`
	Rejected    int64    `json:"rejected"`
	RateLimited int64    `json:"rate_limited"`
}

// Stats returns a snapshot of every lane, in name order.
func (m *Manager) Stats() []Stats {
	out := make([]Stats, 0, len(m.lanes))
	for _, lane := range m.Lanes() {
		ls := m.lanes[lane]
		out = append(out, Stats{
			Lane:        lane,
			Depth:       len(ls.ch),
			Capacity:    ls.config.Capacity,
			Workers:     ls.config.Workers,
			Enqueued:    ls.enqueued.Load(),
			Dequeued:    ls.dequeued.Load(),
			Rejected:    ls.rejected.Load(),
			RateLimited: ls.rateLimited.Load(),
		})
	}
	return out
}
