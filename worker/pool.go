package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

// Source supplies admitted job IDs per lane. queue.Manager satisfies it.
type Source interface {
	// Dequeue blocks until a job is available on lane or ctx is done.
	Dequeue(ctx context.Context, lane job.Lane) (id.JobID, error)
	// Lanes returns every lane to drain.
	Lanes() []job.Lane
	// Workers returns how many worker loops to run for lane.
	Workers(lane job.Lane) int
}

// laneCounters tracks per-lane worker activity.
type laneCounters struct {
	busy      atomic.Int64
	processed atomic.Int64
}

// Pool runs the lane worker loops. Every worker handles exactly one job
// at a time, so a lane with one worker executes its jobs strictly one
// after another in admission order.
type Pool struct {
	store    job.Store
	executor *Executor
	source   Source
	workerID id.WorkerID
	logger   *slog.Logger

	counters map[job.Lane]*laneCounters

	runCtx     context.Context
	runCancel  context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

// NewPool creates a worker pool draining every lane of source.
func NewPool(
	store job.Store,
	executor *Executor,
	source Source,
	logger *slog.Logger,
) *Pool {
	p := &Pool{
		store:      store,
		executor:   executor,
		source:     source,
		workerID:   id.NewWorkerID(),
		logger:     logger,
		counters:   make(map[job.Lane]*laneCounters),
		activeJobs: make(map[string]context.CancelFunc),
	}
	for _, lane := range source.Lanes() {
		p.counters[lane] = &laneCounters{}
	}
	return p
}

// WorkerID returns the pool's unique identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker loops. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	p.runCtx, p.runCancel = context.WithCancel(context.Background())

	for _, lane := range p.source.Lanes() {
		n := p.source.Workers(lane)
		if _, ok := p.executor.registry.Get(lane); !ok {
			p.logger.Warn("lane has no executor, its jobs will fail",
				slog.String("lane", string(lane)),
			)
		}
		p.logger.Info("lane workers starting",
			slog.String("worker_id", p.workerID.String()),
			slog.String("lane", string(lane)),
			slog.Int("workers", n),
		)
		for i := range n {
			p.wg.Add(1)
			go p.laneLoop(p.runCtx, lane, i)
		}
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current job. If ctx is done first, in-flight jobs have their contexts
// cancelled. Jobs still waiting in a lane queue are left for the engine
// to fail.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.runCancel()
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// laneLoop is run by each worker goroutine. It only returns when the
// pool stops; a failing or panicking job never ends the loop.
func (p *Pool) laneLoop(ctx context.Context, lane job.Lane, worker int) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		jobID, err := p.source.Dequeue(ctx, lane)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue error",
				slog.String("lane", string(lane)),
				slog.Int("worker", worker),
				slog.String("error", err.Error()),
			)
			continue
		}
		p.process(lane, jobID)
	}
}

// process drives one job from queued to a terminal state.
func (p *Pool) process(lane job.Lane, jobID id.JobID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := p.counters[lane]
	if c != nil {
		c.busy.Add(1)
		defer func() {
			c.busy.Add(-1)
			c.processed.Add(1)
		}()
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker recovered from panic",
				slog.String("job_id", jobID.String()),
				slog.String("lane", string(lane)),
				slog.Any("panic", r),
			)
			p.executor.settle(ctx, jobID, fmt.Errorf("internal error: %v", r))
		}
	}()

	if err := p.store.SetRunning(ctx, jobID); err != nil {
		if errors.Is(err, lanes.ErrInvalidState) {
			// Cancelled while it waited in the queue.
			p.logger.Debug("skipping job that is no longer queued",
				slog.String("job_id", jobID.String()),
			)
		} else {
			p.logger.Warn("failed to start job",
				slog.String("job_id", jobID.String()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	j, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		p.logger.Warn("started job vanished",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	p.trackJob(jobID.String(), cancel)
	defer p.untrackJob(jobID.String())

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution failed",
			slog.String("job_id", jobID.String()),
			slog.String("lane", string(lane)),
			slog.String("error", err.Error()),
		)
	}
}

// Busy returns how many workers of lane are executing a job.
func (p *Pool) Busy(lane job.Lane) int {
	if c := p.counters[lane]; c != nil {
		return int(c.busy.Load())
	}
	return 0
}

// Processed returns how many jobs the workers of lane have taken off
// the queue, including jobs skipped because they were cancelled.
func (p *Pool) Processed(lane job.Lane) int64 {
	if c := p.counters[lane]; c != nil {
		return c.processed.Load()
	}
	return 0
}

func (p *Pool) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
