package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// Cleaner evicts expired jobs. job.Store satisfies it.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// interval is a fixed-delay schedule. Unlike cronlib.Every it does not
// round to whole seconds.
type interval time.Duration

func (d interval) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper) error

// WithInterval sweeps every d.
func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) error {
		if d <= 0 {
			return fmt.Errorf("stream: sweep interval must be positive, got %s", d)
		}
		s.schedule = interval(d)
		s.describe = d.String()
		return nil
	}
}

// WithSchedule sweeps on a cron expression such as "*/5 * * * *" or
// "@every 1m".
func WithSchedule(expr string) SweeperOption {
	return func(s *Sweeper) error {
		sched, err := ParseSchedule(expr)
		if err != nil {
			return fmt.Errorf("stream: parse sweep schedule %q: %w", expr, err)
		}
		if sched.Next(time.Now()).IsZero() {
			return fmt.Errorf("stream: sweep schedule %q never fires", expr)
		}
		s.schedule = sched
		s.describe = expr
		return nil
	}
}

// Sweeper periodically evicts expired jobs.
type Sweeper struct {
	cleaner  Cleaner
	logger   *slog.Logger
	schedule cronlib.Schedule
	describe string

	sweeps   atomic.Int64
	evicted  atomic.Int64
	failures atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper creates a Sweeper. The default cadence is one minute.
func NewSweeper(cleaner Cleaner, logger *slog.Logger, opts ...SweeperOption) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		cleaner:  cleaner,
		logger:   logger,
		schedule: interval(time.Minute),
		describe: time.Minute.String(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Start launches the sweep loop. It returns immediately.
func (s *Sweeper) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.loop(s.stopCh)

	s.logger.Info("cleanup sweeper started", slog.String("schedule", s.describe))
	return nil
}

// Stop ends the sweep loop and waits for an in-progress sweep, or until
// ctx is done.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("cleanup sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(stopCh <-chan struct{}) {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := s.schedule.Next(now)
		if next.IsZero() {
			s.logger.Error("cleanup schedule has no next activation, sweeping disabled",
				slog.String("schedule", s.describe),
			)
			<-stopCh
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep runs one cleanup pass and returns how many jobs were evicted.
// Errors and panics from the store are logged, never returned.
func (s *Sweeper) Sweep(ctx context.Context) (evicted int) {
	s.sweeps.Add(1)
	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.logger.Error("cleanup sweep panicked", slog.Any("panic", r))
			evicted = 0
		}
	}()

	n, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		s.failures.Add(1)
		s.logger.Error("cleanup sweep failed", slog.String("error", err.Error()))
		return 0
	}
	s.evicted.Add(int64(n))
	if n > 0 {
		s.logger.Info("cleanup sweep evicted jobs", slog.Int("count", n))
	}
	return n
}

// SweeperStats contains sweeper counters.
type SweeperStats struct {
	Sweeps   int64  `json:"sweeps"`
	Evicted  int64  `json:"evicted"`
	Failures int64  `json:"failures"`
	Schedule string `json:"schedule"`
}

// Stats returns the sweeper counters.
func (s *Sweeper) Stats() SweeperStats {
	return SweeperStats{
		Sweeps:   s.sweeps.Load(),
		Evicted:  s.evicted.Load(),
		Failures: s.failures.Load(),
		Schedule: s.describe,
	}
}
