package lanes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Option configures a Runtime.
type Option func(*Runtime) error

// runner is an internal interface for background component lifecycle.
// The lane worker pool and the cleanup sweeper both satisfy it.
type runner interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// extensionEmitter is an internal interface for extension lifecycle events.
type extensionEmitter interface {
	EmitShutdown(ctx context.Context)
}

// Runtime is the lifecycle owner of a lanes deployment. It holds the
// configuration and logger and starts or stops the background
// components the engine package attaches to it.
//
// Create one with New() and functional options, then pass it to
// engine.Build to wire the store, lanes and workers.
type Runtime struct {
	config     Config
	logger     *slog.Logger
	extensions extensionEmitter
	pool       runner
	sweeper    runner

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a new Runtime with the given options.
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}
	rt.config = rt.config.withDefaults()
	return rt, nil
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }

// Config returns a copy of the runtime's configuration.
func (rt *Runtime) Config() Config { return rt.config }

// SetPool sets the lane worker pool (called by the engine package).
func (rt *Runtime) SetPool(p runner) { rt.pool = p }

// SetSweeper sets the cleanup sweeper (called by the engine package).
func (rt *Runtime) SetSweeper(s runner) { rt.sweeper = s }

// SetExtensions sets the extension emitter (called by the engine package).
func (rt *Runtime) SetExtensions(e extensionEmitter) { rt.extensions = e }

// Started reports whether Start has completed and Stop has not been called.
func (rt *Runtime) Started() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.started
}

// Stopped reports whether the runtime was started and has since been
// stopped. A runtime that was never started is not stopped.
func (rt *Runtime) Stopped() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.stopped
}

// Start launches lane workers and the cleanup sweeper.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.started {
		return nil
	}
	if rt.pool == nil {
		return errors.New("lanes: runtime has no worker pool; build it with engine.Build")
	}
	if err := rt.pool.Start(ctx); err != nil {
		return err
	}
	if rt.sweeper != nil {
		if err := rt.sweeper.Start(ctx); err != nil {
			_ = rt.pool.Stop(ctx)
			return err
		}
	}
	rt.started = true
	rt.stopped = false
	return nil
}

// Stop gracefully shuts down the runtime. In-flight jobs get until the
// context deadline (or ShutdownTimeout when the context has none) to
// finish before their contexts are cancelled.
func (rt *Runtime) Stop(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if !rt.started {
		return nil
	}
	rt.started = false
	rt.stopped = true

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.config.ShutdownTimeout)
		defer cancel()
	}

	if rt.sweeper != nil {
		if err := rt.sweeper.Stop(ctx); err != nil {
			rt.logger.Error("sweeper stop error", slog.String("error", err.Error()))
		}
	}
	var err error
	if rt.pool != nil {
		err = rt.pool.Stop(ctx)
		if err != nil {
			rt.logger.Error("pool stop error", slog.String("error", err.Error()))
		}
	}
	if rt.extensions != nil {
		rt.extensions.EmitShutdown(ctx)
	}
	return err
}

// WithConfig replaces the whole configuration. Zero-valued fields fall
// back to DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(rt *Runtime) error {
		rt.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger for the runtime.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) error {
		rt.logger = l
		return nil
	}
}

// WithJobTTL sets how long finished jobs are retained.
func WithJobTTL(d time.Duration) Option {
	return func(rt *Runtime) error {
		rt.config.JobTTL = d
		return nil
	}
}

// WithMaxEventsPerJob sets the per-job event history cap.
func WithMaxEventsPerJob(n int) Option {
	return func(rt *Runtime) error {
		rt.config.MaxEventsPerJob = n
		return nil
	}
}

// WithQueueCapacity sets the default capacity of every lane queue.
func WithQueueCapacity(n int) Option {
	return func(rt *Runtime) error {
		rt.config.QueueCapacity = n
		return nil
	}
}

// WithWorkersPerLane sets the default number of workers per lane.
func WithWorkersPerLane(n int) Option {
	return func(rt *Runtime) error {
		rt.config.WorkersPerLane = n
		return nil
	}
}

// WithCleanupInterval sets how often the cleanup sweep runs.
func WithCleanupInterval(d time.Duration) Option {
	return func(rt *Runtime) error {
		rt.config.CleanupInterval = d
		return nil
	}
}
