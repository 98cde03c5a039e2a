package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gu "github.com/xraph/go-utils/metrics"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/ext"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
	mw "github.com/tavlicon/lanes/middleware"
	"github.com/tavlicon/lanes/observability"
	"github.com/tavlicon/lanes/queue"
	"github.com/tavlicon/lanes/resource"
	"github.com/tavlicon/lanes/store/memory"
	"github.com/tavlicon/lanes/stream"
	"github.com/tavlicon/lanes/worker"
)

// Engine wraps a Runtime with typed subsystem access.
// Use Build() to create one from a Runtime.
type Engine struct {
	rt         *lanes.Runtime
	extensions *ext.Registry
	registry   *job.Registry
	store      *memory.Store
	queues     *queue.Manager
	resources  *resource.Manager
	pool       *worker.Pool
	sweeper    *stream.Sweeper
	mws        []mw.Middleware
	logger     *slog.Logger

	laneConfigs   map[job.Lane]queue.Config
	resourceOpts  []resource.Option
	storeOpts     []memory.Option
	sweepSchedule string

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricFactory  gu.MetricFactory
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) {
		eng.extensions.Register(e)
	}
}

// WithMiddleware adds middleware to the engine's chain. It runs inside
// the default recover, tracing, metrics, logging and timeout middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) {
		eng.mws = append(eng.mws, m)
	}
}

// WithLane overrides the queue settings of one lane. Zero capacity and
// workers fall back to the runtime's QueueCapacity and WorkersPerLane.
func WithLane(cfg queue.Config) Option {
	return func(eng *Engine) {
		eng.laneConfigs[cfg.Lane] = cfg
	}
}

// WithPermits sets the permit count of a resource class.
func WithPermits(class resource.Class, n int) Option {
	return func(eng *Engine) {
		eng.resourceOpts = append(eng.resourceOpts, resource.WithPermits(class, n))
	}
}

// WithStoreOptions passes extra options to the in-memory job store,
// applied after the ones derived from the runtime config.
func WithStoreOptions(opts ...memory.Option) Option {
	return func(eng *Engine) {
		eng.storeOpts = append(eng.storeOpts, opts...)
	}
}

// WithSweepSchedule runs the cleanup sweep on a cron expression instead
// of the runtime's CleanupInterval.
func WithSweepSchedule(expr string) Option {
	return func(eng *Engine) {
		eng.sweepSchedule = expr
	}
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// When set, the tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) {
		eng.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom OTel MeterProvider for the metrics
// middleware. If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) {
		eng.meterProvider = mp
	}
}

// WithMetricFactory sets the go-utils factory backing the lifecycle
// counters of the observability extension.
func WithMetricFactory(f gu.MetricFactory) Option {
	return func(eng *Engine) {
		eng.metricFactory = f
	}
}

// Build creates an Engine from an existing Runtime and attaches the
// worker pool, the sweeper and the extension registry to it.
func Build(rt *lanes.Runtime, opts ...Option) (*Engine, error) {
	logger := rt.Logger()
	config := rt.Config()

	eng := &Engine{
		rt:          rt,
		extensions:  ext.NewRegistry(logger),
		registry:    job.NewRegistry(),
		logger:      logger,
		laneConfigs: make(map[job.Lane]queue.Config),
	}

	for _, opt := range opts {
		opt(eng)
	}

	for lane := range eng.laneConfigs {
		if !lane.Valid() {
			return nil, fmt.Errorf("%w: %q", lanes.ErrUnknownLane, lane)
		}
	}

	// Register the observability metrics extension.
	var obsExt *observability.MetricsExtension
	if eng.metricFactory != nil {
		obsExt = observability.NewMetricsExtensionWithFactory(eng.metricFactory)
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)

	storeOpts := []memory.Option{
		memory.WithTTL(config.JobTTL),
		memory.WithMaxEvents(config.MaxEventsPerJob),
		memory.WithSubscriberBuffer(config.SubscriberBuffer),
		memory.WithEmitter(eng.extensions),
		memory.WithLogger(logger),
	}
	eng.store = memory.New(append(storeOpts, eng.storeOpts...)...)

	// One queue per known lane.
	configs := make([]queue.Config, 0, len(job.Lanes()))
	for _, lane := range job.Lanes() {
		cfg, ok := eng.laneConfigs[lane]
		if !ok {
			cfg = queue.Config{Lane: lane}
		}
		if cfg.Capacity <= 0 {
			cfg.Capacity = config.QueueCapacity
		}
		if cfg.Workers <= 0 {
			cfg.Workers = config.WorkersPerLane
		}
		configs = append(configs, cfg)
	}
	eng.queues = queue.NewManager(configs...)
	eng.resources = resource.NewManager(eng.resourceOpts...)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer("github.com/tavlicon/lanes"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter("github.com/tavlicon/lanes"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging → timeout.
	defaultMws := []mw.Middleware{
		mw.Recover(logger),
		tracingMw,
		metricsMw,
		mw.Logging(logger),
		mw.Timeout(logger, eng.queues.Timeouts()),
	}
	allMws := make([]mw.Middleware, 0, len(defaultMws)+len(eng.mws))
	allMws = append(allMws, defaultMws...)
	allMws = append(allMws, eng.mws...)

	executor := worker.NewExecutor(eng.registry, eng.store, logger, allMws...)
	eng.pool = worker.NewPool(eng.store, executor, eng.queues, logger)

	sweepOpt := stream.WithInterval(config.CleanupInterval)
	if eng.sweepSchedule != "" {
		sweepOpt = stream.WithSchedule(eng.sweepSchedule)
	}
	sweeper, err := stream.NewSweeper(eng.store, logger, sweepOpt)
	if err != nil {
		return nil, err
	}
	eng.sweeper = sweeper

	// Wire back into the Runtime.
	rt.SetPool(eng.pool)
	rt.SetSweeper(eng.sweeper)
	rt.SetExtensions(eng.extensions)

	return eng, nil
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// Register registers a typed lane handler with the engine.
func Register[T any](eng *Engine, def *job.Definition[T]) {
	job.RegisterDefinition(eng.registry, eng.store, def)
}

// RegisterFunc registers a raw executor for a lane. The executor must
// record exactly one terminal outcome in the store before returning.
func (eng *Engine) RegisterFunc(lane job.Lane, fn job.ExecuteFunc) {
	eng.registry.Register(lane, fn)
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

// Submit JSON-encodes payload and submits it to lane.
func Submit[T any](ctx context.Context, eng *Engine, lane job.Lane, payload T) (*job.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for lane %q: %w", lane, err)
	}
	return eng.SubmitRaw(ctx, lane, data)
}

// SubmitRaw creates a job and admits it to its lane queue without
// blocking. When the lane is saturated the job is failed with
// lanes.QueueFullMessage and an error wrapping lanes.ErrQueueFull is
// returned, so no job is ever left queued without a worker to run it.
//
// Before Start, jobs are admitted and wait for the workers. Once the
// runtime has been stopped the job is failed with lanes.StoppedMessage
// and lanes.ErrNotStarted is returned.
func (eng *Engine) SubmitRaw(ctx context.Context, lane job.Lane, payload []byte) (*job.Job, error) {
	j, err := eng.store.CreateJob(ctx, lane, payload)
	if err != nil {
		return nil, err
	}
	if eng.rt.Stopped() {
		eng.reject(ctx, j.ID, lanes.StoppedMessage, lanes.ErrNotStarted)
		return nil, lanes.ErrNotStarted
	}
	if err := eng.queues.Enqueue(j.ID, lane); err != nil {
		eng.reject(ctx, j.ID, lanes.QueueFullMessage, err)
		return nil, err
	}
	// Stop may have drained the lanes between the check and the enqueue.
	if eng.rt.Stopped() {
		eng.failQueued(ctx)
		return nil, lanes.ErrNotStarted
	}
	return j, nil
}

// SubmitRawWait is the blocking variant of SubmitRaw: it waits for room
// in the lane queue until ctx is done. The runtime must be started,
// otherwise nothing would ever make room and lanes.ErrNotStarted is
// returned.
func (eng *Engine) SubmitRawWait(ctx context.Context, lane job.Lane, payload []byte) (*job.Job, error) {
	if !eng.rt.Started() {
		return nil, lanes.ErrNotStarted
	}
	j, err := eng.store.CreateJob(ctx, lane, payload)
	if err != nil {
		return nil, err
	}
	if err := eng.queues.EnqueueWait(ctx, j.ID, lane); err != nil {
		eng.reject(context.WithoutCancel(ctx), j.ID, "Admission aborted: "+err.Error(), err)
		return nil, err
	}
	return j, nil
}

// reject fails a job that could not be admitted and notifies extensions.
func (eng *Engine) reject(ctx context.Context, jobID id.JobID, message string, cause error) {
	if err := eng.store.Fail(ctx, jobID, message); err != nil {
		eng.logger.Warn("failed to fail rejected job",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	if j, err := eng.store.GetJob(ctx, jobID); err == nil {
		eng.extensions.EmitJobRejected(ctx, j, cause)
	}
	eng.logger.Warn("job rejected",
		slog.String("job_id", jobID.String()),
		slog.String("error", cause.Error()),
	)
}

// ──────────────────────────────────────────────────
// Queries and control
// ──────────────────────────────────────────────────

// Get returns a job by ID.
func (eng *Engine) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.GetJob(ctx, jobID)
}

// List returns jobs matching opts, newest first.
func (eng *Engine) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return eng.store.ListJobs(ctx, opts)
}

// Cancel requests cancellation of a job. A queued job is cancelled
// immediately; a running one only has its cancel flag set and stops
// when its handler observes it.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return eng.store.Cancel(ctx, jobID)
}

// Wait blocks until the job is terminal, timeout elapses or ctx is done.
func (eng *Engine) Wait(ctx context.Context, jobID id.JobID, timeout time.Duration) (*job.Job, error) {
	return eng.store.Wait(ctx, jobID, timeout)
}

// Events returns a snapshot of the job's retained event history.
func (eng *Engine) Events(ctx context.Context, jobID id.JobID) ([]*job.Event, error) {
	return eng.store.ListEvents(ctx, jobID)
}

// Stream returns the replay-then-follow event sequence of a job.
func (eng *Engine) Stream(ctx context.Context, jobID id.JobID) (<-chan *job.Event, error) {
	return stream.Follow(ctx, eng.store, jobID)
}

// Cleanup runs one cleanup sweep immediately and returns how many jobs
// were evicted.
func (eng *Engine) Cleanup(ctx context.Context) int {
	return eng.sweeper.Sweep(ctx)
}

// ──────────────────────────────────────────────────
// Stats
// ──────────────────────────────────────────────────

// LaneStats combines queue and worker activity for one lane.
type LaneStats struct {
	queue.Stats
	Busy      int   `json:"busy"`
	Processed int64 `json:"processed"`
}

// Stats is a point-in-time view of the whole engine.
type Stats struct {
	Started   bool                `json:"started"`
	Jobs      map[job.State]int64 `json:"jobs"`
	Lanes     []LaneStats         `json:"lanes"`
	Resources []resource.Usage    `json:"resources"`
	Sweeper   stream.SweeperStats `json:"sweeper"`
}

// Stats returns a snapshot of job counts, lane queues, resource permits
// and sweeper activity.
func (eng *Engine) Stats(ctx context.Context) (*Stats, error) {
	jobs := make(map[job.State]int64)
	for _, st := range []job.State{job.StateQueued, job.StateRunning, job.StateSucceeded, job.StateFailed, job.StateCancelled} {
		n, err := eng.store.CountJobs(ctx, job.CountOpts{State: st})
		if err != nil {
			return nil, err
		}
		jobs[st] = n
	}

	qs := eng.queues.Stats()
	laneStats := make([]LaneStats, 0, len(qs))
	for _, q := range qs {
		laneStats = append(laneStats, LaneStats{
			Stats:     q,
			Busy:      eng.pool.Busy(q.Lane),
			Processed: eng.pool.Processed(q.Lane),
		})
	}

	return &Stats{
		Started:   eng.rt.Started(),
		Jobs:      jobs,
		Lanes:     laneStats,
		Resources: eng.resources.Snapshot(),
		Sweeper:   eng.sweeper.Stats(),
	}, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start launches lane workers and the cleanup sweeper.
func (eng *Engine) Start(ctx context.Context) error {
	return eng.rt.Start(ctx)
}

// Stop gracefully shuts down the engine. Jobs still waiting in a lane
// queue once the workers have exited are failed with
// lanes.StoppedMessage.
func (eng *Engine) Stop(ctx context.Context) error {
	err := eng.rt.Stop(ctx)
	if eng.rt.Stopped() {
		eng.failQueued(context.WithoutCancel(ctx))
	}
	return err
}

// failQueued drains every lane and fails the jobs that are still queued.
func (eng *Engine) failQueued(ctx context.Context) {
	for _, lane := range eng.queues.Lanes() {
		for _, jobID := range eng.queues.Drain(lane) {
			j, err := eng.store.GetJob(ctx, jobID)
			if err != nil || j.State != job.StateQueued {
				continue
			}
			eng.reject(ctx, jobID, lanes.StoppedMessage, lanes.ErrNotStarted)
		}
	}
}

// Runtime returns the underlying Runtime.
func (eng *Engine) Runtime() *lanes.Runtime { return eng.rt }

// Store returns the job store.
func (eng *Engine) Store() job.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the executor registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Queues returns the lane queue manager.
func (eng *Engine) Queues() *queue.Manager { return eng.queues }

// Resources returns the resource permit manager shared by executors.
func (eng *Engine) Resources() *resource.Manager { return eng.resources }

// Pool returns the worker pool.
func (eng *Engine) Pool() *worker.Pool { return eng.pool }

// Sweeper returns the cleanup sweeper.
func (eng *Engine) Sweeper() *stream.Sweeper { return eng.sweeper }
