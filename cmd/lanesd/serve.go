package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/api"
	audithook "github.com/tavlicon/lanes/audit_hook"
	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/lwp"
	"github.com/tavlicon/lanes/workload"
)

// serveOptions holds the flags of the serve command.
type serveOptions struct {
	addr            string
	outputDir       string
	queueCapacity   int
	workersPerLane  int
	jobTTL          time.Duration
	cleanupInterval time.Duration
	sweepSchedule   string
	stepDelay       time.Duration
	enableLWP       bool
	lwpPath         string
	shutdownTimeout time.Duration
	audit           bool
}

func defaultServeOptions() serveOptions {
	cfg := lanes.DefaultConfig()
	return serveOptions{
		addr:            ":8000",
		outputDir:       "data/output",
		queueCapacity:   cfg.QueueCapacity,
		workersPerLane:  cfg.WorkersPerLane,
		jobTTL:          cfg.JobTTL,
		cleanupInterval: cfg.CleanupInterval,
		stepDelay:       50 * time.Millisecond,
		enableLWP:       true,
		lwpPath:         "/lwp",
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

func newServeCmd(loggerFn func() (*slog.Logger, error)) *cobra.Command {
	opts := defaultServeOptions()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := loggerFn()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", opts.addr, "HTTP listen address")
	f.StringVar(&opts.outputDir, "output-dir", opts.outputDir, "directory for generated artifacts, served under /data/output/")
	f.IntVar(&opts.queueCapacity, "queue-capacity", opts.queueCapacity, "bounded capacity of every lane queue")
	f.IntVar(&opts.workersPerLane, "workers", opts.workersPerLane, "workers draining each lane")
	f.DurationVar(&opts.jobTTL, "job-ttl", opts.jobTTL, "how long finished jobs stay retrievable")
	f.DurationVar(&opts.cleanupInterval, "cleanup-interval", opts.cleanupInterval, "how often expired jobs are swept")
	f.StringVar(&opts.sweepSchedule, "sweep-schedule", opts.sweepSchedule, "cron expression for the cleanup sweep; overrides --cleanup-interval")
	f.DurationVar(&opts.stepDelay, "step-delay", opts.stepDelay, "simulated model time per denoising step")
	f.BoolVar(&opts.enableLWP, "lwp", opts.enableLWP, "serve the LWP wire protocol")
	f.StringVar(&opts.lwpPath, "lwp-path", opts.lwpPath, "base path of the LWP endpoints")
	f.BoolVar(&opts.audit, "audit", opts.audit, "log an audit event for every job lifecycle transition")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", opts.shutdownTimeout, "grace period for in-flight jobs on shutdown")

	return cmd
}

// server is an assembled but not yet listening lanes deployment.
type server struct {
	eng     *engine.Engine
	handler http.Handler
}

// newServer builds the runtime and engine, installs the simulated models
// and mounts every route on one handler.
func newServer(opts serveOptions, logger *slog.Logger) (*server, error) {
	rt, err := lanes.New(
		lanes.WithLogger(logger),
		lanes.WithQueueCapacity(opts.queueCapacity),
		lanes.WithWorkersPerLane(opts.workersPerLane),
		lanes.WithJobTTL(opts.jobTTL),
		lanes.WithCleanupInterval(opts.cleanupInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}

	var engOpts []engine.Option
	if opts.sweepSchedule != "" {
		engOpts = append(engOpts, engine.WithSweepSchedule(opts.sweepSchedule))
	}
	if opts.audit {
		engOpts = append(engOpts, engine.WithExtension(
			audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger)),
		))
	}
	eng, err := engine.Build(rt, engOpts...)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	workload.Install(eng, workload.SimulatedModels(opts.stepDelay), workload.NewArtifacts(opts.outputDir), logger)

	router := forge.NewRouter()
	api.New(eng, router).RegisterRoutes(router)
	if opts.enableLWP {
		lwpServer := lwp.NewServer(eng, lwp.NewHandler(eng, logger),
			lwp.WithLogger(logger),
			lwp.WithPath(opts.lwpPath),
		)
		lwpServer.RegisterRoutes(router)
	}

	mux := http.NewServeMux()
	mux.Handle("/data/output/", http.StripPrefix("/data/output/", http.FileServer(http.Dir(opts.outputDir))))
	mux.Handle("/", router.Handler())

	return &server{eng: eng, handler: mux}, nil
}

// runServe starts the engine and serves HTTP until ctx is cancelled,
// then drains HTTP connections and stops the engine.
func runServe(ctx context.Context, opts serveOptions, logger *slog.Logger) error {
	srv, err := newServer(opts, logger)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := srv.eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("lanesd listening",
			slog.String("addr", opts.addr),
			slog.String("output_dir", opts.outputDir),
			slog.Bool("lwp", opts.enableLWP),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.shutdownTimeout)
		defer cancel()

		httpErr := httpServer.Shutdown(shutdownCtx)
		if err := srv.eng.Stop(shutdownCtx); err != nil {
			logger.Error("engine shutdown error", slog.String("error", err.Error()))
		}
		return httpErr
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("goodbye")
	return nil
}
