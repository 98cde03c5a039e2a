package extension

import (
	"log/slog"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/ext"
	"github.com/tavlicon/lanes/lwp"
	mw "github.com/tavlicon/lanes/middleware"
	"github.com/tavlicon/lanes/queue"
	"github.com/tavlicon/lanes/resource"
	"github.com/tavlicon/lanes/workload"
)

// ExtOption configures the lanes Forge extension.
type ExtOption func(*Extension)

// WithRuntimeOptions appends runtime options applied after the config.
func WithRuntimeOptions(opts ...lanes.Option) ExtOption {
	return func(e *Extension) {
		e.runtimeOpts = append(e.runtimeOpts, opts...)
	}
}

// WithLane overrides the queue configuration of one lane.
func WithLane(cfg queue.Config) ExtOption {
	return func(e *Extension) {
		e.laneConfigs = append(e.laneConfigs, cfg)
	}
}

// WithPermits sets the number of concurrent holders of a resource class.
func WithPermits(class resource.Class, n int) ExtOption {
	return func(e *Extension) {
		e.permits[class] = n
	}
}

// WithExtension registers a lanes extension (lifecycle hooks).
func WithExtension(x ext.Extension) ExtOption {
	return func(e *Extension) {
		e.exts = append(e.exts, x)
	}
}

// WithMiddleware adds job middleware to the lanes engine.
func WithMiddleware(m mw.Middleware) ExtOption {
	return func(e *Extension) {
		e.mws = append(e.mws, m)
	}
}

// WithModels installs the lane executors backed by models.
func WithModels(models workload.Models) ExtOption {
	return func(e *Extension) {
		e.models = &models
	}
}

// WithOutputDir sets the artifact directory.
func WithOutputDir(dir string) ExtOption {
	return func(e *Extension) {
		e.config.OutputDir = dir
	}
}

// WithSweepSchedule sweeps expired jobs on a cron expression.
func WithSweepSchedule(expr string) ExtOption {
	return func(e *Extension) {
		e.config.SweepSchedule = expr
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithDisableRoutes disables the registration of HTTP routes.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithLWP enables the Lanes Wire Protocol endpoints.
func WithLWP(opts ...lwp.Option) ExtOption {
	return func(e *Extension) {
		e.config.EnableLWP = true
		e.lwpOpts = append(e.lwpOpts, opts...)
	}
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) ExtOption {
	return func(e *Extension) {
		e.config.RequireConfig = require
	}
}

// WithLogger sets the structured logger for the lanes engine.
func WithLogger(l *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = l
	}
}
