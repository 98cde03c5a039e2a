// Package extension provides the Forge extension adapter for lanes.
//
// It implements the forge.Extension interface to integrate a lanes
// engine into a Forge application with route registration, metrics
// wiring, and lifecycle management.
//
// Configuration can be provided programmatically via ExtOption functions
// or via YAML configuration files under "extensions.lanes" or "lanes" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/api"
	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/ext"
	"github.com/tavlicon/lanes/lwp"
	mw "github.com/tavlicon/lanes/middleware"
	"github.com/tavlicon/lanes/queue"
	"github.com/tavlicon/lanes/resource"
	"github.com/tavlicon/lanes/workload"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "lanes"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Per-lane bounded job queues with streamed progress for GPU generation workloads"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts lanes as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	eng         *engine.Engine
	apiHandler  *api.API
	lwpServer   *lwp.Server
	logger      *slog.Logger
	runtimeOpts []lanes.Option
	laneConfigs []queue.Config
	permits     map[resource.Class]int
	exts        []ext.Extension
	mws         []mw.Middleware
	lwpOpts     []lwp.Option
	models      *workload.Models
}

// New creates a lanes Forge extension with the given options.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
		permits:       make(map[resource.Class]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying lanes engine.
// This is nil until Register is called.
func (e *Extension) Engine() *engine.Engine { return e.eng }

// API returns the API handler.
func (e *Extension) API() *api.API { return e.apiHandler }

// LWPServer returns the LWP server, or nil if LWP is not enabled.
func (e *Extension) LWPServer() *lwp.Server { return e.lwpServer }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It builds the runtime and
// engine, installs executors, and optionally registers HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.init(fapp); err != nil {
		return err
	}

	// Register the engine in the DI container so other extensions can use it.
	if err := vessel.Provide(fapp.Container(), func() (*engine.Engine, error) {
		return e.eng, nil
	}); err != nil {
		return fmt.Errorf("lanes: register engine in container: %w", err)
	}

	return nil
}

// init builds the runtime and engine.
func (e *Extension) init(fapp forge.App) error {
	logger := e.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := make([]lanes.Option, 0, len(e.runtimeOpts)+2)
	opts = append(opts, lanes.WithConfig(e.config.Lanes), lanes.WithLogger(logger))
	opts = append(opts, e.runtimeOpts...)

	rt, err := lanes.New(opts...)
	if err != nil {
		return fmt.Errorf("lanes: create runtime: %w", err)
	}

	engOpts := make([]engine.Option, 0, len(e.exts)+len(e.mws)+len(e.laneConfigs)+len(e.permits)+2)
	engOpts = append(engOpts, engine.WithMetricFactory(fapp.Metrics()))
	if e.config.SweepSchedule != "" {
		engOpts = append(engOpts, engine.WithSweepSchedule(e.config.SweepSchedule))
	}
	for _, x := range e.exts {
		engOpts = append(engOpts, engine.WithExtension(x))
	}
	for _, m := range e.mws {
		engOpts = append(engOpts, engine.WithMiddleware(m))
	}
	for _, lc := range e.laneConfigs {
		engOpts = append(engOpts, engine.WithLane(lc))
	}
	for class, n := range e.permits {
		engOpts = append(engOpts, engine.WithPermits(class, n))
	}

	e.eng, err = engine.Build(rt, engOpts...)
	if err != nil {
		return fmt.Errorf("lanes: build engine: %w", err)
	}

	if e.models != nil {
		workload.Install(e.eng, *e.models, workload.NewArtifacts(e.config.OutputDir), logger)
	}

	e.apiHandler = api.New(e.eng, fapp.Router())
	if !e.config.DisableRoutes {
		e.apiHandler.RegisterRoutes(fapp.Router())
	}

	if e.config.EnableLWP {
		lwpOptList := make([]lwp.Option, 0, len(e.lwpOpts)+2)
		lwpOptList = append(lwpOptList, lwp.WithLogger(logger))
		if e.config.LWPBasePath != "" {
			lwpOptList = append(lwpOptList, lwp.WithPath(e.config.LWPBasePath))
		}
		lwpOptList = append(lwpOptList, e.lwpOpts...)

		e.lwpServer = lwp.NewServer(e.eng, lwp.NewHandler(e.eng, logger), lwpOptList...)
		if !e.config.DisableRoutes {
			e.lwpServer.RegisterRoutes(fapp.Router())
		}
	}

	return nil
}

// Start begins job processing.
func (e *Extension) Start(ctx context.Context) error {
	if e.eng == nil {
		return errors.New("lanes: extension not initialized")
	}

	if err := e.eng.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop gracefully shuts down the lanes engine.
func (e *Extension) Stop(ctx context.Context) error {
	if e.eng == nil {
		e.MarkStopped()
		return nil
	}
	err := e.eng.Stop(ctx)
	e.MarkStopped()
	return err
}

// Health implements [forge.Extension].
func (e *Extension) Health(_ context.Context) error {
	if e.eng == nil {
		return errors.New("lanes: extension not initialized")
	}
	if !e.eng.Runtime().Started() {
		return lanes.ErrNotStarted
	}
	for _, lane := range e.eng.Queues().Lanes() {
		if _, ok := e.eng.Registry().Get(lane); !ok {
			return fmt.Errorf("%w: lane %q", lanes.ErrNoExecutor, lane)
		}
	}
	return nil
}

// Handler returns the HTTP handler for all API routes.
// Convenience for standalone use outside Forge.
func (e *Extension) Handler() http.Handler {
	if e.apiHandler == nil {
		return http.NotFoundHandler()
	}
	return e.apiHandler.Handler()
}

// RegisterRoutes registers all lanes API routes into a Forge router.
func (e *Extension) RegisterRoutes(router forge.Router) {
	if e.apiHandler != nil {
		e.apiHandler.RegisterRoutes(router)
	}
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("lanes: configuration is required but not found in config files; " +
				"ensure 'extensions.lanes' or 'lanes' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("lanes: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("enable_lwp", e.config.EnableLWP),
		forge.F("output_dir", e.config.OutputDir),
		forge.F("queue_capacity", e.config.Lanes.QueueCapacity),
		forge.F("job_ttl", e.config.Lanes.JobTTL.String()),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.lanes", "lanes"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("lanes: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("lanes: failed to bind config",
			forge.F("key", key),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults. Zero
// runtime fields are filled by lanes.New.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaults.OutputDir
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.EnableLWP {
		yamlConfig.EnableLWP = true
	}

	if yamlConfig.LWPBasePath == "" && programmaticConfig.LWPBasePath != "" {
		yamlConfig.LWPBasePath = programmaticConfig.LWPBasePath
	}
	if yamlConfig.OutputDir == "" && programmaticConfig.OutputDir != "" {
		yamlConfig.OutputDir = programmaticConfig.OutputDir
	}
	if yamlConfig.SweepSchedule == "" && programmaticConfig.SweepSchedule != "" {
		yamlConfig.SweepSchedule = programmaticConfig.SweepSchedule
	}

	return e.mergeWithDefaults(yamlConfig)
}
