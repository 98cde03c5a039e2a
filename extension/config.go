package extension

import "github.com/tavlicon/lanes"

// Config holds configuration for the lanes Forge extension.
type Config struct {
	// DisableRoutes disables the registration of HTTP routes.
	// Useful when embedding lanes for in-process submission only.
	DisableRoutes bool `default:"false" json:"disable_routes"`

	// EnableLWP mounts the Lanes Wire Protocol endpoints.
	EnableLWP bool `default:"false" json:"enable_lwp"`

	// LWPBasePath overrides the LWP mount point (default "/lwp").
	LWPBasePath string `json:"lwp_base_path"`

	// OutputDir is where executors write generated artifacts.
	OutputDir string `default:"data/output" json:"output_dir"`

	// SweepSchedule is a cron expression for the expired-job sweep. Empty
	// means every Lanes.CleanupInterval.
	SweepSchedule string `json:"sweep_schedule"`

	// RequireConfig makes Register fail when no config file section exists.
	RequireConfig bool `default:"false" json:"require_config"`

	// Lanes holds the core runtime configuration.
	Lanes lanes.Config `json:"lanes"`
}

// DefaultConfig returns the extension defaults.
func DefaultConfig() Config {
	return Config{
		OutputDir: "data/output",
		Lanes:     lanes.DefaultConfig(),
	}
}
