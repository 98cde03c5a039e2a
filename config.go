package lanes

import "time"

// Config holds configuration for the Runtime.
type Config struct {
	// JobTTL is how long a finished job stays retrievable after it
	// reached a terminal state. The cleanup sweep evicts it afterwards.
	JobTTL time.Duration `default:"1h" json:"job_ttl"`

	// MaxEventsPerJob caps the per-job event history. The terminal
	// event is always retained regardless of the cap.
	MaxEventsPerJob int `default:"200" json:"max_events_per_job"`

	// SubscriberBuffer is the delivery buffer of each live subscription.
	// A subscriber that falls this far behind starts missing events.
	SubscriberBuffer int `default:"1024" json:"subscriber_buffer"`

	// CleanupInterval is how often expired jobs are swept.
	CleanupInterval time.Duration `default:"60s" json:"cleanup_interval"`

	// QueueCapacity is the default bounded capacity of every lane queue.
	QueueCapacity int `default:"10" json:"queue_capacity"`

	// WorkersPerLane is the default number of workers draining each lane.
	WorkersPerLane int `default:"1" json:"workers_per_lane"`

	// ShutdownTimeout is the maximum time to wait for in-flight jobs
	// during graceful shutdown.
	ShutdownTimeout time.Duration `default:"30s" json:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		JobTTL:           time.Hour,
		MaxEventsPerJob:  200,
		SubscriberBuffer: 1024,
		CleanupInterval:  60 * time.Second,
		QueueCapacity:    10,
		WorkersPerLane:   1,
		ShutdownTimeout:  30 * time.Second,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.MaxEventsPerJob <= 0 {
		c.MaxEventsPerJob = d.MaxEventsPerJob
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = d.SubscriberBuffer
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.WorkersPerLane <= 0 {
		c.WorkersPerLane = d.WorkersPerLane
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	return c
}
