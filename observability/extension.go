package observability

import (
	"context"
	"time"

	gu "github.com/xraph/go-utils/metrics"

	"github.com/tavlicon/lanes/ext"
	"github.com/tavlicon/lanes/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobQueued     = (*MetricsExtension)(nil)
	_ ext.JobStarted    = (*MetricsExtension)(nil)
	_ ext.JobProgressed = (*MetricsExtension)(nil)
	_ ext.JobSucceeded  = (*MetricsExtension)(nil)
	_ ext.JobFailed     = (*MetricsExtension)(nil)
	_ ext.JobCancelled  = (*MetricsExtension)(nil)
	_ ext.JobRejected   = (*MetricsExtension)(nil)
	_ ext.JobsEvicted   = (*MetricsExtension)(nil)
)

// MetricsExtension records system-wide lifecycle metrics via go-utils MetricFactory.
// Register it as a lanes extension to track admission rates, rejections,
// completion and failure counts, and evictions.
type MetricsExtension struct {
	JobQueued     gu.Counter
	JobStarted    gu.Counter
	JobProgressed gu.Counter
	JobSucceeded  gu.Counter
	JobFailed     gu.Counter
	JobCancelled  gu.Counter
	JobRejected   gu.Counter
	JobsEvicted   gu.Counter
}

// NewMetricsExtension creates a MetricsExtension using a default metrics collector.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithFactory(gu.NewMetricsCollector("lanes/observability"))
}

// NewMetricsExtensionWithFactory creates a MetricsExtension with the provided MetricFactory.
// Use fapp.Metrics() in forge extensions, or gu.NewMetricsCollector for testing.
func NewMetricsExtensionWithFactory(factory gu.MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		JobQueued:     factory.Counter("lanes.job.queued"),
		JobStarted:    factory.Counter("lanes.job.started"),
		JobProgressed: factory.Counter("lanes.job.progress_events"),
		JobSucceeded:  factory.Counter("lanes.job.succeeded"),
		JobFailed:     factory.Counter("lanes.job.failed"),
		JobCancelled:  factory.Counter("lanes.job.cancelled"),
		JobRejected:   factory.Counter("lanes.job.rejected"),
		JobsEvicted:   factory.Counter("lanes.job.evicted"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements ext.JobQueued.
func (m *MetricsExtension) OnJobQueued(_ context.Context, _ *job.Job) error {
	m.JobQueued.Inc()
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(_ context.Context, _ *job.Job) error {
	m.JobStarted.Inc()
	return nil
}

// OnJobProgressed implements ext.JobProgressed.
func (m *MetricsExtension) OnJobProgressed(_ context.Context, _ *job.Job, _ job.Progress) error {
	m.JobProgressed.Inc()
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	m.JobSucceeded.Inc()
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(_ context.Context, _ *job.Job, _ error) error {
	m.JobFailed.Inc()
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(_ context.Context, _ *job.Job) error {
	m.JobCancelled.Inc()
	return nil
}

// OnJobRejected implements ext.JobRejected.
func (m *MetricsExtension) OnJobRejected(_ context.Context, _ *job.Job, _ error) error {
	m.JobRejected.Inc()
	return nil
}

// ── Maintenance hooks ───────────────────────────────

// OnJobsEvicted implements ext.JobsEvicted.
func (m *MetricsExtension) OnJobsEvicted(_ context.Context, count int) error {
	for range count {
		m.JobsEvicted.Inc()
	}
	return nil
}
