package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobQueued    = "job.queued"
	ActionJobStarted   = "job.started"
	ActionJobSucceeded = "job.succeeded"
	ActionJobFailed    = "job.failed"
	ActionJobCancelled = "job.cancelled"
	ActionJobRejected  = "job.rejected"
	ActionJobsEvicted  = "jobs.evicted"
)

// Audit event categories group related actions.
const (
	CategoryJob     = "lanes.job"
	CategoryCleanup = "lanes.cleanup"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob   = "job"
	ResourceStore = "job_store"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobQueued,
		ActionJobStarted,
		ActionJobSucceeded,
		ActionJobFailed,
		ActionJobCancelled,
		ActionJobRejected,
		ActionJobsEvicted,
	}
}
