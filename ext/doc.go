// Package ext defines the extension system for lanes.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, writing audit logs, forwarding to other systems.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
//	    log.Printf("job %s finished in %s", j.ID, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobQueued]: job was created and admitted
//   - [JobStarted]: a lane worker began executing the job
//   - [JobProgressed]: the executor reported progress
//   - [JobSucceeded]: job finished with a result
//   - [JobFailed]: job finished with an error
//   - [JobCancelled]: job was cancelled before it started
//   - [JobRejected]: job could not be admitted to its lane
//
// # Other Hooks
//
//   - [JobsEvicted]: a cleanup sweep removed expired jobs
//   - [Shutdown]: the runtime is shutting down gracefully
//
// Hooks run on the goroutine that caused the transition, after the job
// store has released its lock. A slow hook delays the caller, never
// other jobs' bookkeeping.
package ext
