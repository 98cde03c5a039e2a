// Package audithook is a lanes extension that turns job lifecycle hooks
// into structured audit events.
//
// Every queued, started, succeeded, failed, cancelled and rejected job
// produces one [AuditEvent] that is handed to a [Recorder]. Terminal
// failures are recorded as critical, rejections and cancellations as
// warnings, everything else as info.
//
// # Recording to a logger
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    logger.InfoContext(ctx, "audit", "action", evt.Action, "job_id", evt.ResourceID)
//	    return nil
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobRejected,
//	    ),
//	)
package audithook
