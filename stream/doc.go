// Package stream turns a job's buffered history and live subscription
// into a single ordered event sequence, and periodically sweeps expired
// jobs out of the store.
//
// # Replay then follow
//
// [Follow] snapshots the job's history and registers a live
// subscription in one atomic store operation, then yields the snapshot
// oldest first followed by live events. Events are de-duplicated by
// sequence number. When a slow consumer misses live events, the gap is
// filled from the store's history where it is still retained. The
// sequence ends after the terminal event, or when the context is done.
//
//	events, err := stream.Follow(ctx, store, jobID)
//	if err != nil {
//	    return err
//	}
//	for evt := range events {
//	    send(evt)
//	}
//
// # Sweeping
//
// A [Sweeper] calls CleanupExpired on a fixed interval or a cron
// schedule. Sweep failures and panics are logged and never propagated.
package stream
