// Package queue provides per-lane admission control.
//
// Every lane owns one bounded FIFO of job IDs whose capacity is fixed
// when the [Manager] is built. Submission never blocks by default:
// [Manager.Enqueue] fails immediately with lanes.ErrQueueFull when the
// lane is saturated, so callers can surface a "try again" signal instead
// of leaving a job stuck in the queued state.
//
//	m := queue.NewManager(
//	    queue.Config{Lane: job.LaneImageEdit, Capacity: 10, Workers: 1},
//	    queue.Config{Lane: job.LaneMeshGen, Capacity: 4, RateLimit: 0.5, RateBurst: 2},
//	)
//	if err := m.Enqueue(jobID, job.LaneImageEdit); errors.Is(err, lanes.ErrQueueFull) {
//	    // reject
//	}
//
// # Rate Limiting
//
// A lane with a non-zero RateLimit additionally admits at most that many
// jobs per second, using a token bucket (golang.org/x/time/rate). Rate
// denials are reported as lanes.ErrQueueFull too, since both mean the
// lane cannot take more work right now.
//
// [Manager.EnqueueWait] is the blocking variant for callers that prefer
// to wait for room over being rejected.
package queue
