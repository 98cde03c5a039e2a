package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/lwp"
)

// SubmitResult contains the result of a submit operation.
type SubmitResult struct {
	JobID  string    `json:"job_id"`
	Lane   job.Lane  `json:"lane"`
	Status job.State `json:"status"`
}

// SubmitOption configures a submit request.
type SubmitOption func(*lwp.JobSubmitRequest)

// WithWait makes the server hold the submission until the lane has room
// instead of rejecting it when the lane is full.
func WithWait() SubmitOption {
	return func(r *lwp.JobSubmitRequest) { r.Wait = true }
}

// Submit sends a job to a lane on the remote server. A full lane
// returns an error matching lanes.ErrQueueFull.
func (c *Client) Submit(ctx context.Context, lane job.Lane, payload any, opts ...SubmitOption) (*SubmitResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req := lwp.JobSubmitRequest{
		Lane:    string(lane),
		Payload: raw,
	}
	for _, opt := range opts {
		opt(&req)
	}

	var result SubmitResult
	if err := c.call(ctx, lwp.MethodJobSubmit, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob retrieves a job by ID.
func (c *Client) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	var j job.Job
	if err := c.call(ctx, lwp.MethodJobGet, lwp.JobGetRequest{JobID: jobID}, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// CancelJob cancels a queued job, or flags a running job for
// cooperative cancellation, and reports the resulting status.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*lwp.JobCancelResponse, error) {
	var resp lwp.JobCancelResponse
	if err := c.call(ctx, lwp.MethodJobCancel, lwp.JobCancelRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListJobs lists jobs on the remote server.
func (c *Client) ListJobs(ctx context.Context, req lwp.JobListRequest) ([]*job.Job, error) {
	var jobs []*job.Job
	if err := c.call(ctx, lwp.MethodJobList, req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// WaitJob blocks until the job is terminal or the server-side timeout
// elapses, in which case the error matches lanes.ErrTimeout.
func (c *Client) WaitJob(ctx context.Context, jobID string, timeout time.Duration) (*job.Job, error) {
	var j job.Job
	req := lwp.JobWaitRequest{JobID: jobID, TimeoutMS: timeout.Milliseconds()}
	if err := c.call(ctx, lwp.MethodJobWait, req, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// JobEvents returns the retained event history of a job.
func (c *Client) JobEvents(ctx context.Context, jobID string) ([]*job.Event, error) {
	var events []*job.Event
	if err := c.call(ctx, lwp.MethodJobEvents, lwp.JobEventsRequest{JobID: jobID}, &events); err != nil {
		return nil, err
	}
	return events, nil
}
