package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

func (a *API) listJobs(ctx forge.Context) error {
	opts := job.ListOpts{
		Limit:  defaultLimit(queryInt(ctx, "limit")),
		Offset: queryInt(ctx, "offset"),
	}
	if v := ctx.Query("lane"); v != "" {
		lane, err := job.ParseLane(v)
		if err != nil {
			return forge.BadRequest(err.Error())
		}
		opts.Lane = lane
	}
	if v := ctx.Query("status"); v != "" {
		state, err := jobStateFromString(v)
		if err != nil {
			return forge.BadRequest(err.Error())
		}
		opts.State = state
	}

	jobs, err := a.eng.List(ctx.Context(), opts)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	return ctx.JSON(http.StatusOK, jobs)
}

func (a *API) jobCounts(ctx forge.Context) error {
	st, err := a.eng.Stats(ctx.Context())
	if err != nil {
		return fmt.Errorf("job counts: %w", err)
	}
	return ctx.JSON(http.StatusOK, JobCountsResponse{
		Queued:    st.Jobs[job.StateQueued],
		Running:   st.Jobs[job.StateRunning],
		Succeeded: st.Jobs[job.StateSucceeded],
		Failed:    st.Jobs[job.StateFailed],
		Cancelled: st.Jobs[job.StateCancelled],
	})
}

func (a *API) getJob(ctx forge.Context, _ *GetJobRequest) (*job.Job, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.Get(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return j, ctx.JSON(http.StatusOK, j)
}

func (a *API) jobHistory(ctx forge.Context, _ *JobHistoryRequest) ([]*job.Event, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	events, err := a.eng.Events(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	return events, ctx.JSON(http.StatusOK, events)
}

func (a *API) cancelJob(ctx forge.Context, _ *CancelJobRequest) (*CancelResponse, error) {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return nil, forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	j, err := a.eng.Cancel(ctx.Context(), jobID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	resp := &CancelResponse{
		JobID:           j.ID.String(),
		Status:          j.State,
		CancelRequested: j.CancelRequested,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) waitJob(ctx forge.Context) error {
	jobID, err := id.ParseJobID(ctx.Param("jobId"))
	if err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid job ID: %v", err))
	}

	timeout := defaultWaitTimeout
	if v := ctx.Query("timeout"); v != "" {
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil || d <= 0 {
			return forge.BadRequest(fmt.Sprintf("invalid timeout %q", v))
		}
		timeout = min(d, maxWaitTimeout)
	}

	j, err := a.eng.Wait(ctx.Context(), jobID, timeout)
	if errors.Is(err, lanes.ErrTimeout) {
		return ctx.Status(http.StatusRequestTimeout).JSON(ErrorResponse{Detail: "job did not finish in time"})
	}
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, j)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, lanes.ErrJobNotFound):
		return forge.NotFound("Job not found")
	case errors.Is(err, lanes.ErrInvalidArgs), errors.Is(err, lanes.ErrUnknownLane):
		return forge.BadRequest(err.Error())
	default:
		return forge.InternalError(err)
	}
}

func jobStateFromString(s string) (job.State, error) {
	switch st := job.State(s); st {
	case job.StateQueued, job.StateRunning, job.StateSucceeded, job.StateFailed, job.StateCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

func queryInt(ctx forge.Context, key string) int {
	v, err := strconv.Atoi(ctx.Query(key))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return min(limit, 500)
}
