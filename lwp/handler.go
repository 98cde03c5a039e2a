package lwp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/workload"
)

const (
	// ChannelPrefixJob prefixes per-job subscription channels.
	ChannelPrefixJob = "job:"

	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

// JobChannel returns the subscription channel for a job.
func JobChannel(jobID string) string { return ChannelPrefixJob + jobID }

// ParseChannel extracts the job ID from a "job:<jobID>" channel.
func ParseChannel(channel string) (id.JobID, error) {
	raw, ok := strings.CutPrefix(channel, ChannelPrefixJob)
	if !ok {
		return id.JobID{}, fmt.Errorf("lwp: unsupported channel %q", channel)
	}
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.JobID{}, fmt.Errorf("lwp: invalid channel %q: %w", channel, err)
	}
	return jobID, nil
}

// StatsResponse is returned by the stats method.
type StatsResponse struct {
	Engine      *engine.Stats `json:"engine"`
	Connections int           `json:"connections"`
}

// Handler dispatches LWP frames to engine operations.
type Handler struct {
	eng    *engine.Engine
	conns  *ConnectionManager
	logger *slog.Logger
}

// NewHandler creates a new LWP method handler.
func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	return &Handler{eng: eng, logger: logger}
}

// Handle processes a single LWP request frame and returns a response.
// Subscriptions are acknowledged here; the server owns the forwarders.
func (h *Handler) Handle(ctx context.Context, frame *Frame, _ *Connection) *Frame {
	switch frame.Method {
	case MethodJobSubmit:
		return h.handleJobSubmit(ctx, frame)
	case MethodJobGet:
		return h.handleJobGet(ctx, frame)
	case MethodJobCancel:
		return h.handleJobCancel(ctx, frame)
	case MethodJobList:
		return h.handleJobList(ctx, frame)
	case MethodJobWait:
		return h.handleJobWait(ctx, frame)
	case MethodJobEvents:
		return h.handleJobEvents(ctx, frame)
	case MethodSubscribe:
		return h.handleSubscribe(ctx, frame)
	case MethodUnsubscribe:
		return h.handleUnsubscribe(frame)
	case MethodStats:
		return h.handleStats(ctx, frame)
	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method)
	}
}

// mustResponseFrame creates a response frame, returning an error frame on marshal failure.
func mustResponseFrame(frameID string, data any) *Frame {
	resp, err := NewResponseFrame(frameID, data)
	if err != nil {
		return NewErrorFrame(frameID, ErrCodeInternal, "marshal response: "+err.Error())
	}
	return resp
}

// errorFrame maps a lanes error to an error frame.
func errorFrame(frameID string, err error) *Frame {
	switch {
	case errors.Is(err, lanes.ErrQueueFull):
		return NewErrorFrame(frameID, ErrCodeTooManyRequests, lanes.QueueFullMessage)
	case errors.Is(err, lanes.ErrJobNotFound):
		return NewErrorFrame(frameID, ErrCodeNotFound, "Job not found")
	case errors.Is(err, lanes.ErrInvalidArgs), errors.Is(err, lanes.ErrUnknownLane):
		return NewErrorFrame(frameID, ErrCodeBadRequest, err.Error())
	case errors.Is(err, lanes.ErrTimeout):
		return NewErrorFrame(frameID, ErrCodeTimeout, err.Error())
	case errors.Is(err, lanes.ErrInvalidState):
		return NewErrorFrame(frameID, ErrCodeConflict, err.Error())
	case errors.Is(err, lanes.ErrNotStarted):
		return NewErrorFrame(frameID, ErrCodeServiceUnavailable, err.Error())
	default:
		return NewErrorFrame(frameID, ErrCodeInternal, err.Error())
	}
}

func decode(frame *Frame, v any) *Frame {
	if len(frame.Data) == 0 {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "missing request data")
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid request: "+err.Error())
	}
	return nil
}

func (h *Handler) handleJobSubmit(ctx context.Context, frame *Frame) *Frame {
	var req JobSubmitRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	lane, err := job.ParseLane(req.Lane)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}
	payload, err := workload.Normalize(lane, req.Payload)
	if err != nil {
		return errorFrame(frame.ID, err)
	}

	var j *job.Job
	if req.Wait {
		j, err = h.eng.SubmitRawWait(ctx, lane, payload)
	} else {
		j, err = h.eng.SubmitRaw(ctx, lane, payload)
	}
	if err != nil {
		return errorFrame(frame.ID, err)
	}

	return mustResponseFrame(frame.ID, JobSubmitResponse{
		JobID: j.ID.String(),
		Lane:  string(j.Lane),
		State: string(j.State),
	})
}

func (h *Handler) handleJobGet(ctx context.Context, frame *Frame) *Frame {
	var req JobGetRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	j, err := h.eng.Get(ctx, jobID)
	if err != nil {
		return errorFrame(frame.ID, err)
	}
	return mustResponseFrame(frame.ID, j)
}

func (h *Handler) handleJobCancel(ctx context.Context, frame *Frame) *Frame {
	var req JobCancelRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	j, err := h.eng.Cancel(ctx, jobID)
	if err != nil {
		return errorFrame(frame.ID, err)
	}
	return mustResponseFrame(frame.ID, JobCancelResponse{
		JobID:           j.ID.String(),
		State:           string(j.State),
		CancelRequested: j.CancelRequested,
	})
}

func (h *Handler) handleJobList(ctx context.Context, frame *Frame) *Frame {
	var req JobListRequest
	if len(frame.Data) > 0 {
		if errFrame := decode(frame, &req); errFrame != nil {
			return errFrame
		}
	}

	opts := job.ListOpts{Limit: req.Limit, Offset: req.Offset, State: job.State(req.Status)}
	if req.Lane != "" {
		lane, err := job.ParseLane(req.Lane)
		if err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
		}
		opts.Lane = lane
	}

	jobs, err := h.eng.List(ctx, opts)
	if err != nil {
		return errorFrame(frame.ID, err)
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	return mustResponseFrame(frame.ID, jobs)
}

func (h *Handler) handleJobWait(ctx context.Context, frame *Frame) *Frame {
	var req JobWaitRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	timeout := defaultWaitTimeout
	if req.TimeoutMS > 0 {
		timeout = min(time.Duration(req.TimeoutMS)*time.Millisecond, maxWaitTimeout)
	}

	j, err := h.eng.Wait(ctx, jobID, timeout)
	if err != nil {
		return errorFrame(frame.ID, err)
	}
	return mustResponseFrame(frame.ID, j)
}

func (h *Handler) handleJobEvents(ctx context.Context, frame *Frame) *Frame {
	var req JobEventsRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	jobID, err := id.ParseJobID(req.JobID)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, "invalid job ID: "+err.Error())
	}

	events, err := h.eng.Events(ctx, jobID)
	if err != nil {
		return errorFrame(frame.ID, err)
	}
	return mustResponseFrame(frame.ID, events)
}

func (h *Handler) handleSubscribe(ctx context.Context, frame *Frame) *Frame {
	var req SubscribeRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	jobID, err := ParseChannel(req.Channel)
	if err != nil {
		return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error())
	}
	if _, err := h.eng.Get(ctx, jobID); err != nil {
		return errorFrame(frame.ID, err)
	}

	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "subscribed",
	})
}

func (h *Handler) handleUnsubscribe(frame *Frame) *Frame {
	var req UnsubscribeRequest
	if errFrame := decode(frame, &req); errFrame != nil {
		return errFrame
	}

	return mustResponseFrame(frame.ID, map[string]string{
		"channel": req.Channel,
		"status":  "unsubscribed",
	})
}

func (h *Handler) handleStats(ctx context.Context, frame *Frame) *Frame {
	st, err := h.eng.Stats(ctx)
	if err != nil {
		return errorFrame(frame.ID, err)
	}

	resp := StatsResponse{Engine: st}
	if h.conns != nil {
		resp.Connections = h.conns.Count()
	}
	return mustResponseFrame(frame.ID, resp)
}
