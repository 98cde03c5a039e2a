// Package lwp implements the Lanes Wire Protocol (LWP), a message-based
// protocol for remote clients of a lanes engine. LWP is transported over
// WebSocket (primary), SSE (read-only job event streams), and HTTP
// (one-shot RPC).
package lwp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FrameType identifies the frame category.
type FrameType string

const (
	FrameRequest  FrameType = "request"
	FrameResponse FrameType = "response"
	FrameEvent    FrameType = "event"
	FrameErr      FrameType = "error"
	FramePing     FrameType = "ping"
	FramePong     FrameType = "pong"
)

// Frame is the LWP message envelope. Every message exchanged over the
// protocol is a Frame.
type Frame struct {
	// ID uniquely identifies this frame.
	ID string `json:"id" msgpack:"id"`

	// Type categorizes the frame.
	Type FrameType `json:"type" msgpack:"type"`

	// Method names the operation for request frames (e.g., "job.submit").
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`

	// CorrelID links a response to its originating request.
	CorrelID string `json:"correl_id,omitempty" msgpack:"correl_id,omitempty"`

	// Data carries the method-specific payload.
	Data json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`

	// Error carries error details for error frames.
	Error *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`

	// Channel identifies the subscription channel for event and
	// subscribe frames.
	Channel string `json:"channel,omitempty" msgpack:"channel,omitempty"`

	// Timestamp records when this frame was created.
	Timestamp time.Time `json:"ts" msgpack:"ts"`
}

// ErrorDetail describes an error in an error frame.
type ErrorDetail struct {
	Code    int    `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ── Well-known methods ──────────────────────────────

const (
	// MethodHello opens a WebSocket session and negotiates the codec.
	MethodHello = "hello"

	// Job methods.
	MethodJobSubmit = "job.submit"
	MethodJobGet    = "job.get"
	MethodJobCancel = "job.cancel"
	MethodJobList   = "job.list"
	MethodJobWait   = "job.wait"
	MethodJobEvents = "job.events"

	// Subscription methods.
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"

	// Admin methods.
	MethodStats = "stats"
)

// ── Well-known error codes ──────────────────────────

const (
	ErrCodeBadRequest         = 400
	ErrCodeNotFound           = 404
	ErrCodeMethodNotFound     = 405
	ErrCodeTimeout            = 408
	ErrCodeConflict           = 409
	ErrCodeTooManyRequests    = 429
	ErrCodeInternal           = 500
	ErrCodeServiceUnavailable = 503
)

// ── Request/Response payloads ───────────────────────

// HelloRequest is the first frame of a WebSocket session.
type HelloRequest struct {
	Format string `json:"format,omitempty"` // "json" (default), "msgpack"
}

// HelloResponse is returned once the session is established.
type HelloResponse struct {
	Format    string `json:"format"`
	SessionID string `json:"session_id"`
}

// JobSubmitRequest submits a new job to a lane.
type JobSubmitRequest struct {
	Lane    string          `json:"lane"`
	Payload json.RawMessage `json:"payload"`
	// Wait blocks admission until the lane has room instead of
	// rejecting the job when the lane is full.
	Wait bool `json:"wait,omitempty"`
}

// JobSubmitResponse confirms job admission.
type JobSubmitResponse struct {
	JobID string `json:"job_id"`
	Lane  string `json:"lane"`
	State string `json:"status"`
}

// JobGetRequest retrieves a job by ID.
type JobGetRequest struct {
	JobID string `json:"job_id"`
}

// JobCancelRequest cancels a job.
type JobCancelRequest struct {
	JobID string `json:"job_id"`
}

// JobCancelResponse reports the job status after a cancel request.
type JobCancelResponse struct {
	JobID           string `json:"job_id"`
	State           string `json:"status"`
	CancelRequested bool   `json:"cancel_requested"`
}

// JobListRequest lists jobs with optional filters.
type JobListRequest struct {
	Lane   string `json:"lane,omitempty"`
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// JobWaitRequest blocks until a job is terminal.
type JobWaitRequest struct {
	JobID     string `json:"job_id"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// JobEventsRequest returns a job's retained event history.
type JobEventsRequest struct {
	JobID string `json:"job_id"`
}

// SubscribeRequest subscribes to a channel. The only channel family is
// "job:<jobID>", which replays the job's history then follows it live
// until its terminal event.
type SubscribeRequest struct {
	Channel string `json:"channel"`
}

// UnsubscribeRequest removes a subscription.
type UnsubscribeRequest struct {
	Channel string `json:"channel"`
}

// NewRequestFrame creates a new request frame.
func NewRequestFrame(id, method string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        id,
		Type:      FrameRequest,
		Method:    method,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponseFrame creates a response to a request.
func NewResponseFrame(correlID string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameResponse,
		CorrelID:  correlID,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorFrame creates an error response to a request.
func NewErrorFrame(correlID string, code int, message string) *Frame {
	return &Frame{
		ID:       GenerateFrameID(),
		Type:     FrameErr,
		CorrelID: correlID,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC(),
	}
}

// NewEventFrame creates an event frame for a subscription channel.
func NewEventFrame(channel string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{
		ID:        GenerateFrameID(),
		Type:      FrameEvent,
		Channel:   channel,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GenerateFrameID returns a new unique frame ID.
func GenerateFrameID() string {
	return uuid.NewString()
}
