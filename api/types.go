package api

import (
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/workload"
)

// SubmitImageEditRequest is the body of POST /v1/jobs/image_edit.
// Omitted parameters take their defaults. Image is base64 in JSON.
type SubmitImageEditRequest = workload.ImageEditRequest

// SubmitMeshGenRequest is the body of POST /v1/jobs/mesh_gen.
type SubmitMeshGenRequest = workload.MeshGenRequest

// SubmitResponse is returned for an admitted job.
type SubmitResponse struct {
	JobID  string    `json:"job_id"`
	Lane   job.Lane  `json:"lane"`
	Status job.State `json:"status"`
}

// ListJobsRequest holds the query parameters of GET /v1/jobs.
type ListJobsRequest struct {
	Lane   string `json:"lane,omitempty" query:"lane"`
	Status string `json:"status,omitempty" query:"status"`
	Limit  int    `json:"limit,omitempty" query:"limit"`
	Offset int    `json:"offset,omitempty" query:"offset"`
}

// WaitJobRequest holds the query parameters of GET /v1/jobs/:jobId/wait.
type WaitJobRequest struct {
	// Timeout is a Go duration such as "30s". Defaults to 30s, capped at 5m.
	Timeout string `json:"timeout,omitempty" query:"timeout"`
}

// CancelResponse reports the job status after a cancel request.
type CancelResponse struct {
	JobID           string    `json:"job_id"`
	Status          job.State `json:"status"`
	CancelRequested bool      `json:"cancel_requested"`
}

// JobCountsResponse holds job counts per status.
type JobCountsResponse struct {
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// CleanupResponse reports a manual cleanup sweep.
type CleanupResponse struct {
	Evicted int `json:"evicted"`
}

// HealthResponse reports runtime liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Started bool   `json:"started"`
}

// ErrorResponse is written for errors that have no forge helper.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// GetJobRequest binds GET /v1/jobs/:jobId.
type GetJobRequest struct {
	JobID string `json:"-" path:"jobId"`
}

// CancelJobRequest binds POST /v1/jobs/:jobId/cancel.
type CancelJobRequest struct {
	JobID string `json:"-" path:"jobId"`
}

// JobHistoryRequest binds GET /v1/jobs/:jobId/history.
type JobHistoryRequest struct {
	JobID string `json:"-" path:"jobId"`
}
