package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/workload"
)

func (a *API) submitImageEdit(ctx forge.Context) error {
	req := SubmitImageEditRequest{Params: workload.DefaultImageEditParams()}
	if err := ctx.Bind(&req); err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	if len(req.Image) == 0 {
		return forge.BadRequest("image is required")
	}
	if err := req.Params.Validate(); err != nil {
		return forge.BadRequest(err.Error())
	}

	j, err := engine.Submit(ctx.Context(), a.eng, job.LaneImageEdit, req)
	return a.writeSubmit(ctx, j, err)
}

func (a *API) submitMeshGen(ctx forge.Context) error {
	req := SubmitMeshGenRequest{Params: workload.DefaultMeshGenParams()}
	if err := ctx.Bind(&req); err != nil {
		return forge.BadRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	if len(req.Image) == 0 {
		return forge.BadRequest("image is required")
	}
	if err := req.Params.Validate(); err != nil {
		return forge.BadRequest(err.Error())
	}

	j, err := engine.Submit(ctx.Context(), a.eng, job.LaneMeshGen, req)
	return a.writeSubmit(ctx, j, err)
}

// writeSubmit renders the outcome of an admission attempt. A full lane
// maps to 429 with the retry hint clients display verbatim.
func (a *API) writeSubmit(ctx forge.Context, j *job.Job, err error) error {
	if errors.Is(err, lanes.ErrQueueFull) {
		return ctx.Status(http.StatusTooManyRequests).JSON(ErrorResponse{Detail: lanes.QueueFullMessage})
	}
	if errors.Is(err, lanes.ErrNotStarted) {
		return ctx.Status(http.StatusServiceUnavailable).JSON(ErrorResponse{Detail: lanes.StoppedMessage})
	}
	if err != nil {
		return mapStoreError(err)
	}
	return ctx.JSON(http.StatusOK, SubmitResponse{
		JobID:  j.ID.String(),
		Lane:   j.Lane,
		Status: j.State,
	})
}
