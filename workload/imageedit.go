package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/resource"
)

// ErrModelNotLoaded is returned when a model handle fails to load.
var ErrModelNotLoaded = errors.New("Model not loaded")

// ImageEditResult is the result of a succeeded image_edit job.
type ImageEditResult struct {
	Status         string  `json:"status"`
	OutputPath     string  `json:"output_path"`
	ImageURL       string  `json:"image_url"`
	Seed           int64   `json:"seed"`
	EffectiveSteps int     `json:"effective_steps"`
	TimeTaken      float64 `json:"time_taken"`
}

// ImageEdit executes image_edit jobs.
type ImageEdit struct {
	model     *resource.Handle[ImageModel]
	resources *resource.Manager
	artifacts *Artifacts
	logger    *slog.Logger
}

// NewImageEdit creates the image_edit executor.
func NewImageEdit(model *resource.Handle[ImageModel], resources *resource.Manager, artifacts *Artifacts, logger *slog.Logger) *ImageEdit {
	return &ImageEdit{model: model, resources: resources, artifacts: artifacts, logger: logger}
}

// Definition returns the lane handler definition.
func (e *ImageEdit) Definition() *job.Definition[ImageEditRequest] {
	return job.NewDefinition(job.LaneImageEdit, e.Handle)
}

// Handle runs one image_edit job. Progress is reported once per
// effective denoising step under the "denoise" stage.
func (e *ImageEdit) Handle(ctx context.Context, req ImageEditRequest, r job.Reporter) (any, error) {
	p := req.Params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", lanes.ErrInvalidArgs)
	}
	if r.CancelRequested() {
		return nil, lanes.ErrCancelRequested
	}

	model, err := e.model.Get(ctx)
	if err != nil {
		e.logger.Error("image model load failed", slog.String("error", err.Error()))
		return nil, ErrModelNotLoaded
	}

	begin := time.Now()
	var out []byte
	err = e.resources.Do(ctx, resource.ClassImage, func(ctx context.Context) error {
		// The sampler lives inside the shared pipeline.
		if err := model.SetSampler(p.SamplerName, p.Scheduler); err != nil {
			return fmt.Errorf("set sampler %s/%s: %w", p.SamplerName, p.Scheduler, err)
		}
		var editErr error
		out, editErr = model.Edit(ctx, req.Image, p, func(step, total int) bool {
			r.Progress(step, total, "denoise")
			return !r.CancelRequested()
		})
		return editErr
	})
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(begin)

	path := e.artifacts.ImageEditPath(p.Seed)
	if err := e.artifacts.Write(path, out); err != nil {
		return nil, err
	}

	return ImageEditResult{
		Status:         "success",
		OutputPath:     path,
		ImageURL:       e.artifacts.URL(path),
		Seed:           p.Seed,
		EffectiveSteps: p.EffectiveSteps(),
		TimeTaken:      elapsed.Seconds(),
	}, nil
}
