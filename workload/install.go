package workload

import (
	"context"
	"log/slog"
	"time"

	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/resource"
)

// Models holds the lazily loaded model handles of both lanes. A nil
// handle leaves its lane without an executor.
type Models struct {
	Image *resource.Handle[ImageModel]
	Mesh  *resource.Handle[MeshModel]
}

// SimulatedModels returns handles to in-process stand-ins that sleep
// stepDelay per denoising step and per mesh reconstruction.
func SimulatedModels(stepDelay time.Duration) Models {
	return Models{
		Image: resource.NewHandle(func(context.Context) (ImageModel, error) {
			return &SimulatedImageModel{StepDelay: stepDelay}, nil
		}),
		Mesh: resource.NewHandle(func(context.Context) (MeshModel, error) {
			return &SimulatedMeshModel{Delay: stepDelay}, nil
		}),
	}
}

// Install registers the lane executors for every model in models. Both
// executors share the engine's resource manager and write artifacts
// under artifacts.
func Install(eng *engine.Engine, models Models, artifacts *Artifacts, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if models.Image != nil {
		engine.Register(eng, NewImageEdit(models.Image, eng.Resources(), artifacts, logger).Definition())
	}
	if models.Mesh != nil {
		engine.Register(eng, NewMeshGen(models.Mesh, eng.Resources(), artifacts, logger).Definition())
	}
}
