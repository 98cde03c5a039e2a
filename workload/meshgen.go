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

// ErrMeshModelUnavailable is returned when the mesh model fails to load.
var ErrMeshModelUnavailable = errors.New("TripoSR model not available")

// Mesh progress stages. Reconstruction is not step based, so progress
// advances through four coarse stages.
const (
	stagePreprocess = "preprocess"
	stageInference  = "inference"
	stageExport     = "export"
	stageDone       = "done"
	meshStages      = 4
)

// MeshGenResult is the result of a succeeded mesh_gen job.
type MeshGenResult struct {
	Status     string  `json:"status"`
	MeshURL    string  `json:"mesh_path"`
	VideoURL   string  `json:"video_url,omitempty"`
	OutputPath string  `json:"output_path"`
	Vertices   int     `json:"vertices"`
	Faces      int     `json:"faces"`
	TimeTaken  float64 `json:"time_taken"`
	MeshTime   float64 `json:"mesh_time"`
	VideoTime  float64 `json:"video_time,omitempty"`
}

// MeshGen executes mesh_gen jobs.
type MeshGen struct {
	model     *resource.Handle[MeshModel]
	resources *resource.Manager
	artifacts *Artifacts
	logger    *slog.Logger
}

// NewMeshGen creates the mesh_gen executor.
func NewMeshGen(model *resource.Handle[MeshModel], resources *resource.Manager, artifacts *Artifacts, logger *slog.Logger) *MeshGen {
	return &MeshGen{model: model, resources: resources, artifacts: artifacts, logger: logger}
}

// Definition returns the lane handler definition.
func (g *MeshGen) Definition() *job.Definition[MeshGenRequest] {
	return job.NewDefinition(job.LaneMeshGen, g.Handle)
}

// Handle runs one mesh_gen job.
func (g *MeshGen) Handle(ctx context.Context, req MeshGenRequest, r job.Reporter) (any, error) {
	p := req.Params
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: image is required", lanes.ErrInvalidArgs)
	}

	model, err := g.model.Get(ctx)
	if err != nil {
		g.logger.Error("mesh model load failed", slog.String("error", err.Error()))
		return nil, ErrMeshModelUnavailable
	}

	r.Progress(1, meshStages, stagePreprocess)
	if r.CancelRequested() {
		return nil, lanes.ErrCancelRequested
	}

	begin := time.Now()
	var (
		out       *Mesh
		meshTime  time.Duration
		video     []byte
		videoTime time.Duration
	)
	err = g.resources.Do(ctx, resource.ClassMesh, func(ctx context.Context) error {
		r.Progress(2, meshStages, stageInference)
		model.SetChunkSize(p.ChunkSize)

		start := time.Now()
		m, err := model.Reconstruct(ctx, req.Image, p)
		if err != nil {
			return err
		}
		out = m
		meshTime = time.Since(start)

		if p.RenderVideo && !r.CancelRequested() {
			start = time.Now()
			v, err := model.Render(ctx, p.RenderNViews, p.RenderResolution)
			if err != nil {
				// A failed render leaves the mesh usable.
				g.logger.Warn("turntable render failed", slog.String("error", err.Error()))
			} else {
				video, videoTime = v, time.Since(start)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Progress(3, meshStages, stageExport)
	path := g.artifacts.MeshPath()
	if err := g.artifacts.Write(path, out.GLB); err != nil {
		return nil, err
	}

	res := MeshGenResult{
		Status:     "success",
		MeshURL:    g.artifacts.URL(path),
		OutputPath: path,
		Vertices:   out.Vertices,
		Faces:      out.Faces,
		MeshTime:   meshTime.Seconds(),
	}
	if video != nil {
		vp := g.artifacts.VideoPath(path)
		if err := g.artifacts.Write(vp, video); err != nil {
			g.logger.Warn("turntable video not saved", slog.String("error", err.Error()))
		} else {
			res.VideoURL = g.artifacts.URL(vp)
			res.VideoTime = videoTime.Seconds()
		}
	}
	res.TimeTaken = time.Since(begin).Seconds()

	r.Progress(meshStages, meshStages, stageDone)
	return res, nil
}
