package workload

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tavlicon/lanes"
)

// StepFunc is called after every denoising step. Returning false asks
// the model to stop at the next safe point.
type StepFunc func(step, total int) bool

// ImageModel is a loaded image-to-image pipeline. Implementations may
// block for a long time and are not safe for concurrent use; callers
// hold the image permit around every call.
type ImageModel interface {
	// SetSampler selects the sampler and noise schedule for later calls.
	SetSampler(sampler, scheduler string) error
	// Edit runs image-to-image generation and returns the encoded output.
	Edit(ctx context.Context, image []byte, p ImageEditParams, step StepFunc) ([]byte, error)
}

// Mesh is the output of a mesh reconstruction.
type Mesh struct {
	GLB      []byte
	Vertices int
	Faces    int
}

// MeshModel is a loaded single-image reconstruction model. Callers hold
// the mesh permit around every call.
type MeshModel interface {
	// SetChunkSize bounds the renderer's evaluation batch.
	SetChunkSize(n int)
	// Reconstruct extracts a mesh from one image.
	Reconstruct(ctx context.Context, image []byte, p MeshGenParams) (*Mesh, error)
	// Render produces a turntable video of the last reconstruction.
	Render(ctx context.Context, nViews, resolution int) ([]byte, error)
}

// ──────────────────────────────────────────────────
// Simulated models
// ──────────────────────────────────────────────────

// SimulatedImageModel sleeps StepDelay per effective step and returns
// a deterministic digest of its inputs.
type SimulatedImageModel struct {
	StepDelay time.Duration

	mu        sync.Mutex
	sampler   string
	scheduler string
}

// SetSampler implements ImageModel.
func (m *SimulatedImageModel) SetSampler(sampler, scheduler string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampler, m.scheduler = sampler, scheduler
	return nil
}

// Sampler returns the selected sampler and schedule.
func (m *SimulatedImageModel) Sampler() (string, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sampler, m.scheduler
}

// Edit implements ImageModel.
func (m *SimulatedImageModel) Edit(ctx context.Context, image []byte, p ImageEditParams, step StepFunc) ([]byte, error) {
	total := p.EffectiveSteps()
	for i := 1; i <= total; i++ {
		if err := sleepCtx(ctx, m.StepDelay); err != nil {
			return nil, err
		}
		if step != nil && !step(i, total) {
			return nil, lanes.ErrCancelRequested
		}
	}

	h := sha256.New()
	h.Write(image)
	fmt.Fprintf(h, "%s|%s|%d|%g", p.PositivePrompt, p.NegativePrompt, p.Steps, p.CFG)
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], uint64(p.Seed))
	h.Write(seed[:])
	return h.Sum(nil), nil
}

// SimulatedMeshModel sleeps Delay per reconstruction and returns a mesh
// whose size follows the marching-cubes resolution.
type SimulatedMeshModel struct {
	Delay time.Duration

	mu        sync.Mutex
	chunkSize int
}

// SetChunkSize implements MeshModel.
func (m *SimulatedMeshModel) SetChunkSize(n int) {
	m.mu.Lock()
	m.chunkSize = n
	m.mu.Unlock()
}

// ChunkSize returns the configured chunk size.
func (m *SimulatedMeshModel) ChunkSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chunkSize
}

// Reconstruct implements MeshModel.
func (m *SimulatedMeshModel) Reconstruct(ctx context.Context, image []byte, p MeshGenParams) (*Mesh, error) {
	if err := sleepCtx(ctx, m.Delay); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(image)
	return &Mesh{
		GLB:      append([]byte("glTF"), sum[:]...),
		Vertices: p.MCResolution * p.MCResolution / 4,
		Faces:    p.MCResolution * p.MCResolution / 2,
	}, nil
}

// Render implements MeshModel.
func (m *SimulatedMeshModel) Render(ctx context.Context, nViews, resolution int) ([]byte, error) {
	if err := sleepCtx(ctx, m.Delay); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("video:%dx%d:%d", resolution, resolution, nViews)), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
