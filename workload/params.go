package workload

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/job"
)

// ImageEditParams controls one image-to-image generation.
type ImageEditParams struct {
	PositivePrompt string  `json:"positive_prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Seed           int64   `json:"seed"`
	Steps          int     `json:"steps"`
	CFG            float64 `json:"cfg"`
	SamplerName    string  `json:"sampler_name"`
	Scheduler      string  `json:"scheduler"`
	Denoise        float64 `json:"denoise"`
}

// DefaultImageEditParams returns the parameters used for omitted fields.
func DefaultImageEditParams() ImageEditParams {
	return ImageEditParams{
		Seed:        42,
		Steps:       20,
		CFG:         7.5,
		SamplerName: "euler",
		Scheduler:   "normal",
		Denoise:     0.75,
	}
}

// EffectiveSteps is the number of denoising steps actually run:
// steps scaled by denoise strength, truncated.
func (p ImageEditParams) EffectiveSteps() int {
	return int(math.Floor(float64(p.Steps) * p.Denoise))
}

// Validate checks the parameter combination.
func (p ImageEditParams) Validate() error {
	if p.PositivePrompt == "" {
		return fmt.Errorf("%w: positive_prompt is required", lanes.ErrInvalidArgs)
	}
	if p.Steps < 1 {
		return fmt.Errorf("%w: steps must be at least 1, got %d", lanes.ErrInvalidArgs, p.Steps)
	}
	if p.Denoise <= 0 || p.Denoise > 1 {
		return fmt.Errorf("%w: denoise must be in (0, 1], got %g", lanes.ErrInvalidArgs, p.Denoise)
	}
	if eff := p.EffectiveSteps(); eff < 1 {
		return fmt.Errorf(
			"%w: steps=%d × denoise=%g = %d effective steps. Need at least 1. Try increasing steps (≥10) or denoise (≥0.1)",
			lanes.ErrInvalidArgs, p.Steps, p.Denoise, eff,
		)
	}
	return nil
}

// ImageEditRequest is the payload of an image_edit job.
type ImageEditRequest struct {
	Image  []byte          `json:"image"`
	Params ImageEditParams `json:"params"`
}

// MeshGenParams controls one mesh reconstruction.
type MeshGenParams struct {
	ForegroundRatio   float64 `json:"foreground_ratio"`
	MCResolution      int     `json:"mc_resolution"`
	RemoveBackground  bool    `json:"remove_bg"`
	ChunkSize         int     `json:"chunk_size"`
	BakeTexture       bool    `json:"bake_texture"`
	TextureResolution int     `json:"texture_resolution"`
	RenderVideo       bool    `json:"render_video"`
	RenderNViews      int     `json:"render_n_views"`
	RenderResolution  int     `json:"render_resolution"`
}

// DefaultMeshGenParams returns the parameters used for omitted fields.
func DefaultMeshGenParams() MeshGenParams {
	return MeshGenParams{
		ForegroundRatio:   0.85,
		MCResolution:      256,
		RemoveBackground:  true,
		ChunkSize:         8192,
		TextureResolution: 2048,
		RenderNViews:      30,
		RenderResolution:  256,
	}
}

// Validate checks parameter ranges.
func (p MeshGenParams) Validate() error {
	switch {
	case p.ForegroundRatio <= 0 || p.ForegroundRatio > 1:
		return fmt.Errorf("%w: foreground_ratio must be in (0, 1], got %g", lanes.ErrInvalidArgs, p.ForegroundRatio)
	case p.MCResolution < 32:
		return fmt.Errorf("%w: mc_resolution must be at least 32, got %d", lanes.ErrInvalidArgs, p.MCResolution)
	case p.ChunkSize < 0:
		return fmt.Errorf("%w: chunk_size must not be negative, got %d", lanes.ErrInvalidArgs, p.ChunkSize)
	case p.BakeTexture && p.TextureResolution < 64:
		return fmt.Errorf("%w: texture_resolution must be at least 64, got %d", lanes.ErrInvalidArgs, p.TextureResolution)
	case p.RenderVideo && (p.RenderNViews < 1 || p.RenderResolution < 32):
		return fmt.Errorf("%w: render_n_views and render_resolution are required for video", lanes.ErrInvalidArgs)
	}
	return nil
}

// MeshGenRequest is the payload of a mesh_gen job.
type MeshGenRequest struct {
	Image  []byte        `json:"image"`
	Params MeshGenParams `json:"params"`
}

// DecodeImageEdit decodes an image_edit payload, filling omitted
// parameters with their defaults, and validates it.
func DecodeImageEdit(payload []byte) (ImageEditRequest, error) {
	req := ImageEditRequest{Params: DefaultImageEditParams()}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", lanes.ErrInvalidArgs, err)
	}
	if len(req.Image) == 0 {
		return req, fmt.Errorf("%w: image is required", lanes.ErrInvalidArgs)
	}
	return req, req.Params.Validate()
}

// DecodeMeshGen decodes a mesh_gen payload, filling omitted parameters
// with their defaults, and validates it.
func DecodeMeshGen(payload []byte) (MeshGenRequest, error) {
	req := MeshGenRequest{Params: DefaultMeshGenParams()}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", lanes.ErrInvalidArgs, err)
	}
	if len(req.Image) == 0 {
		return req, fmt.Errorf("%w: image is required", lanes.ErrInvalidArgs)
	}
	return req, req.Params.Validate()
}

// Normalize validates a raw payload for lane and re-encodes it with
// defaults applied, so executors see fully populated parameters.
func Normalize(lane job.Lane, payload []byte) ([]byte, error) {
	var (
		req any
		err error
	)
	switch lane {
	case job.LaneImageEdit:
		req, err = DecodeImageEdit(payload)
	case job.LaneMeshGen:
		req, err = DecodeMeshGen(payload)
	default:
		return nil, fmt.Errorf("%w: %q", lanes.ErrUnknownLane, lane)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(req)
}
