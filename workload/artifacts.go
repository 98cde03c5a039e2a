package workload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifacts names and writes job output files under one directory.
type Artifacts struct {
	dir string
	now func() time.Time
}

// NewArtifacts creates an Artifacts rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (a *Artifacts) Dir() string { return a.dir }

// ImageEditPath returns img2img_{unix}_{seed}.png.
func (a *Artifacts) ImageEditPath(seed int64) string {
	return filepath.Join(a.dir, fmt.Sprintf("img2img_%d_%d.png", a.now().Unix(), seed))
}

// MeshPath returns mesh_{unix}_{id8}.glb.
func (a *Artifacts) MeshPath() string {
	id8 := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return filepath.Join(a.dir, fmt.Sprintf("mesh_%d_%s.glb", a.now().Unix(), id8))
}

// VideoPath returns the turntable video path that belongs to meshPath.
func (a *Artifacts) VideoPath(meshPath string) string {
	name := strings.Replace(filepath.Base(meshPath), "mesh_", "render_", 1)
	return filepath.Join(filepath.Dir(meshPath), strings.TrimSuffix(name, filepath.Ext(name))+".mp4")
}

// URL returns the public URL of an artifact.
func (a *Artifacts) URL(path string) string {
	return "/data/output/" + filepath.Base(path)
}

// Write stores data at path, creating the output directory if needed.
func (a *Artifacts) Write(path string, data []byte) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}
