// Package images provides scene visuals from local storage.
package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
)

// CameraFile is the optional per-directory file mapping scene ids to
// camera tags.
const CameraFile = "camera.yaml"

var extensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// Dir looks up <root>/<scene_id>.<ext> and reads camera tags from
// <root>/camera.yaml when present.
type Dir struct {
	root    string
	once    sync.Once
	cameras map[string]string
	loadErr error
}

// NewDir returns a provider rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

func (d *Dir) loadCameras() {
	data, err := os.ReadFile(filepath.Join(d.root, CameraFile))
	if errors.Is(err, fs.ErrNotExist) {
		d.cameras = map[string]string{}
		return
	}
	if err != nil {
		d.loadErr = err
		return
	}
	cams := map[string]string{}
	if err := yaml.Unmarshal(data, &cams); err != nil {
		d.loadErr = fmt.Errorf("parse %s: %w", CameraFile, err)
		return
	}
	d.cameras = cams
}

// Image implements ports.ImageProvider. A scene without a file returns an
// error wrapping fs.ErrNotExist.
func (d *Dir) Image(ctx context.Context, sceneID string) (models.VisualAsset, error) {
	if err := ctx.Err(); err != nil {
		return models.VisualAsset{}, err
	}
	if sceneID == "" || strings.ContainsAny(sceneID, `/\`) || strings.Contains(sceneID, "..") {
		return models.VisualAsset{}, fmt.Errorf("invalid scene id %q", sceneID)
	}
	d.once.Do(d.loadCameras)
	if d.loadErr != nil {
		return models.VisualAsset{}, d.loadErr
	}
	for _, ext := range extensions {
		p := filepath.Join(d.root, sceneID+ext)
		if _, err := os.Stat(p); err == nil {
			return models.VisualAsset{SceneID: sceneID, ImagePath: p, CameraEffect: d.cameras[sceneID]}, nil
		}
	}
	return models.VisualAsset{}, fmt.Errorf("no image for scene %s in %s: %w", sceneID, d.root, fs.ErrNotExist)
}

// Static serves assets handed over with a render request.
type Static map[string]models.VisualAsset

// Image implements ports.ImageProvider.
func (s Static) Image(ctx context.Context, sceneID string) (models.VisualAsset, error) {
	a, ok := s[sceneID]
	if !ok {
		return models.VisualAsset{}, fmt.Errorf("no asset for scene %s: %w", sceneID, fs.ErrNotExist)
	}
	a.SceneID = sceneID
	return a, nil
}

// Chain asks each provider in order.
type Chain []ports.ImageProvider

// Image returns the first hit. Only not-found errors move on to the next
// provider.
func (c Chain) Image(ctx context.Context, sceneID string) (models.VisualAsset, error) {
	var lastErr error = fmt.Errorf("no image providers: %w", fs.ErrNotExist)
	for _, p := range c {
		a, err := p.Image(ctx, sceneID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return models.VisualAsset{}, err
		}
		lastErr = err
	}
	return models.VisualAsset{}, lastErr
}
