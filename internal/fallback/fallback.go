// Package fallback decides what happens when a scene's visual asset cannot be
// fetched. Providers return an explicit Result and the Policy chooses between
// using it, substituting a placeholder, or aborting the render.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
)

// Kind classifies why an asset fetch failed.
type Kind int

const (
	KindNone     Kind = iota
	KindMissing       // the provider has no asset for the scene
	KindProvider      // the provider call itself failed
	KindInvalid       // an asset came back but is unusable
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "ok"
	case KindMissing:
		return "missing"
	case KindProvider:
		return "provider"
	case KindInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is either an asset (Kind == KindNone) or a classified failure.
type Result struct {
	SceneID string
	Asset   models.VisualAsset
	Kind    Kind
	Err     error
}

// Ok wraps a fetched asset.
func Ok(asset models.VisualAsset) Result {
	return Result{SceneID: asset.SceneID, Asset: asset}
}

// Fail records a failed fetch.
func Fail(sceneID string, kind Kind, err error) Result {
	return Result{SceneID: sceneID, Kind: kind, Err: err}
}

// OK reports whether the result carries an asset.
func (r Result) OK() bool { return r.Kind == KindNone }

// Fetch calls the provider and classifies the outcome. A returned path that
// does not exist on disk is KindMissing.
func Fetch(ctx context.Context, provider ports.ImageProvider, sceneID string) Result {
	asset, err := provider.Image(ctx, sceneID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fail(sceneID, KindMissing, err)
		}
		return Fail(sceneID, KindProvider, err)
	}
	if asset.ImagePath == "" {
		return Fail(sceneID, KindInvalid, fmt.Errorf("provider returned empty image path"))
	}
	info, statErr := os.Stat(asset.ImagePath)
	if statErr != nil {
		return Fail(sceneID, KindMissing, statErr)
	}
	if info.IsDir() || info.Size() == 0 {
		return Fail(sceneID, KindInvalid, fmt.Errorf("image %s is empty or a directory", asset.ImagePath))
	}
	if asset.SceneID == "" {
		asset.SceneID = sceneID
	}
	return Ok(asset)
}

// Decision is what the policy chose for a result.
type Decision int

const (
	Use Decision = iota
	Substitute
	Abort
)

// PlaceholderFunc produces a stand-in image for a scene and returns its path.
type PlaceholderFunc func(ctx context.Context, sceneID string) (string, error)

// Policy substitutes placeholders only for provider failures. A missing or
// invalid asset is a structural problem and aborts the render.
type Policy struct {
	AllowPlaceholder bool
	Placeholder      PlaceholderFunc
	Log              *logrus.Entry
}

// Decide returns the decision for r without side effects.
func (p Policy) Decide(r Result) Decision {
	switch {
	case r.OK():
		return Use
	case r.Kind == KindProvider && p.AllowPlaceholder && p.Placeholder != nil:
		return Substitute
	default:
		return Abort
	}
}

// Resolve applies the decision and returns the asset to render.
func (p Policy) Resolve(ctx context.Context, index int, r Result) (models.VisualAsset, error) {
	switch p.Decide(r) {
	case Use:
		return r.Asset, nil
	case Substitute:
		path, err := p.Placeholder(ctx, r.SceneID)
		if err != nil {
			return models.VisualAsset{}, fmt.Errorf("placeholder for scene %s: %w", r.SceneID, err)
		}
		if p.Log != nil {
			p.Log.WithFields(logrus.Fields{
				"scene_id": r.SceneID,
				"kind":     r.Kind.String(),
				"path":     path,
			}).WithError(r.Err).Warn("substituting placeholder asset")
		}
		return models.VisualAsset{SceneID: r.SceneID, ImagePath: path, CameraEffect: "static", Placeholder: true}, nil
	default:
		return models.VisualAsset{}, &errs.StructuralError{
			Reason:       fmt.Sprintf("scene asset unavailable (%s)", r.Kind),
			SceneID:      r.SceneID,
			SegmentIndex: index,
			Err:          r.Err,
		}
	}
}
