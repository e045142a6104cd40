// Package timeline converts master clock scene durations into whole-frame
// video segment lengths using running-remainder accumulation, so rounding
// error never compounds across scenes.
package timeline

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

// driftEpsilon absorbs float noise when comparing drift against one frame.
const driftEpsilon = 1e-9

// SceneAllocation is the frame budget for one scene.
type SceneAllocation struct {
	SceneID          string
	AudioDuration    float64
	Frames           int
	Duration         float64 // Frames / fps
	CumulativeAudio  float64
	CumulativeFrames int
	Drift            float64 // CumulativeFrames/fps - CumulativeAudio
}

// Allocation is the result for a whole project.
type Allocation struct {
	FPS    int
	Scenes []SceneAllocation
}

// TotalFrames is the final cumulative frame count.
func (a Allocation) TotalFrames() int {
	if len(a.Scenes) == 0 {
		return 0
	}
	return a.Scenes[len(a.Scenes)-1].CumulativeFrames
}

// TotalDuration is TotalFrames / fps.
func (a Allocation) TotalDuration() float64 {
	if a.FPS == 0 {
		return 0
	}
	return float64(a.TotalFrames()) / float64(a.FPS)
}

// MaxDrift returns the largest absolute drift at any boundary.
func (a Allocation) MaxDrift() float64 {
	var m float64
	for _, s := range a.Scenes {
		m = math.Max(m, math.Abs(s.Drift))
	}
	return m
}

// Allocator assigns frames. The zero value logs to the standard logger.
type Allocator struct {
	log *logrus.Entry
}

// NewAllocator returns an allocator that logs drift per boundary.
func NewAllocator(log *logrus.Logger) *Allocator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Allocator{log: log.WithField("component", "frame_allocator")}
}

// Allocate distributes frames over spans so that cumulative frames track
// cumulative audio within one frame at every boundary. A scene that would get
// fewer than one frame is forced to one and the deficit is borrowed from the
// following scene.
func (a *Allocator) Allocate(fps int, spans []models.SceneSpan) (Allocation, error) {
	if fps <= 0 {
		return Allocation{}, fmt.Errorf("allocate: fps must be positive, got %d", fps)
	}
	if len(spans) == 0 {
		return Allocation{}, fmt.Errorf("allocate: no scenes")
	}
	log := a.log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	frameDur := 1 / float64(fps)
	out := Allocation{FPS: fps, Scenes: make([]SceneAllocation, 0, len(spans))}

	var cumulativeAudio float64
	allocated := 0
	for i, span := range spans {
		if span.Duration < 0 || math.IsNaN(span.Duration) {
			return Allocation{}, errs.Structural("negative scene duration").WithScene(span.SceneID, i).WithTiming(0, span.Duration, 0)
		}
		cumulativeAudio += span.Duration
		target := int(math.Round(cumulativeAudio * float64(fps)))
		frames := target - allocated
		if frames < 1 {
			// Borrow: the next scene's target is computed from the cumulative
			// clock, so the extra frame is automatically repaid there.
			log.WithFields(logrus.Fields{
				"scene_id": span.SceneID,
				"index":    i,
				"audio":    span.Duration,
				"computed": frames,
			}).Warn("scene shorter than one frame, forcing one frame")
			frames = 1
		}
		allocated += frames

		drift := float64(allocated)/float64(fps) - cumulativeAudio
		sa := SceneAllocation{
			SceneID:          span.SceneID,
			AudioDuration:    span.Duration,
			Frames:           frames,
			Duration:         float64(frames) / float64(fps),
			CumulativeAudio:  cumulativeAudio,
			CumulativeFrames: allocated,
			Drift:            drift,
		}
		out.Scenes = append(out.Scenes, sa)

		log.WithFields(logrus.Fields{
			"scene_id":          span.SceneID,
			"index":             i,
			"frames":            frames,
			"cumulative_frames": allocated,
			"cumulative_audio":  cumulativeAudio,
			"drift":             drift,
		}).Debug("allocated scene")
	}

	if err := checkDrift(out, frameDur); err != nil {
		return Allocation{}, err
	}
	return out, nil
}

// checkDrift enforces |drift| < one frame at every boundary. A boundary that
// exceeds it is tolerated only while a forced-frame borrow is outstanding and
// is repaid by a later boundary; the final boundary must always hold.
func checkDrift(a Allocation, frameDur float64) error {
	last := len(a.Scenes) - 1
	for i, s := range a.Scenes {
		if math.Abs(s.Drift) < frameDur-driftEpsilon || math.Abs(s.Drift) < driftEpsilon {
			continue
		}
		if i < last && s.Frames == 1 && s.Drift > 0 && repaidLater(a.Scenes[i+1:], frameDur) {
			continue
		}
		return errs.Structural("frame drift reached one frame").
			WithScene(s.SceneID, i).
			WithTiming(s.CumulativeAudio, float64(s.CumulativeFrames)/float64(a.FPS), s.Drift)
	}
	return nil
}

func repaidLater(rest []SceneAllocation, frameDur float64) bool {
	for _, s := range rest {
		if math.Abs(s.Drift) < frameDur-driftEpsilon {
			return true
		}
		if s.Frames != 1 {
			return false
		}
	}
	return false
}

// BuildSegments pairs the allocation with the scene assets and produces
// immutable VideoSegments in scene order. effectsFor may be nil, in which case
// segments carry no effects.
func BuildSegments(a Allocation, assets []models.VisualAsset, effectsFor func(models.VisualAsset) ([]models.Effect, error)) ([]models.VideoSegment, error) {
	if len(assets) != len(a.Scenes) {
		return nil, errs.Structural(fmt.Sprintf("have %d assets for %d allocated scenes", len(assets), len(a.Scenes)))
	}
	segments := make([]models.VideoSegment, len(a.Scenes))
	var start float64
	for i, s := range a.Scenes {
		asset := assets[i]
		if asset.SceneID != s.SceneID {
			return nil, errs.Structural("asset order does not match scene order").WithScene(s.SceneID, i)
		}
		var effects []models.Effect
		if effectsFor != nil {
			var err error
			effects, err = effectsFor(asset)
			if err != nil {
				return nil, fmt.Errorf("effects for scene %s: %w", s.SceneID, err)
			}
		}
		segments[i] = models.VideoSegment{
			Index:     i,
			SceneID:   s.SceneID,
			ImagePath: asset.ImagePath,
			Start:     start,
			Duration:  s.Duration,
			Frames:    s.Frames,
			Effects:   effects,
		}
		start += s.Duration
	}
	return segments, nil
}
