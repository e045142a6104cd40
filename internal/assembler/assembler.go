// Package assembler runs one project end to end: master clock, scene
// assets, frame allocation, effects, captions, render and manifest.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/audio"
	"videothingy/assembly-engine/internal/captions"
	"videothingy/assembly-engine/internal/config"
	"videothingy/assembly-engine/internal/effects"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/fallback"
	"videothingy/assembly-engine/internal/ffmpeg"
	"videothingy/assembly-engine/internal/manifest"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
	"videothingy/assembly-engine/internal/render"
	"videothingy/assembly-engine/internal/retry"
	"videothingy/assembly-engine/internal/timeline"
	"videothingy/assembly-engine/internal/voice"
)

// Status values reported to the StatusRecorder.
const (
	StatusQueued       = "queued"
	StatusSynthesizing = "synthesizing"
	StatusComposing    = "composing"
	StatusRendering    = "rendering"
	StatusUploading    = "uploading"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
)

// Media is the local media toolchain. *ffmpeg.Tool satisfies it.
type Media interface {
	audio.Mixer
	ports.DurationProber
	ports.Renderer
	Placeholder(ctx context.Context, out string, width, height int, color string) error
}

var _ Media = (*ffmpeg.Tool)(nil)

// Deps are the collaborators injected at construction. Recorder and
// Uploader are optional.
type Deps struct {
	Synthesizer ports.Synthesizer
	Aligner     ports.Aligner
	Images      ports.ImageProvider
	Media       Media
	Recorder    ports.StatusRecorder
	Uploader    ports.Uploader
	Log         *logrus.Logger
}

// Request is one project to assemble.
type Request struct {
	ProjectID string
	Units     []models.SpeechUnit
	// Images overrides Deps.Images for this request when set.
	Images ports.ImageProvider
	// OutputPath defaults to <work>/<project>/output.mp4.
	OutputPath string
	Preview    bool
	// Overlays are extra timed-text documents burned in after the captions.
	Overlays []string
}

// Result is everything a finished project produced.
type Result struct {
	ProjectID     string
	WorkDir       string
	Units         []models.SpeechUnit
	Audio         *models.AudioProject
	Allocation    timeline.Allocation
	Assets        []models.VisualAsset
	Segments      []models.VideoSegment
	CaptionsPath  string
	Overlays      []string
	ManifestPath  string
	OutputPath    string
	UploadURL     string
	Render        render.Result
	EstimatedTime time.Duration
	images        ports.ImageProvider
	preview       bool
}

// Assembler is safe for concurrent use; every project gets its own work
// directory and voice cache.
type Assembler struct {
	cfg       config.RenderConfig
	deps      Deps
	builder   *audio.Builder
	allocator *timeline.Allocator
	runner    *render.Runner
	selector  effects.Selector
	log       *logrus.Entry
}

// New validates cfg and wires the stages.
func New(cfg config.RenderConfig, deps Deps) (*Assembler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Synthesizer == nil || deps.Aligner == nil || deps.Media == nil {
		return nil, errors.New("assembler: synthesizer, aligner and media are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = ports.NopRecorder{}
	}
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}

	synthRetry := retry.Default()
	synthRetry.MaxRetries = cfg.Synthesis.MaxRetries
	synthRetry.Timeout = cfg.Synthesis.Timeout

	renderRetry := retry.Default()
	renderRetry.MaxRetries = cfg.Render.MaxRetries
	renderRetry.InitialDelay = 2 * time.Second
	renderRetry.Timeout = cfg.Render.Timeout

	builder := audio.NewBuilder(deps.Synthesizer, deps.Aligner, deps.Media, deps.Media, audio.Options{
		Concurrency: cfg.Synthesis.Concurrency,
		Crossfade:   cfg.CrossfadeSeconds(),
		Adjust: ffmpeg.AdjustOptions{
			Tempo:      cfg.Audio.Tempo,
			Normalize:  cfg.Audio.Normalize,
			LoudnessDB: cfg.Audio.LoudnessDB,
		},
		ClipFormat: cfg.Audio.ClipFormat,
		Retry:      synthRetry,
	}, deps.Log)

	runner := render.NewRunner(deps.Media, deps.Media, render.RunnerOptions{
		Retry:        renderRetry,
		MinOutputKiB: cfg.Video.MinOutputKiB,
		FPS:          cfg.Video.FPS,
	}, deps.Log)

	return &Assembler{
		cfg:       cfg,
		deps:      deps,
		builder:   builder,
		allocator: timeline.NewAllocator(deps.Log),
		runner:    runner,
		selector: effects.Selector{
			Enabled:    cfg.Effects.Enabled,
			DefaultTag: cfg.Effects.DefaultTag,
			Intensity:  cfg.Effects.DefaultIntensity,
		},
		log: deps.Log.WithField("component", "assembler"),
	}, nil
}

// Config returns the render configuration in use.
func (a *Assembler) Config() config.RenderConfig {
	return a.cfg
}

// Assemble runs every stage for req. On failure the recorder gets a
// "failed" status carrying the error kind.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	if len(req.Units) == 0 {
		return nil, errors.New("assemble: no speech units")
	}
	for i, u := range req.Units {
		if err := config.Struct(u); err != nil {
			return nil, fmt.Errorf("assemble: unit %d: %w", i, err)
		}
	}
	id := req.ProjectID
	if id == "" {
		id = uuid.NewString()
	}
	workDir := filepath.Join(a.cfg.WorkDir, id)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	images := req.Images
	if images == nil {
		images = a.deps.Images
	}
	if images == nil {
		return nil, errors.New("assemble: no image provider")
	}

	res := &Result{
		ProjectID:  id,
		WorkDir:    workDir,
		Units:      req.Units,
		OutputPath: req.OutputPath,
		Overlays:   req.Overlays,
		images:     images,
		preview:    req.Preview,
	}
	if res.OutputPath == "" {
		name := "output.mp4"
		if req.Preview {
			name = "preview.mp4"
		}
		res.OutputPath = filepath.Join(workDir, name)
	}
	log := a.log.WithField("project_id", id)
	log.WithFields(logrus.Fields{"units": len(req.Units), "work_dir": workDir}).Info("assembling project")

	a.record(ctx, id, StatusSynthesizing, map[string]interface{}{"units": len(req.Units)})
	voices := voice.NewCache(a.cfg.Synthesis.DefaultVoice, a.cfg.Synthesis.Voices)
	project, err := a.builder.Build(ctx, id, workDir, req.Units, voices)
	if err != nil {
		return nil, a.fail(ctx, id, "synthesis", err)
	}
	res.Audio = project

	if err := a.finish(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Regenerate re-synthesizes one unit of a finished project and re-runs every
// downstream stage. prev is left untouched.
func (a *Assembler) Regenerate(ctx context.Context, prev *Result, index int, unit models.SpeechUnit) (*Result, error) {
	if prev == nil || prev.Audio == nil {
		return nil, errors.New("regenerate: no previous result")
	}
	if err := config.Struct(unit); err != nil {
		return nil, fmt.Errorf("regenerate: %w", err)
	}
	voices := voice.NewCache(a.cfg.Synthesis.DefaultVoice, a.cfg.Synthesis.Voices)
	for _, s := range prev.Audio.Segments {
		voices.Assign(s.SpeakerID, s.VoiceID)
	}

	a.record(ctx, prev.ProjectID, StatusSynthesizing, map[string]interface{}{"regenerate": index})
	project, err := a.builder.Regenerate(ctx, prev.Audio, index, unit, voices)
	if err != nil {
		return nil, a.fail(ctx, prev.ProjectID, "synthesis", err)
	}
	units := append([]models.SpeechUnit(nil), prev.Units...)
	if index < len(units) {
		units[index] = unit
	}
	res := &Result{
		ProjectID:  prev.ProjectID,
		WorkDir:    prev.WorkDir,
		Units:      units,
		Audio:      project,
		OutputPath: prev.OutputPath,
		Overlays:   prev.Overlays,
		images:     prev.images,
		preview:    prev.preview,
	}
	if err := a.finish(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// finish runs everything after the master clock exists.
func (a *Assembler) finish(ctx context.Context, res *Result) error {
	id := res.ProjectID
	log := a.log.WithField("project_id", id)

	a.record(ctx, id, StatusComposing, map[string]interface{}{"audio_duration": res.Audio.TotalDuration})
	spans := res.Audio.SceneDurations()
	assets, err := a.resolveAssets(ctx, res.images, res.WorkDir, spans)
	if err != nil {
		return a.fail(ctx, id, "assets", err)
	}
	res.Assets = assets

	alloc, err := a.allocator.Allocate(a.cfg.Video.FPS, spans)
	if err != nil {
		return a.fail(ctx, id, "allocation", err)
	}
	res.Allocation = alloc

	segments, err := timeline.BuildSegments(alloc, assets, a.selector.For)
	if err != nil {
		return a.fail(ctx, id, "effects", err)
	}
	res.Segments = segments
	res.EstimatedTime = render.EstimateRenderTime(segments)

	if a.cfg.Captions.Enabled {
		res.CaptionsPath = filepath.Join(res.WorkDir, "captions.ass")
		lines := captions.GroupLines(res.Audio.GlobalWords(), captions.Options{
			MaxWords:    a.cfg.Captions.MaxWordsPerLine,
			MaxDuration: a.cfg.Captions.MaxLineDuration,
			Highlight:   a.cfg.Captions.Highlight,
		})
		if err := captions.WriteFile(res.CaptionsPath, lines, a.captionStyle()); err != nil {
			return a.fail(ctx, id, "captions", err)
		}
		log.WithField("lines", len(lines)).Debug("captions written")
	}

	settings := render.SettingsFrom(a.cfg)
	if res.preview {
		settings = settings.Preview(a.cfg.Render.PreviewSeconds)
	}
	overlays := append([]string{res.CaptionsPath}, res.Overlays...)
	instr, err := render.Build(segments, res.Audio.MasterAudioPath, overlays, settings, res.OutputPath)
	if err != nil {
		return a.fail(ctx, id, "render", err)
	}

	a.record(ctx, id, StatusRendering, map[string]interface{}{
		"segments":         len(segments),
		"total_frames":     alloc.TotalFrames(),
		"estimated_secs":   res.EstimatedTime.Seconds(),
		"max_drift_secs":   alloc.MaxDrift(),
		"audio_time_scale": res.Audio.TimeScale(),
	})
	// A full render must match the measured master, not just the frame grid.
	expected := res.Audio.TotalDuration
	if res.preview {
		expected = render.ExpectedDuration(segments, settings)
	}
	rr, err := a.runner.Execute(ctx, instr, expected)
	if err != nil {
		return a.fail(ctx, id, "render", err)
	}
	res.Render = rr

	m := manifest.New(res.Audio, segments, assets, a.cfg.Video.FPS)
	m.CaptionsPath = res.CaptionsPath
	m.OutputPath = res.OutputPath
	res.ManifestPath = filepath.Join(res.WorkDir, "manifest.json")
	if err := manifest.Write(res.ManifestPath, m); err != nil {
		return a.fail(ctx, id, "manifest", err)
	}

	if a.deps.Uploader != nil {
		a.record(ctx, id, StatusUploading, nil)
		url, err := a.deps.Uploader.Upload(ctx, res.OutputPath, id+"/"+filepath.Base(res.OutputPath))
		if err != nil {
			return a.fail(ctx, id, "upload", err)
		}
		if _, err := a.deps.Uploader.Upload(ctx, res.ManifestPath, id+"/manifest.json"); err != nil {
			return a.fail(ctx, id, "upload", err)
		}
		res.UploadURL = url
	}

	a.record(ctx, id, StatusCompleted, map[string]interface{}{
		"output_path":     res.OutputPath,
		"output_url":      res.UploadURL,
		"duration":        rr.Duration,
		"render_attempts": rr.Attempts,
	})
	log.WithFields(logrus.Fields{
		"output":   res.OutputPath,
		"duration": rr.Duration,
		"frames":   alloc.TotalFrames(),
	}).Info("project assembled")
	return nil
}

func (a *Assembler) resolveAssets(ctx context.Context, images ports.ImageProvider, workDir string, spans []models.SceneSpan) ([]models.VisualAsset, error) {
	policy := fallback.Policy{
		AllowPlaceholder: a.cfg.Assets.AllowPlaceholder,
		Placeholder: func(ctx context.Context, sceneID string) (string, error) {
			dir := filepath.Join(workDir, "placeholders")
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", err
			}
			out := filepath.Join(dir, sceneID+".png")
			return out, a.deps.Media.Placeholder(ctx, out, a.cfg.Video.Width, a.cfg.Video.Height, a.cfg.Assets.PlaceholderColor)
		},
		Log: a.log,
	}
	assets := make([]models.VisualAsset, len(spans))
	for i, span := range spans {
		asset, err := policy.Resolve(ctx, i, fallback.Fetch(ctx, images, span.SceneID))
		if err != nil {
			return nil, err
		}
		assets[i] = asset
	}
	return assets, nil
}

func (a *Assembler) captionStyle() captions.Style {
	s := captions.DefaultStyle(a.cfg.Video.Width, a.cfg.Video.Height)
	s.FontName = a.cfg.Captions.FontName
	s.FontSize = a.cfg.Captions.FontSize
	s.MarginV = a.cfg.Captions.MarginV
	s.HighlightColor = a.cfg.Captions.HighlightColor
	s.StyleWords = a.cfg.Captions.StyleWords
	return s
}

func (a *Assembler) record(ctx context.Context, id, status string, detail map[string]interface{}) {
	if err := a.deps.Recorder.Record(ctx, id, status, detail); err != nil {
		a.log.WithError(err).WithFields(logrus.Fields{"project_id": id, "status": status}).Warn("failed to record status")
	}
}

// fail records the failure and returns err wrapped with the stage name.
func (a *Assembler) fail(ctx context.Context, id, stage string, err error) error {
	detail := map[string]interface{}{
		"stage":      stage,
		"error":      err.Error(),
		"error_kind": errs.Kind(err),
	}
	var se *errs.StructuralError
	if errors.As(err, &se) {
		detail["scene_id"] = se.SceneID
		detail["segment_index"] = se.SegmentIndex
		detail["drift"] = se.Drift
	}
	// Status writes must go out even when ctx was cancelled.
	a.record(context.WithoutCancel(ctx), id, StatusFailed, detail)
	a.log.WithFields(logrus.Fields{"project_id": id, "stage": stage, "error_kind": errs.Kind(err)}).WithError(err).Error("project failed")
	return fmt.Errorf("%s: %w", stage, err)
}
