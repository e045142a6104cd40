// Package audio builds the master clock: every speech unit is synthesized and
// measured, offsets are assigned as a running total in unit order, and the
// clips are joined into one tempo and loudness adjusted master track.
package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/ffmpeg"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
	"videothingy/assembly-engine/internal/retry"
	"videothingy/assembly-engine/internal/voice"
)

// Mixer is the subset of media operations the builder needs. *ffmpeg.Tool
// satisfies it.
type Mixer interface {
	ConcatCrossfade(ctx context.Context, clips []string, crossfade float64, out string) error
	AdjustAudio(ctx context.Context, in, out string, opts ffmpeg.AdjustOptions) error
	OverlaySFX(ctx context.Context, master string, cues []ffmpeg.SFXCue, out string) error
}

// Options tunes one build.
type Options struct {
	Concurrency int
	Crossfade   float64 // seconds
	Adjust      ffmpeg.AdjustOptions
	ClipFormat  string
	Retry       retry.Policy
}

// Builder produces AudioProjects. It is safe to reuse across projects as long
// as each project gets its own voice cache.
type Builder struct {
	synth   ports.Synthesizer
	aligner ports.Aligner
	prober  ports.DurationProber
	mixer   Mixer
	opts    Options
	log     *logrus.Entry
}

// NewBuilder wires the builder to its collaborators.
func NewBuilder(synth ports.Synthesizer, aligner ports.Aligner, prober ports.DurationProber, mixer Mixer, opts Options, log *logrus.Logger) *Builder {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.ClipFormat == "" {
		opts.ClipFormat = "mp3"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Builder{
		synth:   synth,
		aligner: aligner,
		prober:  prober,
		mixer:   mixer,
		opts:    opts,
		log:     log.WithField("component", "master_clock"),
	}
}

type clip struct {
	path     string
	duration float64
	words    []models.WordTimestamp
}

// Build synthesizes all units and returns the finished project. Any unit that
// exhausts its retries aborts the whole build.
func (b *Builder) Build(ctx context.Context, projectID, workDir string, units []models.SpeechUnit, voices *voice.Cache) (*models.AudioProject, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("build %s: no speech units", projectID)
	}
	clipDir := filepath.Join(workDir, "clips")
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	log := b.log.WithField("project_id", projectID)

	// Voices are resolved in unit order so pool rotation does not depend on
	// which synthesis call finishes first.
	voiceIDs := make([]string, len(units))
	for i, u := range units {
		voiceIDs[i] = resolveVoice(voices, u)
	}

	clips := make([]clip, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i := range units {
		g.Go(func() error {
			c, err := b.synthesize(gctx, clipDir, i, units[i], voiceIDs[i])
			if err != nil {
				return fmt.Errorf("unit %d (scene %s): %w", i, units[i].SceneID, err)
			}
			clips[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("synthesis failed, aborting project")
		return nil, err
	}

	// Barrier passed: offsets are a strictly sequential running total.
	segments := make([]models.AudioSegment, len(units))
	for i, u := range units {
		segments[i] = newSegment(u, voiceIDs[i], clips[i])
	}
	raw := assignOffsets(segments)

	project := &models.AudioProject{
		ID:          projectID,
		Segments:    segments,
		RawDuration: raw,
		VoiceID:     voiceIDs[0],
	}
	if err := b.assemble(ctx, workDir, project); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"units":          len(segments),
		"raw_duration":   raw,
		"total_duration": project.TotalDuration,
		"time_scale":     project.TimeScale(),
	}).Info("master clock built")
	return project, nil
}

// Regenerate re-synthesizes unit index and returns a new project with later
// offsets recomputed and the master re-assembled. Other units are not
// re-synthesized and the input project is left untouched.
func (b *Builder) Regenerate(ctx context.Context, project *models.AudioProject, index int, unit models.SpeechUnit, voices *voice.Cache) (*models.AudioProject, error) {
	if project == nil {
		return nil, fmt.Errorf("regenerate: nil project")
	}
	if index < 0 || index >= len(project.Segments) {
		return nil, fmt.Errorf("regenerate: index %d out of range [0,%d)", index, len(project.Segments))
	}
	workDir := filepath.Dir(project.MasterAudioPath)
	clipDir := filepath.Join(workDir, "clips")
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}

	voiceID := resolveVoice(voices, unit)
	c, err := b.synthesize(ctx, clipDir, index, unit, voiceID)
	if err != nil {
		return nil, fmt.Errorf("regenerate unit %d (scene %s): %w", index, unit.SceneID, err)
	}

	segments := make([]models.AudioSegment, len(project.Segments))
	copy(segments, project.Segments)
	segments[index] = newSegment(unit, voiceID, c)
	raw := assignOffsets(segments)

	next := &models.AudioProject{
		ID:          project.ID,
		Segments:    segments,
		RawDuration: raw,
		VoiceID:     project.VoiceID,
	}
	if err := b.assemble(ctx, workDir, next); err != nil {
		return nil, err
	}
	b.log.WithFields(logrus.Fields{
		"project_id":     project.ID,
		"index":          index,
		"old_duration":   project.Segments[index].Duration,
		"new_duration":   c.duration,
		"total_duration": next.TotalDuration,
	}).Info("regenerated unit")
	return next, nil
}

func resolveVoice(voices *voice.Cache, u models.SpeechUnit) string {
	if voices == nil {
		return u.VoiceID
	}
	if u.VoiceID != "" {
		// An explicit voice applies to this unit only. It seeds the speaker's
		// cache entry when the speaker has none yet.
		voices.Assign(u.SpeakerID, u.VoiceID)
		return u.VoiceID
	}
	return voices.Resolve(u.SpeakerID)
}

func newSegment(u models.SpeechUnit, voiceID string, c clip) models.AudioSegment {
	return models.AudioSegment{
		SceneID:   u.SceneID,
		SpeakerID: u.SpeakerID,
		Text:      u.Text,
		ClipPath:  c.path,
		Duration:  c.duration,
		VoiceID:   voiceID,
		Words:     c.words,
		SFXPath:   u.SFXPath,
	}
}

// assignOffsets sets GlobalOffset as the prefix sum of measured durations and
// returns the total.
func assignOffsets(segments []models.AudioSegment) float64 {
	var running float64
	for i := range segments {
		segments[i].GlobalOffset = running
		running += segments[i].Duration
	}
	return running
}

func (b *Builder) synthesize(ctx context.Context, clipDir string, index int, u models.SpeechUnit, voiceID string) (clip, error) {
	log := b.log.WithFields(logrus.Fields{"scene_id": u.SceneID, "unit": index, "voice_id": voiceID})

	var audio []byte
	err := retry.Do(ctx, b.opts.Retry, log, "synthesize", func(ctx context.Context) error {
		var err error
		audio, err = b.synth.Synthesize(ctx, u.Text, voiceID, u.StyleHint)
		return err
	})
	if err != nil {
		return clip{}, err
	}
	if len(audio) == 0 {
		return clip{}, errs.Structural("synthesizer returned empty audio").WithScene(u.SceneID, index)
	}

	path := filepath.Join(clipDir, fmt.Sprintf("unit_%03d_%s.%s", index, uuid.NewString()[:8], b.opts.ClipFormat))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return clip{}, fmt.Errorf("write clip: %w", err)
	}

	duration, err := b.prober.Duration(ctx, path)
	if err != nil {
		return clip{}, fmt.Errorf("measure clip %s: %w", path, err)
	}
	if duration <= 0 || math.IsNaN(duration) {
		return clip{}, errs.Structural("measured clip duration is not positive").WithScene(u.SceneID, index).WithTiming(0, duration, 0)
	}

	var words []models.WordTimestamp
	err = retry.Do(ctx, b.opts.Retry, log, "align", func(ctx context.Context) error {
		var err error
		words, err = b.aligner.Align(ctx, audio)
		return err
	})
	if err != nil {
		return clip{}, err
	}

	log.WithFields(logrus.Fields{"duration": duration, "words": len(words)}).Debug("unit synthesized")
	return clip{path: path, duration: duration, words: clampWords(words, duration)}, nil
}

// clampWords keeps timestamps inside the clip; aligners occasionally report an
// end a few milliseconds past the measured duration.
func clampWords(words []models.WordTimestamp, duration float64) []models.WordTimestamp {
	out := make([]models.WordTimestamp, 0, len(words))
	for _, w := range words {
		if w.Start > duration {
			continue
		}
		if w.End > duration {
			w.End = duration
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		out = append(out, w)
	}
	return out
}

// assemble concatenates, adjusts and measures the master track, writing the
// result into project. Every pass writes fresh file names so a project built
// earlier keeps its master intact.
func (b *Builder) assemble(ctx context.Context, workDir string, project *models.AudioProject) error {
	paths := make([]string, len(project.Segments))
	shortest := math.MaxFloat64
	for i, s := range project.Segments {
		paths[i] = s.ClipPath
		shortest = math.Min(shortest, s.Duration)
	}
	// acrossfade cannot overlap more than a clip holds.
	crossfade := math.Min(b.opts.Crossfade, shortest/2)
	if len(paths) < 2 {
		crossfade = 0
	}
	project.Crossfade = crossfade

	log := b.log.WithField("project_id", project.ID)
	tag := uuid.NewString()[:8]
	concatPath := filepath.Join(workDir, fmt.Sprintf("concat_%s.wav", tag))
	err := retry.Do(ctx, b.opts.Retry, log, "concat", func(ctx context.Context) error {
		return b.mixer.ConcatCrossfade(ctx, paths, crossfade, concatPath)
	})
	if err != nil {
		return err
	}
	masterPath := filepath.Join(workDir, fmt.Sprintf("master_%s.wav", tag))
	err = retry.Do(ctx, b.opts.Retry, log, "adjust", func(ctx context.Context) error {
		return b.mixer.AdjustAudio(ctx, concatPath, masterPath, b.opts.Adjust)
	})
	if err != nil {
		return err
	}

	total, err := b.prober.Duration(ctx, masterPath)
	if err != nil {
		return fmt.Errorf("measure master: %w", err)
	}
	if total <= 0 {
		return errs.Structural("measured master duration is not positive").WithTiming(project.RawDuration, total, 0)
	}
	project.TotalDuration = total
	project.MasterAudioPath = masterPath

	if cues := sfxCues(project); len(cues) > 0 {
		mixed := filepath.Join(workDir, fmt.Sprintf("master_sfx_%s.wav", tag))
		err := retry.Do(ctx, b.opts.Retry, log, "sfx", func(ctx context.Context) error {
			return b.mixer.OverlaySFX(ctx, masterPath, cues, mixed)
		})
		if err != nil {
			return err
		}
		project.MasterAudioPath = mixed
	}
	return nil
}

func sfxCues(project *models.AudioProject) []ffmpeg.SFXCue {
	var cues []ffmpeg.SFXCue
	for i, s := range project.Segments {
		if s.SFXPath == "" {
			continue
		}
		cues = append(cues, ffmpeg.SFXCue{Path: s.SFXPath, At: project.MasterTime(i, 0)})
	}
	return cues
}
