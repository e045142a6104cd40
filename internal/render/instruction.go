// Package render turns composed segments, the master audio and the caption
// document into a single renderer invocation, and runs it with validation.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"videothingy/assembly-engine/internal/config"
	"videothingy/assembly-engine/internal/effects"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

// Settings are the encoder parameters of one render.
type Settings struct {
	Width        int
	Height       int
	FPS          int
	VideoCodec   string
	Preset       string
	CRF          int
	Bitrate      string // replaces CRF when set
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
	SampleRate   int
	// Limit caps the output length in seconds, 0 renders everything.
	Limit float64
}

// SettingsFrom maps the render configuration onto encoder settings.
func SettingsFrom(cfg config.RenderConfig) Settings {
	return Settings{
		Width:        cfg.Video.Width,
		Height:       cfg.Video.Height,
		FPS:          cfg.Video.FPS,
		VideoCodec:   cfg.Video.Codec,
		Preset:       cfg.Video.Preset,
		CRF:          cfg.Video.CRF,
		Bitrate:      cfg.Video.Bitrate,
		PixelFormat:  cfg.Video.PixelFormat,
		AudioCodec:   cfg.Audio.Codec,
		AudioBitrate: cfg.Audio.Bitrate,
		SampleRate:   cfg.Audio.SampleRate,
	}
}

// Preview trades quality for speed and renders only the first seconds.
func (s Settings) Preview(seconds float64) Settings {
	s.Preset = "ultrafast"
	s.CRF = 28
	s.Bitrate = ""
	s.Limit = seconds
	return s
}

func (s Settings) context() models.RenderContext {
	return models.RenderContext{FPS: s.FPS, OutputWidth: s.Width, OutputHeight: s.Height}
}

func secs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EscapeSubtitlePath makes a path safe inside subtitles='...'.
func EscapeSubtitlePath(path string) string {
	p := strings.ReplaceAll(path, `\`, "/")
	p = strings.ReplaceAll(p, ":", `\:`)
	return strings.ReplaceAll(p, "'", `\'`)
}

// Build assembles the render instruction. Segment i reads input i; the
// master audio is the last input. Each overlay document is burned in over
// the concatenated stream, in order; empty entries are skipped.
func Build(segments []models.VideoSegment, masterAudio string, overlays []string, s Settings, outputPath string) (models.RenderInstruction, error) {
	if len(segments) == 0 {
		return models.RenderInstruction{}, errs.Structural("no video segments to render")
	}
	if masterAudio == "" {
		return models.RenderInstruction{}, errs.Structural("no master audio to render")
	}
	if outputPath == "" {
		return models.RenderInstruction{}, errors.New("render: output path is required")
	}
	if s.Limit > 0 {
		segments = truncate(segments, s.Limit)
	}

	graph, err := effects.Compose(segments, s.context())
	if err != nil {
		return models.RenderInstruction{}, err
	}

	n := len(segments)
	tail := fmt.Sprintf("%sconcat=n=%d:v=1:a=0", strings.Join(graph.Outputs, ""), n)
	for _, doc := range overlays {
		if doc != "" {
			tail += fmt.Sprintf(",subtitles='%s'", EscapeSubtitlePath(doc))
		}
	}
	tail += "[outv]"
	if err := graph.Registry.Register(tail, n); err != nil {
		return models.RenderInstruction{}, err
	}
	if dangling := graph.Registry.Dangling(); len(dangling) != 1 || dangling[0] != "outv" {
		return models.RenderInstruction{}, errs.Structural(fmt.Sprintf("unexpected unconsumed labels %v", dangling))
	}

	inputs := make([]models.RenderInput, 0, n+1)
	for _, seg := range segments {
		inputs = append(inputs, models.RenderInput{
			Options: []string{"-loop", "1", "-framerate", strconv.Itoa(s.FPS), "-t", secs(seg.Duration)},
			Path:    seg.ImagePath,
		})
	}
	inputs = append(inputs, models.RenderInput{Path: masterAudio})

	return models.RenderInstruction{
		Inputs:        inputs,
		FilterGraph:   graph.String() + ";" + tail,
		Maps:          []string{"[outv]", fmt.Sprintf("%d:a", n)},
		OutputOptions: outputOptions(s),
		OutputPath:    outputPath,
	}, nil
}

func outputOptions(s Settings) []string {
	opts := []string{"-c:v", s.VideoCodec, "-preset", s.Preset}
	if s.Bitrate != "" {
		opts = append(opts, "-b:v", s.Bitrate)
	} else {
		opts = append(opts, "-crf", strconv.Itoa(s.CRF))
	}
	pix := s.PixelFormat
	if pix == "" {
		pix = "yuv420p"
	}
	opts = append(opts,
		"-pix_fmt", pix,
		"-c:a", s.AudioCodec,
		"-b:a", s.AudioBitrate,
		"-ar", strconv.Itoa(s.SampleRate),
		"-r", strconv.Itoa(s.FPS),
	)
	if s.Limit > 0 {
		opts = append(opts, "-t", secs(s.Limit))
	}
	return append(opts, "-shortest")
}

// truncate keeps the segments that start before limit.
func truncate(segments []models.VideoSegment, limit float64) []models.VideoSegment {
	for i, seg := range segments {
		if seg.Start >= limit {
			return segments[:max(i, 1)]
		}
	}
	return segments
}

// ExpectedDuration is what the probe of a correct output should report.
func ExpectedDuration(segments []models.VideoSegment, s Settings) float64 {
	var total float64
	for _, seg := range segments {
		total += seg.Duration
	}
	if s.Limit > 0 {
		return math.Min(total, s.Limit)
	}
	return total
}

// EstimateRenderTime is a rough wall-clock estimate: two seconds per second
// of video, plus one and a half per second of segments with effects.
func EstimateRenderTime(segments []models.VideoSegment) time.Duration {
	var est float64
	for _, seg := range segments {
		est += 2 * seg.Duration
		if seg.HasEffects() {
			est += 1.5 * seg.Duration
		}
	}
	return time.Duration(est * float64(time.Second))
}
