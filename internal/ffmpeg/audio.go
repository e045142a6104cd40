package ffmpeg

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Intermediate and master audio are kept as PCM so repeated passes do not
// accumulate codec loss. The final mux re-encodes once.
var pcmArgs = []string{"-c:a", "pcm_s16le", "-ar", "44100", "-ac", "2"}

// CrossfadeGraph chains n audio inputs with acrossfade and returns the graph
// and its output label. n must be at least 2.
func CrossfadeGraph(n int, crossfade float64) (string, string) {
	var parts []string
	prev := "[0:a]"
	for i := 1; i < n; i++ {
		label := fmt.Sprintf("[xf%d]", i)
		parts = append(parts, fmt.Sprintf("%s[%d:a]acrossfade=d=%.3f:c1=tri:c2=tri%s", prev, i, crossfade, label))
		prev = label
	}
	return strings.Join(parts, ";"), prev
}

// ConcatCrossfade joins clips in order, overlapping neighbours by crossfade seconds.
func (t *Tool) ConcatCrossfade(ctx context.Context, clips []string, crossfade float64, out string) error {
	if len(clips) == 0 {
		return fmt.Errorf("concat: no clips")
	}
	args := []string{"-y"}
	for _, c := range clips {
		args = append(args, "-i", c)
	}
	if len(clips) == 1 || crossfade <= 0 {
		if len(clips) == 1 {
			args = append(args, pcmArgs...)
		} else {
			var in strings.Builder
			for i := range clips {
				fmt.Fprintf(&in, "[%d:a]", i)
			}
			args = append(args, "-filter_complex", fmt.Sprintf("%sconcat=n=%d:v=0:a=1[aout]", in.String(), len(clips)), "-map", "[aout]")
			args = append(args, pcmArgs...)
		}
	} else {
		graph, label := CrossfadeGraph(len(clips), crossfade)
		args = append(args, "-filter_complex", graph, "-map", label)
		args = append(args, pcmArgs...)
	}
	args = append(args, out)

	if err := t.Run(ctx, args...); err != nil {
		return fmt.Errorf("concat %d clips: %w", len(clips), err)
	}
	t.log.WithFields(logrus.Fields{"clips": len(clips), "crossfade": crossfade, "output": out}).Info("concatenated audio clips")
	return nil
}

// AdjustOptions describes the master pacing and loudness pass.
type AdjustOptions struct {
	Tempo      float64
	Normalize  bool
	LoudnessDB float64
}

// AdjustFilter returns the audio filter chain for opts, or "" for a plain copy.
func AdjustFilter(opts AdjustOptions) string {
	var filters []string
	if opts.Tempo > 0 && opts.Tempo != 1 {
		filters = append(filters, fmt.Sprintf("atempo=%.4f", opts.Tempo))
	}
	if opts.Normalize {
		filters = append(filters, fmt.Sprintf("loudnorm=I=%.1f:TP=-1.5:LRA=11", opts.LoudnessDB))
	}
	return strings.Join(filters, ",")
}

// AdjustAudio applies tempo and loudness normalization to in, writing out.
func (t *Tool) AdjustAudio(ctx context.Context, in, out string, opts AdjustOptions) error {
	args := []string{"-y", "-i", in}
	if f := AdjustFilter(opts); f != "" {
		args = append(args, "-af", f)
	}
	args = append(args, pcmArgs...)
	args = append(args, out)
	if err := t.Run(ctx, args...); err != nil {
		return fmt.Errorf("adjust audio %s: %w", in, err)
	}
	return nil
}

// SFXCue is a sound effect laid over the master track at an absolute time.
type SFXCue struct {
	Path   string
	At     float64
	Volume float64
}

// OverlayGraph mixes cues (inputs 1..n) over the master (input 0). The mix keeps
// the master's length so the clock is never extended.
func OverlayGraph(cues []SFXCue) string {
	var parts []string
	inputs := "[0:a]"
	for i, c := range cues {
		vol := c.Volume
		if vol <= 0 {
			vol = 0.8
		}
		delay := int(c.At*1000 + 0.5)
		label := fmt.Sprintf("[sfx%d]", i)
		parts = append(parts, fmt.Sprintf("[%d:a]volume=%.2f,adelay=%d|%d%s", i+1, vol, delay, delay, label))
		inputs += label
	}
	parts = append(parts, fmt.Sprintf("%samix=inputs=%d:duration=first:dropout_transition=0:normalize=0[aout]", inputs, len(cues)+1))
	return strings.Join(parts, ";")
}

// OverlaySFX mixes cues over master into out.
func (t *Tool) OverlaySFX(ctx context.Context, master string, cues []SFXCue, out string) error {
	if len(cues) == 0 {
		return fmt.Errorf("overlay: no cues")
	}
	args := []string{"-y", "-i", master}
	for _, c := range cues {
		args = append(args, "-i", c.Path)
	}
	args = append(args, "-filter_complex", OverlayGraph(cues), "-map", "[aout]")
	args = append(args, pcmArgs...)
	args = append(args, out)
	if err := t.Run(ctx, args...); err != nil {
		return fmt.Errorf("overlay %d sfx cues: %w", len(cues), err)
	}
	return nil
}

// Placeholder writes a single solid-colour frame of the given size.
func (t *Tool) Placeholder(ctx context.Context, out string, width, height int, color string) error {
	if color == "" {
		color = "black"
	}
	src := fmt.Sprintf("color=c=%s:s=%dx%d", color, width, height)
	if err := t.Run(ctx, "-y", "-f", "lavfi", "-i", src, "-frames:v", "1", out); err != nil {
		return fmt.Errorf("placeholder %s: %w", out, err)
	}
	return nil
}
