// Package captions groups word timestamps into caption lines and writes them
// as an ASS subtitle document with per-word highlight timing.
package captions

import (
	"math"

	"videothingy/assembly-engine/internal/models"
)

// Options controls line grouping.
type Options struct {
	MaxWords    int
	MaxDuration float64 // seconds, measured from line start to word end
	Highlight   bool
}

// DefaultOptions are 6 words or 3 seconds per line, with highlighting.
func DefaultOptions() Options {
	return Options{MaxWords: 6, MaxDuration: 3.0, Highlight: true}
}

// GroupLines greedily packs words into lines. A line closes when the next
// word would push it past MaxWords or past MaxDuration; a single word longer
// than MaxDuration gets a line of its own. Words are expected on the master
// timeline (see AudioProject.GlobalWords).
func GroupLines(words []models.WordTimestamp, opts Options) []models.CaptionLine {
	if opts.MaxWords <= 0 {
		opts.MaxWords = DefaultOptions().MaxWords
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultOptions().MaxDuration
	}
	words = monotonic(words)
	if len(words) == 0 {
		return nil
	}

	var lines []models.CaptionLine
	var cur []models.WordTimestamp
	flush := func() {
		if len(cur) == 0 {
			return
		}
		lines = append(lines, newLine(cur, opts.Highlight))
		cur = nil
	}
	for _, w := range words {
		if len(cur) > 0 {
			start := cur[0].Start
			if len(cur) >= opts.MaxWords || w.End-start > opts.MaxDuration {
				flush()
			}
		}
		cur = append(cur, w)
	}
	flush()
	return lines
}

// monotonic copies words so each starts no earlier than the previous one
// ends and never ends before it starts. Aligners occasionally overlap
// neighbours by a few milliseconds.
func monotonic(words []models.WordTimestamp) []models.WordTimestamp {
	out := make([]models.WordTimestamp, 0, len(words))
	var prevEnd float64
	for i, w := range words {
		if w.Word == "" {
			continue
		}
		if i > 0 && w.Start < prevEnd {
			w.Start = prevEnd
		}
		if w.End < w.Start {
			w.End = w.Start
		}
		prevEnd = w.End
		out = append(out, w)
	}
	return out
}

func newLine(words []models.WordTimestamp, highlight bool) models.CaptionLine {
	line := models.CaptionLine{
		Words: append([]models.WordTimestamp(nil), words...),
		Start: words[0].Start,
		End:   words[len(words)-1].End,
	}
	if highlight {
		line.Highlights = Highlights(line)
	}
	return line
}

// Highlights gives each word a millisecond window relative to the line
// start. Windows are monotonic, never overlap and stay within the line.
func Highlights(line models.CaptionLine) []models.HighlightWindow {
	total := int(math.Round(line.Duration() * 1000))
	out := make([]models.HighlightWindow, len(line.Words))
	prev := 0
	for i, w := range line.Words {
		start := clamp(int(math.Round((w.Start-line.Start)*1000)), prev, total)
		end := clamp(int(math.Round((w.End-line.Start)*1000)), start, total)
		out[i] = models.HighlightWindow{StartMS: start, EndMS: end}
		prev = end
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
