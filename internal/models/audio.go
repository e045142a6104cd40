package models

import (
	"fmt"
	"strings"
)

// WordTimestamp is one aligned word. Start and End are seconds relative to the
// start of the clip the word was aligned against.
type WordTimestamp struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Duration returns how long the word is spoken.
func (w WordTimestamp) Duration() float64 {
	return w.End - w.Start
}

// Shift maps the word onto another timeline: times are scaled first, then offset.
func (w WordTimestamp) Shift(offset, scale float64) WordTimestamp {
	return WordTimestamp{
		Word:       w.Word,
		Start:      w.Start*scale + offset,
		End:        w.End*scale + offset,
		Confidence: w.Confidence,
	}
}

// SpeechUnit is an ordered text fragment to be narrated.
type SpeechUnit struct {
	SceneID   string `json:"scene_id" validate:"required"`
	SpeakerID string `json:"speaker_id"`
	Text      string `json:"text" validate:"required"`
	StyleHint string `json:"style_hint,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"` // used for this unit only; seeds the cache if the speaker has no voice yet
	SFXPath   string `json:"sfx_path,omitempty"`
}

// AudioSegment is the synthesized, measured result for one SpeechUnit.
type AudioSegment struct {
	SceneID      string          `json:"scene_id"`
	SpeakerID    string          `json:"speaker_id,omitempty"`
	Text         string          `json:"text"`
	ClipPath     string          `json:"clip_path"`
	Duration     float64         `json:"duration_seconds"`
	VoiceID      string          `json:"voice_id"`
	Words        []WordTimestamp `json:"words"`
	GlobalOffset float64         `json:"global_offset"`
	SFXPath      string          `json:"sfx_path,omitempty"`
}

// End returns the absolute end of the segment on the raw (unadjusted) timeline.
func (s AudioSegment) End() float64 {
	return s.GlobalOffset + s.Duration
}

// SceneSpan is one contiguous run of units sharing a scene id, placed on the
// master timeline. A scene id that comes back after another scene starts a
// new span.
type SceneSpan struct {
	SceneID string
	// Start is the master time of the run's first unit.
	Start    float64
	Duration float64
	// FirstUnit and Units locate the run in AudioProject.Segments.
	FirstUnit int
	Units     int
}

// AudioProject is the master clock: ordered segments plus the concatenated,
// tempo and loudness adjusted master track.
type AudioProject struct {
	ID              string         `json:"id"`
	Segments        []AudioSegment `json:"segments"`
	MasterAudioPath string         `json:"master_audio_path"`
	// TotalDuration is measured on the master file after tempo adjustment and
	// is authoritative for everything downstream.
	TotalDuration float64 `json:"total_duration"`
	// RawDuration is the sum of measured clip durations.
	RawDuration float64 `json:"raw_duration"`
	// Crossfade is the overlap removed at every unit boundary when the clips
	// were joined.
	Crossfade float64 `json:"crossfade_seconds"`
	VoiceID   string  `json:"voice_id"`
}

// joinedDuration is the length of the crossfaded concat before tempo.
func (p *AudioProject) joinedDuration() float64 {
	n := len(p.Segments)
	if n < 2 {
		return p.RawDuration
	}
	return p.RawDuration - float64(n-1)*p.Crossfade
}

// TimeScale is the tempo factor from the crossfaded concat onto the measured
// master.
func (p *AudioProject) TimeScale() float64 {
	joined := p.joinedDuration()
	if joined <= 0 || p.TotalDuration <= 0 {
		return 1
	}
	return p.TotalDuration / joined
}

// MasterTime maps t seconds into segment i onto the master timeline. Every
// boundary before segment i pulled it earlier by one crossfade.
func (p *AudioProject) MasterTime(i int, t float64) float64 {
	return (p.Segments[i].GlobalOffset - float64(i)*p.Crossfade + t) * p.TimeScale()
}

// MasterDuration is the end of the master timeline.
func (p *AudioProject) MasterDuration() float64 {
	return p.joinedDuration() * p.TimeScale()
}

// SceneDurations returns one span per contiguous run of a scene id. Each
// span runs from its first unit's master start to the next span's start, or
// to the end of the master, so spans tile the master exactly.
func (p *AudioProject) SceneDurations() []SceneSpan {
	var spans []SceneSpan
	for i, seg := range p.Segments {
		if n := len(spans); n > 0 && spans[n-1].SceneID == seg.SceneID {
			spans[n-1].Units++
			continue
		}
		spans = append(spans, SceneSpan{SceneID: seg.SceneID, Start: p.MasterTime(i, 0), FirstUnit: i, Units: 1})
	}
	end := p.MasterDuration()
	for i := range spans {
		next := end
		if i+1 < len(spans) {
			next = spans[i+1].Start
		}
		spans[i].Duration = next - spans[i].Start
	}
	return spans
}

// GlobalWords returns every word on the master timeline, in segment order.
func (p *AudioProject) GlobalWords() []WordTimestamp {
	scale := p.TimeScale()
	var out []WordTimestamp
	for i, seg := range p.Segments {
		base := p.MasterTime(i, 0)
		for _, w := range seg.Words {
			out = append(out, w.Shift(base, scale))
		}
	}
	return out
}

// SegmentStart returns the start of segment i on the master timeline.
func (p *AudioProject) SegmentStart(i int) (float64, error) {
	if i < 0 || i >= len(p.Segments) {
		return 0, fmt.Errorf("segment index %d out of range [0,%d)", i, len(p.Segments))
	}
	return p.MasterTime(i, 0), nil
}

// WordAt returns the word being spoken at master time t, if any.
func (p *AudioProject) WordAt(t float64) (WordTimestamp, bool) {
	for _, w := range p.GlobalWords() {
		if t >= w.Start && t <= w.End {
			return w, true
		}
	}
	return WordTimestamp{}, false
}

// Text joins the text of all segments.
func (p *AudioProject) Text() string {
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}
