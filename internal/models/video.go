package models

import "fmt"

// VisualAsset is the static image for one scene.
type VisualAsset struct {
	SceneID      string `json:"scene_id"`
	ImagePath    string `json:"image_path"`
	CameraEffect string `json:"camera_effect,omitempty"`
	Placeholder  bool   `json:"placeholder,omitempty"`
}

// RenderContext is handed to every effect invocation for one segment.
type RenderContext struct {
	Duration     float64
	FPS          int
	OutputWidth  int
	OutputHeight int
	// SegmentIndex namespaces intermediate labels in the global graph.
	SegmentIndex int
	// LabelPath locates a nested effect chain inside the segment's chain,
	// e.g. "_1" for the chain built by the second link. Empty at top level.
	LabelPath string
}

// TotalFrames is the number of output frames the segment spans.
func (rc RenderContext) TotalFrames() int {
	n := int(rc.Duration*float64(rc.FPS) + 0.5)
	if n < 1 {
		return 1
	}
	return n
}

// Size returns the canonical WxH string.
func (rc RenderContext) Size() string {
	return fmt.Sprintf("%dx%d", rc.OutputWidth, rc.OutputHeight)
}

// Effect renders one filter-graph fragment from input to output. Implementations
// must be pure: the same inputs always give the same fragment.
type Effect interface {
	Name() string
	Filter(input, output string, rc RenderContext) string
}

// VideoSegment is one scene with a frame-quantized duration.
type VideoSegment struct {
	Index     int      `json:"index"`
	SceneID   string   `json:"scene_id"`
	ImagePath string   `json:"image_path"`
	Start     float64  `json:"start"`
	Duration  float64  `json:"duration"`
	Frames    int      `json:"frames"`
	Effects   []Effect `json:"-"`
}

// HasEffects reports whether the segment carries any motion.
func (s VideoSegment) HasEffects() bool {
	return len(s.Effects) > 0
}

// HighlightWindow is a word's highlight interval in milliseconds relative to line start.
type HighlightWindow struct {
	StartMS int `json:"start_ms"`
	EndMS   int `json:"end_ms"`
}

// CaptionLine is one displayed line of words.
type CaptionLine struct {
	Words      []WordTimestamp   `json:"words"`
	Start      float64           `json:"line_start"`
	End        float64           `json:"line_end"`
	Highlights []HighlightWindow `json:"highlights,omitempty"`
}

// Duration of the line on screen.
func (l CaptionLine) Duration() float64 {
	return l.End - l.Start
}

// RenderInput is one input file with its per-input options.
type RenderInput struct {
	Options []string
	Path    string
}

// RenderInstruction is the complete, immutable job for the external renderer.
type RenderInstruction struct {
	Inputs        []RenderInput
	FilterGraph   string
	Maps          []string
	OutputOptions []string
	OutputPath    string
}

// Args returns the renderer argument vector, output path last.
func (ri RenderInstruction) Args() []string {
	args := []string{"-y"}
	for _, in := range ri.Inputs {
		args = append(args, in.Options...)
		args = append(args, "-i", in.Path)
	}
	if ri.FilterGraph != "" {
		args = append(args, "-filter_complex", ri.FilterGraph)
	}
	for _, m := range ri.Maps {
		args = append(args, "-map", m)
	}
	args = append(args, ri.OutputOptions...)
	return append(args, ri.OutputPath)
}
