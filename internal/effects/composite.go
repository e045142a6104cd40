package effects

import (
	"fmt"
	"strings"

	"videothingy/assembly-engine/internal/models"
)

// Composite chains effects in order through segment-scoped labels.
type Composite struct {
	Effects []models.Effect
}

func (c Composite) Name() string {
	names := make([]string, len(c.Effects))
	for i, e := range c.Effects {
		names[i] = e.Name()
	}
	return "composite(" + strings.Join(names, "+") + ")"
}

// Filter joins the member fragments with ';'. Intermediate outputs are named
// [fx{segment}{path}_{k}] so chains from different segments never meet and a
// composite nested at link k writes under its own path.
func (c Composite) Filter(input, output string, rc models.RenderContext) string {
	switch len(c.Effects) {
	case 0:
		return input + "copy" + output
	case 1:
		return c.Effects[0].Filter(input, output, rc)
	}
	parts := make([]string, len(c.Effects))
	in := input
	for k, e := range c.Effects {
		out := output
		if k < len(c.Effects)-1 {
			out = NestedLabel(rc.SegmentIndex, rc.LabelPath, k)
		}
		inner := rc
		inner.LabelPath = fmt.Sprintf("%s_%d", rc.LabelPath, k)
		parts[k] = e.Filter(in, out, inner)
		in = out
	}
	return strings.Join(parts, ";")
}

// IntermediateLabel is the k-th link inside segment's top-level effect chain.
func IntermediateLabel(segment, k int) string {
	return NestedLabel(segment, "", k)
}

// NestedLabel is the k-th link of the chain found at path inside segment's
// effect chain.
func NestedLabel(segment int, path string, k int) string {
	return fmt.Sprintf("[fx%d%s_%d]", segment, path, k)
}

// EffectLabel is the output of segment's whole effect chain.
func EffectLabel(segment int) string {
	return fmt.Sprintf("[fx%d]", segment)
}

// SegmentLabel is the standardized output of segment.
func SegmentLabel(segment int) string {
	return fmt.Sprintf("[v%d]", segment)
}

// InputLabel is the video stream of input file i.
func InputLabel(i int) string {
	return fmt.Sprintf("[%d:v]", i)
}
