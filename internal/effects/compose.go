package effects

import (
	"errors"
	"fmt"
	"strings"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

// Graph is the per-segment part of the final filter graph.
type Graph struct {
	Fragments []string
	// Outputs are the standardized segment labels, in segment order, ready
	// for concat.
	Outputs  []string
	Registry *LabelRegistry
}

// String joins the fragments into one filter_complex body.
func (g Graph) String() string {
	return strings.Join(g.Fragments, ";")
}

// Compose builds every segment's effect chain plus standardization. Segment
// i reads input stream i. base supplies fps and output size; duration and
// segment index come from each segment.
func Compose(segments []models.VideoSegment, base models.RenderContext) (Graph, error) {
	g := Graph{Registry: NewLabelRegistry()}
	for i, seg := range segments {
		if seg.Index != i {
			return Graph{}, errs.Structural(fmt.Sprintf("segment index %d at position %d", seg.Index, i)).WithScene(seg.SceneID, i)
		}
		rc := base
		rc.Duration = seg.Duration
		rc.SegmentIndex = i

		var parts []string
		src := InputLabel(i)
		if seg.HasEffects() {
			out := EffectLabel(i)
			parts = append(parts, Composite{Effects: seg.Effects}.Filter(src, out, rc))
			src = out
		}
		out := SegmentLabel(i)
		parts = append(parts, Standardize(src, out, rc))

		fragment := strings.Join(parts, ";")
		if err := g.Registry.Register(fragment, i); err != nil {
			var se *errs.StructuralError
			if errors.As(err, &se) {
				se.SceneID = seg.SceneID
			}
			return Graph{}, err
		}
		g.Fragments = append(g.Fragments, fragment)
		g.Outputs = append(g.Outputs, out)
	}

	// Only the segment outputs may be left for the caller to consume.
	want := map[string]bool{}
	for _, o := range g.Outputs {
		want[strings.Trim(o, "[]")] = true
	}
	for _, l := range g.Registry.Dangling() {
		if !want[l] {
			return Graph{}, errs.Structural(fmt.Sprintf("label [%s] is never consumed", l))
		}
	}
	return g, nil
}
