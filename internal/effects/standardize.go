package effects

import (
	"fmt"

	"videothingy/assembly-engine/internal/models"
)

// Standardize trims a segment to its frame-quantized duration and forces the
// canonical size, pixel format and frame rate. It runs on every segment.
func Standardize(input, output string, rc models.RenderContext) string {
	w, h := rc.OutputWidth, rc.OutputHeight
	return fmt.Sprintf("%strim=duration=%s,scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:-1:-1:color=black,setsar=1,format=yuv420p,fps=%d%s",
		input, num(rc.Duration), w, h, w, h, rc.FPS, output)
}
