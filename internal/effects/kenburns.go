package effects

import (
	"fmt"

	"videothingy/assembly-engine/internal/models"
)

// Direction is the pan axis of a KenBurns move.
type Direction string

const (
	PanNone  Direction = "none"
	PanLeft  Direction = "left"
	PanRight Direction = "right"
	PanUp    Direction = "up"
	PanDown  Direction = "down"
)

// KenBurns zooms and pans a still image with zoompan.
type KenBurns struct {
	ZoomStart    float64
	ZoomEnd      float64
	Pan          Direction
	PanIntensity float64
	Easing       Easing
}

// DefaultKenBurns is a gentle 20% center zoom.
func DefaultKenBurns() KenBurns {
	return KenBurns{ZoomStart: 1.0, ZoomEnd: 1.2, Pan: PanNone, PanIntensity: 0.1, Easing: EaseInOut}
}

// Validate checks the parameter ranges zoompan can render without
// sampling outside the source.
func (k KenBurns) Validate() error {
	if k.ZoomStart < 1 || k.ZoomStart > 2 || k.ZoomEnd < 1 || k.ZoomEnd > 2 {
		return fmt.Errorf("kenburns: zoom must be in [1,2], got %v->%v", k.ZoomStart, k.ZoomEnd)
	}
	if k.PanIntensity < 0 || k.PanIntensity > 0.5 {
		return fmt.Errorf("kenburns: pan intensity must be in [0,0.5], got %v", k.PanIntensity)
	}
	switch k.Pan {
	case "", PanNone, PanLeft, PanRight, PanUp, PanDown:
	default:
		return fmt.Errorf("kenburns: unknown pan direction %q", k.Pan)
	}
	return nil
}

func (k KenBurns) Name() string {
	pan := k.Pan
	if pan == "" {
		pan = PanNone
	}
	return fmt.Sprintf("kenburns(zoom:%s->%s,pan:%s)", num(k.ZoomStart), num(k.ZoomEnd), pan)
}

// ZoomAt evaluates the zoom curve at frame of total.
func (k KenBurns) ZoomAt(frame, total int) float64 {
	if total <= 0 {
		return k.ZoomStart
	}
	p := float64(frame) / float64(total)
	return k.ZoomStart + (k.ZoomEnd-k.ZoomStart)*k.Easing.Apply(p)
}

// Filter emits one zoompan filter. d=1 because the looped input already
// carries one frame per output frame.
func (k KenBurns) Filter(input, output string, rc models.RenderContext) string {
	total := rc.TotalFrames()
	return fmt.Sprintf("%szoompan=z='%s':x='%s':y='%s':d=1:s=%s:fps=%d%s",
		input, k.zoomExpr(total), k.xExpr(total), k.yExpr(total), rc.Size(), rc.FPS, output)
}

func progress(total int) string {
	return fmt.Sprintf("(on/%d)", total)
}

func (k KenBurns) zoomExpr(total int) string {
	if k.ZoomStart == k.ZoomEnd {
		return num(k.ZoomStart)
	}
	zs, ze := num(k.ZoomStart), num(k.ZoomEnd)
	return fmt.Sprintf("(%s+(%s-%s)*%s)", zs, ze, zs, k.Easing.Expr(progress(total)))
}

const (
	xCenter = "iw/2-(iw/zoom/2)"
	yCenter = "ih/2-(ih/zoom/2)"
)

func (k KenBurns) offset(axis string, total int) string {
	return fmt.Sprintf("%s*%s*(1-%s)", axis, num(k.PanIntensity), progress(total))
}

func (k KenBurns) xExpr(total int) string {
	switch k.Pan {
	case PanRight:
		return fmt.Sprintf("(%s-%s)", xCenter, k.offset("iw", total))
	case PanLeft:
		return fmt.Sprintf("(%s+%s)", xCenter, k.offset("iw", total))
	}
	return xCenter
}

func (k KenBurns) yExpr(total int) string {
	switch k.Pan {
	case PanDown:
		return fmt.Sprintf("(%s-%s)", yCenter, k.offset("ih", total))
	case PanUp:
		return fmt.Sprintf("(%s+%s)", yCenter, k.offset("ih", total))
	}
	return yCenter
}
