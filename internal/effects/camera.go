package effects

import (
	"errors"
	"fmt"
	"strings"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

// DefaultIntensity is used when a camera tag comes without one.
const DefaultIntensity = 0.3

// Camera tags accepted on visual assets.
const (
	TagStatic    = "static"
	TagZoomIn    = "zoom_in"
	TagZoomOut   = "zoom_out"
	TagPanLeft   = "pan_left"
	TagPanRight  = "pan_right"
	TagPanUp     = "pan_up"
	TagPanDown   = "pan_down"
	TagShake     = "shake"
	TagShakeSlow = "shake_slow"
	TagShakeFast = "shake_fast"
)

// Tags lists every accepted camera tag in a stable order.
func Tags() []string {
	return []string{TagStatic, TagZoomIn, TagZoomOut, TagPanLeft, TagPanRight, TagPanUp, TagPanDown, TagShake, TagShakeSlow, TagShakeFast}
}

// Camera maps a high-level camera tag onto a concrete effect.
type Camera struct {
	Tag       string
	Intensity float64
	delegate  models.Effect
}

// NormalizeTag lowercases the tag and accepts "zoom-in" or "Zoom In" spellings.
func NormalizeTag(tag string) string {
	t := strings.ToLower(strings.TrimSpace(tag))
	return strings.NewReplacer("-", "_", " ", "_").Replace(t)
}

// NewCamera resolves tag. A non-positive intensity means DefaultIntensity.
// Unknown tags are structural errors.
func NewCamera(tag string, intensity float64) (Camera, error) {
	if intensity <= 0 {
		intensity = DefaultIntensity
	}
	t := NormalizeTag(tag)
	c := Camera{Tag: t, Intensity: intensity}

	panZoom := 1.1 + intensity*0.5
	pan := func(d Direction) KenBurns {
		return KenBurns{ZoomStart: panZoom, ZoomEnd: panZoom, Pan: d, PanIntensity: intensity, Easing: Linear}
	}
	switch t {
	case TagStatic:
	case TagZoomIn:
		c.delegate = KenBurns{ZoomStart: 1, ZoomEnd: 1 + intensity, Pan: PanNone, Easing: EaseInOut}
	case TagZoomOut:
		c.delegate = KenBurns{ZoomStart: 1 + intensity, ZoomEnd: 1, Pan: PanNone, Easing: EaseInOut}
	case TagPanLeft:
		c.delegate = pan(PanLeft)
	case TagPanRight:
		c.delegate = pan(PanRight)
	case TagPanUp:
		c.delegate = pan(PanUp)
	case TagPanDown:
		c.delegate = pan(PanDown)
	case TagShake:
		c.delegate = NormalShake(intensity)
	case TagShakeSlow:
		c.delegate = SlowShake(intensity)
	case TagShakeFast:
		c.delegate = FastShake(intensity)
	default:
		return Camera{}, errs.Structural(fmt.Sprintf("unknown camera effect tag %q", tag))
	}
	if kb, ok := c.delegate.(KenBurns); ok {
		if err := kb.Validate(); err != nil {
			return Camera{}, errs.Structural(fmt.Sprintf("camera %s at intensity %v", t, intensity)).Wrap(err)
		}
	}
	return c, nil
}

// Static reports whether the camera is a pass-through.
func (c Camera) Static() bool {
	return c.delegate == nil
}

// Delegate is the concrete effect, nil for static.
func (c Camera) Delegate() models.Effect {
	return c.delegate
}

func (c Camera) Name() string {
	return fmt.Sprintf("camera(%s)", c.Tag)
}

func (c Camera) Filter(input, output string, rc models.RenderContext) string {
	if c.delegate == nil {
		return input + "copy" + output
	}
	return c.delegate.Filter(input, output, rc)
}

// Selector picks the effect list for an asset from configuration.
type Selector struct {
	Enabled    bool
	DefaultTag string
	Intensity  float64
}

// For returns the effects for asset. Disabled selectors, static cameras
// and placeholders get none.
func (s Selector) For(asset models.VisualAsset) ([]models.Effect, error) {
	if !s.Enabled || asset.Placeholder {
		return nil, nil
	}
	tag := asset.CameraEffect
	if tag == "" {
		tag = s.DefaultTag
	}
	if tag == "" {
		return nil, nil
	}
	cam, err := NewCamera(tag, s.Intensity)
	if err != nil {
		var se *errs.StructuralError
		if errors.As(err, &se) {
			se.SceneID = asset.SceneID
		}
		return nil, err
	}
	if cam.Static() {
		return nil, nil
	}
	return []models.Effect{cam}, nil
}
