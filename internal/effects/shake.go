package effects

import (
	"fmt"
	"math"

	"videothingy/assembly-engine/internal/models"
)

// ShakeMode selects the offset waveform.
type ShakeMode string

const (
	// Smooth follows a sine wave at the shake frequency.
	Smooth ShakeMode = "smooth"
	// Jitter holds a seeded random offset for each 1/frequency interval.
	Jitter ShakeMode = "jitter"
)

// Shake crops to 90% of the frame, moves the crop window every frame and
// scales back to the output size.
type Shake struct {
	Frequency float64 // Hz
	Amplitude float64 // pixels, peak to peak for jitter
	Mode      ShakeMode
	Seed      int
}

// Preset amplitudes are per unit of intensity.
const (
	slowAmplitude   = 140.0
	normalAmplitude = 100.0
	fastAmplitude   = 60.0

	slowFrequency   = 1.5
	normalFrequency = 12.0
	fastFrequency   = 24.0
)

// NormalShake is the default jittery shock shake.
func NormalShake(intensity float64) Shake {
	return Shake{Frequency: normalFrequency, Amplitude: normalAmplitude * intensity, Mode: Jitter, Seed: 1}
}

// SlowShake is a wide, smooth sway.
func SlowShake(intensity float64) Shake {
	return Shake{Frequency: slowFrequency, Amplitude: slowAmplitude * intensity, Mode: Smooth, Seed: 1}
}

// FastShake is a tight, rapid jitter.
func FastShake(intensity float64) Shake {
	return Shake{Frequency: fastFrequency, Amplitude: fastAmplitude * intensity, Mode: Jitter, Seed: 1}
}

func (s Shake) Name() string {
	return fmt.Sprintf("shake(%s,f=%s,a=%s)", s.mode(), num(s.Frequency), num(s.Amplitude))
}

func (s Shake) mode() ShakeMode {
	if s.Mode == "" {
		return Jitter
	}
	return s.Mode
}

func (s Shake) Filter(input, output string, rc models.RenderContext) string {
	return fmt.Sprintf("%scrop=w=iw*0.9:h=ih*0.9:x='(iw-ow)/2+%s':y='(ih-oh)/2+%s':exact=1,scale=%d:%d%s",
		input, s.offsetExpr(rc, 0), s.offsetExpr(rc, 1), rc.OutputWidth, rc.OutputHeight, output)
}

// offsetExpr is the per-frame displacement along one axis (0 = x, 1 = y).
func (s Shake) offsetExpr(rc models.RenderContext, axis int) string {
	amp := num(round3(s.Amplitude))
	freq := num(s.Frequency)
	if s.mode() == Smooth {
		if axis == 0 {
			return fmt.Sprintf("sin(2*PI*%s*t)*%s", freq, amp)
		}
		// y runs a quarter period behind x so the path is elliptical.
		return fmt.Sprintf("cos(2*PI*%s*t)*%s", freq, amp)
	}
	// Each crop expression owns its variables: var 0 is the random state,
	// seeded on the first frame, var 1 holds the sample between ticks.
	hold := 1
	if s.Frequency > 0 {
		hold = int(math.Max(1, math.Round(float64(rc.FPS)/s.Frequency)))
	}
	return fmt.Sprintf("(if(eq(n,0),st(0,%d));(if(eq(mod(n,%d),0),st(1,random(0)),ld(1))-0.5)*%s)",
		s.Seed+axis, hold, amp)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
