// Package effects builds per-scene ffmpeg filter-graph fragments for camera
// motion and the standardization chain every segment goes through.
package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Easing shapes the progress curve of an animated parameter.
type Easing string

const (
	Linear    Easing = "linear"
	EaseIn    Easing = "ease-in"
	EaseOut   Easing = "ease-out"
	EaseInOut Easing = "ease-in-out"
)

// ParseEasing accepts the canonical names plus underscore spellings.
func ParseEasing(s string) (Easing, error) {
	switch e := Easing(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")); e {
	case Linear, EaseIn, EaseOut, EaseInOut:
		return e, nil
	case "":
		return EaseInOut, nil
	default:
		return "", fmt.Errorf("unknown easing %q", s)
	}
}

// Apply evaluates the curve at p in [0,1].
func (e Easing) Apply(p float64) float64 {
	p = math.Max(0, math.Min(1, p))
	switch e {
	case EaseIn:
		return p * p
	case EaseOut:
		return 1 - (1-p)*(1-p)
	case EaseInOut:
		if p < 0.5 {
			return 4 * p * p * p
		}
		return 1 - math.Pow(-2*p+2, 3)/2
	default:
		return p
	}
}

// Expr renders the curve as an ffmpeg expression over the progress
// expression p.
func (e Easing) Expr(p string) string {
	switch e {
	case EaseIn:
		return fmt.Sprintf("(%s*%s)", p, p)
	case EaseOut:
		return fmt.Sprintf("(1-(1-%s)*(1-%s))", p, p)
	case EaseInOut:
		return fmt.Sprintf("(if(lt(%s,0.5),4*%s*%s*%s,1-pow(-2*%s+2,3)/2))", p, p, p, p, p)
	default:
		return p
	}
}

// num formats a float the shortest way that round-trips, so identical
// parameters always print identically.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
