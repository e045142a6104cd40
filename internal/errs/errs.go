// Package errs defines the failure taxonomy shared by every assembly stage.
//
// TransientExternalError is retried with backoff. StructuralError and
// ResourceError are fatal and abort the render.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// TransientExternalError is a hiccup from an external collaborator
// (synthesis, alignment, renderer) that is worth retrying.
type TransientExternalError struct {
	Op      string // e.g. "synthesize", "align", "render"
	Attempt int
	Err     error
}

func (e *TransientExternalError) Error() string {
	if e.Attempt > 0 {
		return fmt.Sprintf("transient %s failure (attempt %d): %v", e.Op, e.Attempt, e.Err)
	}
	return fmt.Sprintf("transient %s failure: %v", e.Op, e.Err)
}

func (e *TransientExternalError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientExternalError{Op: op, Err: err}
}

// StructuralError means the output would be desynchronized or malformed.
// It carries enough context to reproduce the failure offline.
type StructuralError struct {
	Reason       string
	SceneID      string
	SegmentIndex int // -1 when not tied to a segment
	Expected     float64
	Actual       float64
	Drift        float64
	Err          error
}

func (e *StructuralError) Error() string {
	var b strings.Builder
	b.WriteString("structural error: ")
	b.WriteString(e.Reason)
	if e.SceneID != "" {
		fmt.Fprintf(&b, " scene=%s", e.SceneID)
	}
	if e.SegmentIndex >= 0 {
		fmt.Fprintf(&b, " segment=%d", e.SegmentIndex)
	}
	if e.Expected != 0 || e.Actual != 0 {
		fmt.Fprintf(&b, " expected=%.6f actual=%.6f", e.Expected, e.Actual)
	}
	if e.Drift != 0 {
		fmt.Fprintf(&b, " drift=%.6f", e.Drift)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StructuralError) Unwrap() error { return e.Err }

// Structural builds a StructuralError not tied to a segment.
func Structural(reason string) *StructuralError {
	return &StructuralError{Reason: reason, SegmentIndex: -1}
}

// WithScene sets the scene and segment context.
func (e *StructuralError) WithScene(sceneID string, index int) *StructuralError {
	e.SceneID = sceneID
	e.SegmentIndex = index
	return e
}

// WithTiming sets the duration context.
func (e *StructuralError) WithTiming(expected, actual, drift float64) *StructuralError {
	e.Expected = expected
	e.Actual = actual
	e.Drift = drift
	return e
}

// Wrap records the underlying cause.
func (e *StructuralError) Wrap(err error) *StructuralError {
	e.Err = err
	return e
}

// ResourceError means a required local resource (usually the ffmpeg binary)
// is missing or unusable.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var e *TransientExternalError
	return errors.As(err, &e)
}

// IsStructural reports whether err is a structural failure.
func IsStructural(err error) bool {
	var e *StructuralError
	return errors.As(err, &e)
}

// IsResource reports whether err is a resource failure.
func IsResource(err error) bool {
	var e *ResourceError
	return errors.As(err, &e)
}

// Kind returns a short label for logs and status records.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsStructural(err):
		return "structural"
	case IsResource(err):
		return "resource"
	case IsTransient(err):
		return "transient"
	default:
		return "unknown"
	}
}
