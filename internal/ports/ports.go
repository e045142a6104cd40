// Package ports declares the single-method contracts the assembly engine
// consumes. Swapping a provider means injecting another implementation.
package ports

import (
	"context"
	"errors"

	"videothingy/assembly-engine/internal/models"
)

// Synthesizer turns text into encoded audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, styleHint string) ([]byte, error)
}

// Aligner returns word timestamps relative to the start of the given audio.
type Aligner interface {
	Align(ctx context.Context, audio []byte) ([]models.WordTimestamp, error)
}

// ImageProvider resolves the static visual for a scene.
type ImageProvider interface {
	Image(ctx context.Context, sceneID string) (models.VisualAsset, error)
}

// Renderer executes a render instruction as a single external process.
type Renderer interface {
	Render(ctx context.Context, instr models.RenderInstruction) error
}

// DurationProber measures the real duration of a media file in seconds.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// StatusRecorder publishes job status transitions to an external sink.
type StatusRecorder interface {
	Record(ctx context.Context, jobID, status string, detail map[string]interface{}) error
}

// Uploader copies a finished artifact to remote storage and returns its location.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) (string, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text, voiceID, styleHint string) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text, voiceID, styleHint string) ([]byte, error) {
	return f(ctx, text, voiceID, styleHint)
}

// AlignerFunc adapts a function to Aligner.
type AlignerFunc func(ctx context.Context, audio []byte) ([]models.WordTimestamp, error)

func (f AlignerFunc) Align(ctx context.Context, audio []byte) ([]models.WordTimestamp, error) {
	return f(ctx, audio)
}

// NopRecorder discards status updates.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, string, string, map[string]interface{}) error { return nil }

// Recorders fans a status update out to every recorder and joins their errors.
type Recorders []StatusRecorder

func (rs Recorders) Record(ctx context.Context, jobID, status string, detail map[string]interface{}) error {
	var errList []error
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, jobID, status, detail); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}
