package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
	"videothingy/assembly-engine/internal/retry"
)

// Result describes a validated output file.
type Result struct {
	OutputPath string
	Duration   float64
	SizeBytes  int64
	Attempts   int
}

// RunnerOptions bound one render.
type RunnerOptions struct {
	Retry        retry.Policy
	MinOutputKiB int
	FPS          int
}

// Runner executes render instructions through a Renderer and refuses to
// leave an output file behind unless it is valid.
type Runner struct {
	renderer ports.Renderer
	prober   ports.DurationProber
	opts     RunnerOptions
	log      *logrus.Entry
}

// NewRunner returns a runner. MinOutputKiB below 1 is raised to 1.
func NewRunner(renderer ports.Renderer, prober ports.DurationProber, opts RunnerOptions, log *logrus.Logger) *Runner {
	if opts.MinOutputKiB < 1 {
		opts.MinOutputKiB = 1
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{renderer: renderer, prober: prober, opts: opts, log: log.WithField("component", "render_runner")}
}

// frameTolerance allows one frame of container rounding plus float noise.
func (r *Runner) frameTolerance() float64 {
	return 1/float64(r.opts.FPS) + 1e-3
}

// Execute renders instr, retrying transient failures, then validates the
// output exists, is large enough and lasts expected seconds within one frame.
// Any failure or cancellation removes the partial output.
func (r *Runner) Execute(ctx context.Context, instr models.RenderInstruction, expected float64) (Result, error) {
	log := r.log.WithFields(logrus.Fields{"output": instr.OutputPath, "expected_duration": expected})
	res := Result{OutputPath: instr.OutputPath}

	err := retry.Do(ctx, r.opts.Retry, log, "render", func(ctx context.Context) error {
		res.Attempts++
		removeOutput(instr.OutputPath)
		if err := r.renderer.Render(ctx, instr); err != nil {
			return err
		}
		size, err := r.checkFile(instr.OutputPath)
		if err != nil {
			return err
		}
		res.SizeBytes = size
		return nil
	})
	if err != nil {
		removeOutput(instr.OutputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.WithError(ctxErr).Warn("render cancelled, partial output removed")
			return res, ctxErr
		}
		log.WithError(err).WithField("attempts", res.Attempts).Error("render failed")
		return res, err
	}

	actual, err := r.prober.Duration(ctx, instr.OutputPath)
	if err != nil {
		removeOutput(instr.OutputPath)
		return res, fmt.Errorf("probe rendered output: %w", err)
	}
	res.Duration = actual
	if drift := actual - expected; math.Abs(drift) > r.frameTolerance() {
		removeOutput(instr.OutputPath)
		se := errs.Structural("rendered duration differs from timeline by more than one frame").WithTiming(expected, actual, drift)
		log.WithError(se).Error("render rejected")
		return res, se
	}

	log.WithFields(logrus.Fields{
		"duration": actual,
		"bytes":    res.SizeBytes,
		"attempts": res.Attempts,
	}).Info("render complete")
	return res, nil
}

// checkFile validates the output after a clean exit. A missing or tiny file
// after exit 0 is treated as a renderer hiccup worth another attempt.
func (r *Runner) checkFile(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errs.Transient("render", fmt.Errorf("output not written: %w", err))
	}
	if minSize := int64(r.opts.MinOutputKiB) * 1024; info.Size() < minSize {
		return 0, errs.Transient("render", fmt.Errorf("output is %d bytes, below minimum %d", info.Size(), minSize))
	}
	return info.Size(), nil
}

func removeOutput(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).WithField("path", path).Warn("could not remove partial output")
	}
}
