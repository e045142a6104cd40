package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

const stderrTail = 2048

// Tool wraps the ffmpeg and ffprobe binaries.
type Tool struct {
	FFmpegPath  string
	FFprobePath string
	log         *logrus.Entry
}

// New returns a Tool that resolves both binaries from PATH.
func New(log *logrus.Logger) *Tool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tool{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		log:         log.WithField("component", "ffmpeg"),
	}
}

// WithBinaries overrides the binary paths.
func (t *Tool) WithBinaries(ffmpegPath, ffprobePath string) *Tool {
	cp := *t
	cp.FFmpegPath = ffmpegPath
	cp.FFprobePath = ffprobePath
	return &cp
}

// Validate checks that both binaries exist and run. It is meant to be called
// once at startup, before any per-scene work.
func (t *Tool) Validate(ctx context.Context) error {
	for _, bin := range []*string{&t.FFmpegPath, &t.FFprobePath} {
		path, err := exec.LookPath(*bin)
		if err != nil {
			return &errs.ResourceError{Resource: *bin, Err: fmt.Errorf("not found in PATH: %w", err)}
		}
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, path, "-version")
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return &errs.ResourceError{Resource: *bin, Err: fmt.Errorf("%s -version failed: %v\nStderr: %s", path, err, tail(stderr.String()))}
		}
		firstLine, _, _ := strings.Cut(stdout.String(), "\n")
		t.log.WithFields(logrus.Fields{"path": path, "version": firstLine}).Info("found media binary")
		*bin = path
	}
	return nil
}

// ProbeOutput is the subset of ffprobe JSON output this module reads.
type ProbeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeStream describes one elementary stream.
type ProbeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Duration   string `json:"duration,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`
}

// HasStream reports whether the file carries a stream of the given type.
func (p *ProbeOutput) HasStream(codecType string) bool {
	for _, s := range p.Streams {
		if s.CodecType == codecType {
			return true
		}
	}
	return false
}

// Seconds parses the container duration.
func (p *ProbeOutput) Seconds() (float64, error) {
	if p.Format.Duration == "" {
		return 0, fmt.Errorf("could not retrieve duration from ffprobe output")
	}
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("error parsing duration string '%s': %v", p.Format.Duration, err)
	}
	return d, nil
}

// Probe runs ffprobe with JSON output over format and streams.
func (t *Tool) Probe(ctx context.Context, filePath string) (*ProbeOutput, error) {
	// ffprobe -v quiet -print_format json -show_format -show_streams <input_file>
	cmd := exec.CommandContext(ctx, t.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffprobe failed on %s: %v\nStderr: %s", filePath, err, tail(stderr.String()))
	}

	var probe ProbeOutput
	if err := json.Unmarshal(out.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("error unmarshalling ffprobe output: %v\nOutput: %s", err, tail(out.String()))
	}
	return &probe, nil
}

// Duration measures a media file in seconds.
func (t *Tool) Duration(ctx context.Context, filePath string) (float64, error) {
	probe, err := t.Probe(ctx, filePath)
	if err != nil {
		return 0, err
	}
	d, err := probe.Seconds()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filePath, err)
	}
	return d, nil
}

// Run executes ffmpeg with args. A non-zero exit is reported as a transient
// external error so callers can retry; a cancelled context is returned as is.
func (t *Tool) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, t.FFmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.log.WithField("args", strings.Join(args, " ")).Debug("running ffmpeg")

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, exec.ErrNotFound) {
		return &errs.ResourceError{Resource: t.FFmpegPath, Err: err}
	}
	return errs.Transient("ffmpeg", fmt.Errorf("ffmpeg failed: %v\nStderr: %s", err, tail(stderr.String())))
}

// Render implements ports.Renderer.
func (t *Tool) Render(ctx context.Context, instr models.RenderInstruction) error {
	return t.Run(ctx, instr.Args()...)
}

func tail(s string) string {
	if len(s) <= stderrTail {
		return s
	}
	return "..." + s[len(s)-stderrTail:]
}
