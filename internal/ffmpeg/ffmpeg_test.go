package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const probeJSON = `{"format":{"duration":"2.533000","size":"40960","format_name":"mov,mp4"},"streams":[{"codec_type":"video","codec_name":"h264","width":1080,"height":1920},{"codec_type":"audio","codec_name":"aac"}]}`

func fakeTool(t *testing.T, ffmpegBody string) *Tool {
	dir := t.TempDir()
	ff := writeScript(t, dir, "ffmpeg", ffmpegBody)
	fp := writeScript(t, dir, "ffprobe", "if [ \"$1\" = \"-version\" ]; then echo 'ffprobe version 6.1'; exit 0; fi\necho '"+probeJSON+"'\n")
	return New(logrus.New()).WithBinaries(ff, fp)
}

func TestProbeAndDuration(t *testing.T) {
	tool := fakeTool(t, "exit 0\n")
	probe, err := tool.Probe(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !probe.HasStream("video") || !probe.HasStream("audio") || probe.HasStream("subtitle") {
		t.Errorf("unexpected streams: %+v", probe.Streams)
	}
	d, err := tool.Duration(context.Background(), "in.mp4")
	if err != nil {
		t.Fatalf("Duration: %v", err)
	}
	if d != 2.533 {
		t.Errorf("expected 2.533, got %v", d)
	}
}

func TestRunClassifiesFailureAsTransient(t *testing.T) {
	tool := fakeTool(t, "echo 'Invalid argument' >&2\nexit 1\n")
	err := tool.Run(context.Background(), "-i", "x")
	if !errs.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid argument") {
		t.Errorf("expected stderr in error, got %v", err)
	}
}

func TestRenderWritesOutput(t *testing.T) {
	tool := fakeTool(t, "for last; do :; done\necho rendered > \"$last\"\n")
	out := filepath.Join(t.TempDir(), "out.mp4")
	err := tool.Render(context.Background(), models.RenderInstruction{
		Inputs:     []models.RenderInput{{Path: "a.png"}},
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestValidateMissingBinary(t *testing.T) {
	tool := New(logrus.New()).WithBinaries(filepath.Join(t.TempDir(), "no-ffmpeg"), "ffprobe")
	err := tool.Validate(context.Background())
	if !errs.IsResource(err) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestValidateRunsVersion(t *testing.T) {
	tool := fakeTool(t, "echo 'ffmpeg version 6.1'\n")
	if err := tool.Validate(context.Background()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCrossfadeGraph(t *testing.T) {
	graph, label := CrossfadeGraph(3, 0.1)
	want := "[0:a][1:a]acrossfade=d=0.100:c1=tri:c2=tri[xf1];[xf1][2:a]acrossfade=d=0.100:c1=tri:c2=tri[xf2]"
	if graph != want {
		t.Errorf("graph\n got %s\nwant %s", graph, want)
	}
	if label != "[xf2]" {
		t.Errorf("label = %s", label)
	}
}

func TestAdjustFilter(t *testing.T) {
	cases := []struct {
		opts AdjustOptions
		want string
	}{
		{AdjustOptions{Tempo: 1}, ""},
		{AdjustOptions{Tempo: 1.1}, "atempo=1.1000"},
		{AdjustOptions{Tempo: 1.1, Normalize: true, LoudnessDB: -20}, "atempo=1.1000,loudnorm=I=-20.0:TP=-1.5:LRA=11"},
	}
	for _, tc := range cases {
		if got := AdjustFilter(tc.opts); got != tc.want {
			t.Errorf("AdjustFilter(%+v) = %q, want %q", tc.opts, got, tc.want)
		}
	}
}

func TestOverlayGraph(t *testing.T) {
	got := OverlayGraph([]SFXCue{{Path: "a.wav", At: 1.5}, {Path: "b.wav", At: 0.25, Volume: 0.5}})
	want := "[1:a]volume=0.80,adelay=1500|1500[sfx0];[2:a]volume=0.50,adelay=250|250[sfx1];[0:a][sfx0][sfx1]amix=inputs=3:duration=first:dropout_transition=0:normalize=0[aout]"
	if got != want {
		t.Errorf("OverlayGraph\n got %s\nwant %s", got, want)
	}
}
