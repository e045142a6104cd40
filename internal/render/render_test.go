package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"videothingy/assembly-engine/internal/config"
	"videothingy/assembly-engine/internal/effects"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/retry"
)

func testSegments(t *testing.T) []models.VideoSegment {
	t.Helper()
	zoom, err := effects.NewCamera(effects.TagZoomIn, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	return []models.VideoSegment{
		{Index: 0, SceneID: "a", ImagePath: "/img/a.png", Start: 0, Duration: 61.0 / 30, Frames: 61, Effects: []models.Effect{zoom}},
		{Index: 1, SceneID: "b", ImagePath: "/img/b.png", Start: 61.0 / 30, Duration: 53.0 / 30, Frames: 53},
		{Index: 2, SceneID: "c", ImagePath: "/img/c.png", Start: 114.0 / 30, Duration: 16.0 / 30, Frames: 16},
	}
}

func TestBuildInstruction(t *testing.T) {
	s := SettingsFrom(config.Default())
	instr, err := Build(testSegments(t), "/work/master.wav", []string{"/work/captions.ass"}, s, "/out/final.mp4")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(instr.Inputs) != 4 || instr.Inputs[3].Path != "/work/master.wav" {
		t.Fatalf("unexpected inputs %+v", instr.Inputs)
	}
	if got := strings.Join(instr.Inputs[1].Options, " "); got != "-loop 1 -framerate 30 -t "+secs(53.0/30) {
		t.Errorf("segment input options = %q", got)
	}
	if !strings.HasSuffix(instr.FilterGraph, "[v0][v1][v2]concat=n=3:v=1:a=0,subtitles='/work/captions.ass'[outv]") {
		t.Errorf("graph tail = %s", instr.FilterGraph)
	}
	if instr.Maps[0] != "[outv]" || instr.Maps[1] != "3:a" {
		t.Errorf("maps = %v", instr.Maps)
	}
	opts := strings.Join(instr.OutputOptions, " ")
	want := "-c:v libx264 -preset medium -crf 23 -pix_fmt yuv420p -c:a aac -b:a 192k -ar 44100 -r 30 -shortest"
	if opts != want {
		t.Errorf("output options\n got %s\nwant %s", opts, want)
	}
	args := instr.Args()
	if args[0] != "-y" || args[len(args)-1] != "/out/final.mp4" {
		t.Errorf("args = %v", args)
	}

	again, _ := Build(testSegments(t), "/work/master.wav", []string{"/work/captions.ass"}, s, "/out/final.mp4")
	if again.FilterGraph != instr.FilterGraph {
		t.Error("filter graph is not deterministic")
	}
}

func TestBuildWithoutCaptionsAndWithBitrate(t *testing.T) {
	s := SettingsFrom(config.Default())
	s.Bitrate = "6M"
	instr, err := Build(testSegments(t), "/work/master.wav", nil, s, "/out/final.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(instr.FilterGraph, "subtitles") {
		t.Error("subtitles should be skipped without a captions path")
	}
	opts := strings.Join(instr.OutputOptions, " ")
	if !strings.Contains(opts, "-b:v 6M") || strings.Contains(opts, "-crf") {
		t.Errorf("bitrate should replace crf: %s", opts)
	}
}

func TestBuildChainsOverlayDocuments(t *testing.T) {
	s := SettingsFrom(config.Default())
	overlays := []string{"/work/captions.ass", "", "/work/lower-third.ass", "/work/credits.srt"}
	instr, err := Build(testSegments(t), "/work/master.wav", overlays, s, "/out/final.mp4")
	if err != nil {
		t.Fatal(err)
	}
	want := "concat=n=3:v=1:a=0,subtitles='/work/captions.ass',subtitles='/work/lower-third.ass',subtitles='/work/credits.srt'[outv]"
	if !strings.HasSuffix(instr.FilterGraph, want) {
		t.Errorf("graph tail = %s", instr.FilterGraph)
	}
}

func TestBuildErrors(t *testing.T) {
	s := SettingsFrom(config.Default())
	if _, err := Build(nil, "/m.wav", nil, s, "/o.mp4"); !errs.IsStructural(err) {
		t.Errorf("expected structural error for no segments, got %v", err)
	}
	if _, err := Build(testSegments(t), "", nil, s, "/o.mp4"); !errs.IsStructural(err) {
		t.Errorf("expected structural error for no audio, got %v", err)
	}
}

func TestEscapeSubtitlePath(t *testing.T) {
	got := EscapeSubtitlePath(`C:\work\it's.ass`)
	if got != `C\:/work/it\'s.ass` {
		t.Errorf("EscapeSubtitlePath = %s", got)
	}
}

func TestPreviewSettings(t *testing.T) {
	s := SettingsFrom(config.Default()).Preview(2.5)
	segs := testSegments(t)
	instr, err := Build(segs, "/work/master.wav", nil, s, "/out/preview.mp4")
	if err != nil {
		t.Fatal(err)
	}
	opts := strings.Join(instr.OutputOptions, " ")
	if !strings.Contains(opts, "-preset ultrafast -crf 28") || !strings.Contains(opts, "-t 2.5") {
		t.Errorf("preview options = %s", opts)
	}
	// the third segment starts at 3.8s and is dropped
	if len(instr.Inputs) != 3 || instr.Maps[1] != "2:a" {
		t.Errorf("preview should keep 2 segments, inputs=%d maps=%v", len(instr.Inputs), instr.Maps)
	}
	if got := ExpectedDuration(segs, s); got != 2.5 {
		t.Errorf("expected preview duration = %v", got)
	}
}

func TestEstimateRenderTime(t *testing.T) {
	segs := testSegments(t)
	total := 130.0 / 30
	want := 2*total + 1.5*(61.0/30)
	got := EstimateRenderTime(segs).Seconds()
	if diff := got - want; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("estimate = %v, want %v", got, want)
	}
}

type fakeRenderer struct {
	calls int
	// sizes per attempt; a negative size returns err instead of writing.
	sizes []int
	err   error
	block bool
}

func (f *fakeRenderer) Render(ctx context.Context, instr models.RenderInstruction) error {
	f.calls++
	if f.block {
		os.WriteFile(instr.OutputPath, []byte("partial"), 0o644)
		<-ctx.Done()
		return ctx.Err()
	}
	size := f.sizes[min(f.calls-1, len(f.sizes)-1)]
	if size < 0 {
		os.WriteFile(instr.OutputPath, []byte("partial"), 0o644)
		return f.err
	}
	return os.WriteFile(instr.OutputPath, make([]byte, size), 0o644)
}

type fixedProber float64

func (p fixedProber) Duration(ctx context.Context, path string) (float64, error) {
	return float64(p), nil
}

func testRunner(r *fakeRenderer, probed float64) *Runner {
	return NewRunner(r, fixedProber(probed), RunnerOptions{
		Retry:        retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		MinOutputKiB: 1,
		FPS:          30,
	}, nil)
}

func instrAt(t *testing.T) models.RenderInstruction {
	return models.RenderInstruction{OutputPath: filepath.Join(t.TempDir(), "out.mp4")}
}

func TestRunnerRetriesTransientThenSucceeds(t *testing.T) {
	r := &fakeRenderer{sizes: []int{-1, 4096}, err: errs.Transient("ffmpeg", errors.New("exit status 1"))}
	instr := instrAt(t)
	res, err := testRunner(r, 4.0).Execute(context.Background(), instr, 4.0+0.02)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 2 || res.SizeBytes != 4096 {
		t.Errorf("result = %+v", res)
	}
}

func TestRunnerRejectsSmallOutput(t *testing.T) {
	r := &fakeRenderer{sizes: []int{10}}
	instr := instrAt(t)
	_, err := testRunner(r, 4.0).Execute(context.Background(), instr, 4.0)
	if !errs.IsTransient(err) {
		t.Fatalf("expected transient error after retries, got %v", err)
	}
	if r.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", r.calls)
	}
	if _, statErr := os.Stat(instr.OutputPath); !os.IsNotExist(statErr) {
		t.Error("undersized output must be removed")
	}
}

func TestRunnerRejectsDurationDrift(t *testing.T) {
	r := &fakeRenderer{sizes: []int{2048}}
	instr := instrAt(t)
	_, err := testRunner(r, 4.1).Execute(context.Background(), instr, 4.0)
	var se *errs.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if se.Expected != 4.0 || se.Actual != 4.1 {
		t.Errorf("timing context = %+v", se)
	}
	if _, statErr := os.Stat(instr.OutputPath); !os.IsNotExist(statErr) {
		t.Error("output with drift must be removed")
	}
}

func TestRunnerStructuralFailureIsNotRetried(t *testing.T) {
	r := &fakeRenderer{sizes: []int{-1}, err: errs.Structural("bad graph")}
	_, err := testRunner(r, 4).Execute(context.Background(), instrAt(t), 4)
	if !errs.IsStructural(err) || r.calls != 1 {
		t.Errorf("err=%v calls=%d", err, r.calls)
	}
}

func TestRunnerCancellationRemovesPartialOutput(t *testing.T) {
	r := &fakeRenderer{block: true}
	instr := instrAt(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := testRunner(r, 4).Execute(ctx, instr, 4)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(instr.OutputPath); !os.IsNotExist(statErr) {
		t.Error("partial output must be removed on cancel")
	}
}
