package models

import (
	"math"
	"testing"
)

func testProject() *AudioProject {
	return &AudioProject{
		Segments: []AudioSegment{
			{SceneID: "s1", Duration: 2, GlobalOffset: 0, Words: []WordTimestamp{{Word: "hello", Start: 0.1, End: 0.5}}},
			{SceneID: "s1", Duration: 1, GlobalOffset: 2, Words: []WordTimestamp{{Word: "there", Start: 0.2, End: 0.6}}},
			{SceneID: "s2", Duration: 1, GlobalOffset: 3, Words: []WordTimestamp{{Word: "friend", Start: 0, End: 0.8}}},
		},
		RawDuration:   4,
		TotalDuration: 2,
	}
}

func TestSceneDurationsGroupsAndScales(t *testing.T) {
	p := testProject()
	spans := p.SceneDurations()
	if len(spans) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(spans))
	}
	if spans[0].SceneID != "s1" || math.Abs(spans[0].Duration-1.5) > 1e-9 {
		t.Errorf("scene s1: got %+v", spans[0])
	}
	if spans[1].SceneID != "s2" || math.Abs(spans[1].Duration-0.5) > 1e-9 {
		t.Errorf("scene s2: got %+v", spans[1])
	}
}

func TestGlobalWordsAreOffsetAndScaled(t *testing.T) {
	words := testProject().GlobalWords()
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(words))
	}
	// second segment starts at raw 2s, scale 0.5 -> 1s; word at raw 0.2 -> 1.1
	if math.Abs(words[1].Start-1.1) > 1e-9 || math.Abs(words[1].End-1.3) > 1e-9 {
		t.Errorf("unexpected shifted word: %+v", words[1])
	}
}

func TestWordAtAndSegmentStart(t *testing.T) {
	p := testProject()
	w, ok := p.WordAt(1.2)
	if !ok || w.Word != "there" {
		t.Fatalf("WordAt(1.2) = %+v, %v", w, ok)
	}
	if _, ok := p.WordAt(1.4); ok {
		t.Error("expected no word at 1.4")
	}
	start, err := p.SegmentStart(2)
	if err != nil || math.Abs(start-1.5) > 1e-9 {
		t.Errorf("SegmentStart(2) = %v, %v", start, err)
	}
	if _, err := p.SegmentStart(5); err == nil {
		t.Error("expected out of range error")
	}
}

func TestTimeScaleDefaultsToOne(t *testing.T) {
	p := &AudioProject{}
	if p.TimeScale() != 1 {
		t.Errorf("expected 1, got %v", p.TimeScale())
	}
}

func TestRenderInstructionArgs(t *testing.T) {
	ri := RenderInstruction{
		Inputs:        []RenderInput{{Options: []string{"-loop", "1"}, Path: "a.png"}, {Path: "m.mp3"}},
		FilterGraph:   "[0:v]copy[outv]",
		Maps:          []string{"[outv]", "1:a"},
		OutputOptions: []string{"-shortest"},
		OutputPath:    "out.mp4",
	}
	want := []string{"-y", "-loop", "1", "-i", "a.png", "-i", "m.mp3", "-filter_complex", "[0:v]copy[outv]", "-map", "[outv]", "-map", "1:a", "-shortest", "out.mp4"}
	got := ri.Args()
	if len(got) != len(want) {
		t.Fatalf("args length %d, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderContextTotalFrames(t *testing.T) {
	rc := RenderContext{Duration: 1.5, FPS: 30}
	if rc.TotalFrames() != 45 {
		t.Errorf("expected 45, got %d", rc.TotalFrames())
	}
	if (RenderContext{Duration: 0, FPS: 30}).TotalFrames() != 1 {
		t.Error("expected minimum of one frame")
	}
}

func TestCrossfadeMapsUnequalUnits(t *testing.T) {
	p := &AudioProject{Crossfade: 0.1}
	offset := 0.0
	add := func(scene string, d float64) {
		p.Segments = append(p.Segments, AudioSegment{SceneID: scene, Duration: d, GlobalOffset: offset})
		offset += d
	}
	add("intro", 10)
	for i := 0; i < 10; i++ {
		add("list", 0.5)
	}
	p.RawDuration = offset
	// 15s of clips minus ten 0.1s overlaps, no tempo change.
	p.TotalDuration = 14

	if got := p.TimeScale(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("TimeScale = %v, want 1", got)
	}
	tests := []struct {
		unit int
		want float64
	}{
		{0, 0},
		{1, 9.9},
		{5, 11.5},
		{10, 13.5},
	}
	for _, tt := range tests {
		got, err := p.SegmentStart(tt.unit)
		if err != nil || math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("SegmentStart(%d) = %v, %v; want %v", tt.unit, got, err, tt.want)
		}
	}

	spans := p.SceneDurations()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %+v", spans)
	}
	if math.Abs(spans[0].Duration-9.9) > 1e-9 || math.Abs(spans[1].Start-9.9) > 1e-9 {
		t.Errorf("intro span = %+v, list span = %+v", spans[0], spans[1])
	}
	if sum := spans[0].Duration + spans[1].Duration; math.Abs(sum-p.TotalDuration) > 1e-9 {
		t.Errorf("spans sum to %v, want %v", sum, p.TotalDuration)
	}
}

func TestSceneDurationsKeepsReturningScenesSeparate(t *testing.T) {
	p := &AudioProject{
		Segments: []AudioSegment{
			{SceneID: "A", Duration: 2, GlobalOffset: 0},
			{SceneID: "B", Duration: 3, GlobalOffset: 2},
			{SceneID: "A", Duration: 4, GlobalOffset: 5},
		},
		RawDuration:   9,
		TotalDuration: 9,
	}
	want := []SceneSpan{
		{SceneID: "A", Start: 0, Duration: 2, FirstUnit: 0, Units: 1},
		{SceneID: "B", Start: 2, Duration: 3, FirstUnit: 1, Units: 1},
		{SceneID: "A", Start: 5, Duration: 4, FirstUnit: 2, Units: 1},
	}
	got := p.SceneDurations()
	if len(got) != len(want) {
		t.Fatalf("got %d spans, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.SceneID != w.SceneID || g.FirstUnit != w.FirstUnit || g.Units != w.Units ||
			math.Abs(g.Start-w.Start) > 1e-9 || math.Abs(g.Duration-w.Duration) > 1e-9 {
			t.Errorf("span %d = %+v, want %+v", i, g, w)
		}
	}
}
