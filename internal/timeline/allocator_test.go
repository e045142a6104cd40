package timeline

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
)

func spans(durations ...float64) []models.SceneSpan {
	out := make([]models.SceneSpan, len(durations))
	for i, d := range durations {
		out[i] = models.SceneSpan{SceneID: string(rune('a' + i)), Duration: d}
	}
	return out
}

func TestAllocateThreeSceneScenario(t *testing.T) {
	a := NewAllocator(nil)
	alloc, err := a.Allocate(30, spans(2.033, 1.777, 0.511))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	wantCum := []int{61, 114, 130}
	wantFrames := []int{61, 53, 16}
	for i, s := range alloc.Scenes {
		if s.CumulativeFrames != wantCum[i] {
			t.Errorf("scene %d cumulative = %d, want %d", i, s.CumulativeFrames, wantCum[i])
		}
		if s.Frames != wantFrames[i] {
			t.Errorf("scene %d frames = %d, want %d", i, s.Frames, wantFrames[i])
		}
		if math.Abs(s.Drift) > 1.0/30 {
			t.Errorf("scene %d drift %v exceeds one frame", i, s.Drift)
		}
	}
	if alloc.TotalFrames() != 130 {
		t.Errorf("total frames = %d", alloc.TotalFrames())
	}
	if math.Abs(alloc.TotalDuration()-130.0/30) > 1e-12 {
		t.Errorf("total duration = %v", alloc.TotalDuration())
	}
}

func TestAllocateDriftBoundedForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewAllocator(nil)
	for _, fps := range []int{24, 25, 30, 60} {
		for trial := 0; trial < 50; trial++ {
			n := 1 + rng.Intn(40)
			ds := make([]float64, n)
			for i := range ds {
				ds[i] = 0.2 + rng.Float64()*6
			}
			alloc, err := a.Allocate(fps, spans(ds...))
			if err != nil {
				t.Fatalf("fps=%d trial=%d: %v", fps, trial, err)
			}
			frame := 1 / float64(fps)
			for i, s := range alloc.Scenes {
				if math.Abs(s.Drift) >= frame {
					t.Fatalf("fps=%d trial=%d scene=%d drift %v >= %v", fps, trial, i, s.Drift, frame)
				}
				if s.Frames < 1 {
					t.Fatalf("scene %d has %d frames", i, s.Frames)
				}
			}
		}
	}
}

func TestAllocateForcesAndBorrowsOneFrame(t *testing.T) {
	a := NewAllocator(nil)
	alloc, err := a.Allocate(30, spans(0.01, 0.01, 1.0))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	got := []int{alloc.Scenes[0].Frames, alloc.Scenes[1].Frames, alloc.Scenes[2].Frames}
	want := []int{1, 1, 29}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frames = %v, want %v", got, want)
			break
		}
	}
	// the borrowed frames are repaid by the final boundary
	if math.Abs(alloc.Scenes[2].Drift) >= 1.0/30 {
		t.Errorf("final drift %v not repaid", alloc.Scenes[2].Drift)
	}
}

func TestAllocateRejectsUnrepaidBorrow(t *testing.T) {
	a := NewAllocator(nil)
	_, err := a.Allocate(30, spans(0.01, 0.01))
	var se *errs.StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected structural error, got %v", err)
	}
	if se.SceneID != "b" || se.Drift <= 0 {
		t.Errorf("missing drift context: %+v", se)
	}
}

func TestAllocateInputErrors(t *testing.T) {
	a := NewAllocator(nil)
	if _, err := a.Allocate(0, spans(1)); err == nil {
		t.Error("expected error for fps 0")
	}
	if _, err := a.Allocate(30, nil); err == nil {
		t.Error("expected error for no scenes")
	}
	if _, err := a.Allocate(30, spans(1, -0.5)); !errs.IsStructural(err) {
		t.Errorf("expected structural error for negative duration, got %v", err)
	}
}

func TestBuildSegments(t *testing.T) {
	a := NewAllocator(nil)
	alloc, err := a.Allocate(30, spans(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	assets := []models.VisualAsset{{SceneID: "a", ImagePath: "a.png"}, {SceneID: "b", ImagePath: "b.png", CameraEffect: "zoom_in"}}
	calls := 0
	segs, err := BuildSegments(alloc, assets, func(asset models.VisualAsset) ([]models.Effect, error) {
		calls++
		return nil, nil
	})
	if err != nil {
		t.Fatalf("BuildSegments: %v", err)
	}
	if calls != 2 || len(segs) != 2 {
		t.Fatalf("calls=%d segs=%d", calls, len(segs))
	}
	if segs[1].Start != 1 || segs[1].Frames != 60 || segs[1].ImagePath != "b.png" || segs[1].Index != 1 {
		t.Errorf("unexpected segment %+v", segs[1])
	}

	if _, err := BuildSegments(alloc, assets[:1], nil); !errs.IsStructural(err) {
		t.Errorf("expected structural error on asset count mismatch, got %v", err)
	}
	swapped := []models.VisualAsset{assets[1], assets[0]}
	if _, err := BuildSegments(alloc, swapped, nil); !errs.IsStructural(err) {
		t.Errorf("expected structural error on order mismatch, got %v", err)
	}
}
