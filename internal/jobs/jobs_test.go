package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"videothingy/assembly-engine/internal/assembler"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/render"
	"videothingy/assembly-engine/internal/worker"
)

type fakeRunner struct {
	mu          sync.Mutex
	store       *Store
	err         error
	regenerated []int
}

func (r *fakeRunner) Assemble(ctx context.Context, req assembler.Request) (*assembler.Result, error) {
	if r.store != nil {
		_ = r.store.Record(ctx, req.ProjectID, assembler.StatusRendering, map[string]interface{}{"segments": len(req.Units)})
	}
	if r.err != nil {
		return nil, r.err
	}
	return &assembler.Result{
		ProjectID:  req.ProjectID,
		Units:      req.Units,
		OutputPath: "/work/" + req.ProjectID + "/output.mp4",
		Audio:      &models.AudioProject{ID: req.ProjectID, TotalDuration: 4.2},
		Render:     render.Result{Duration: 4.2, Attempts: 1},
	}, nil
}

func (r *fakeRunner) Regenerate(ctx context.Context, prev *assembler.Result, index int, unit models.SpeechUnit) (*assembler.Result, error) {
	r.mu.Lock()
	r.regenerated = append(r.regenerated, index)
	r.mu.Unlock()
	next := *prev
	next.Units = append([]models.SpeechUnit(nil), prev.Units...)
	next.Units[index] = unit
	next.Render.Duration = 5
	return &next, nil
}

type syncSubmitter struct {
	err error
}

// SubmitJob runs the job inline so tests observe the final state.
func (s syncSubmitter) SubmitJob(job worker.Job) error {
	if s.err != nil {
		return s.err
	}
	_ = job.Execute(context.Background())
	return nil
}

type recorded struct {
	id, status string
}

type sink struct {
	mu      sync.Mutex
	entries []recorded
}

func (s *sink) Record(ctx context.Context, jobID, status string, detail map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, recorded{jobID, status})
	return nil
}

func units() []models.SpeechUnit {
	return []models.SpeechUnit{{SceneID: "a", Text: "one"}, {SceneID: "b", Text: "two"}}
}

func TestSubmitRenderCompletes(t *testing.T) {
	store := NewStore()
	ext := &sink{}
	q := &Queue{Store: store, Dispatcher: syncSubmitter{}, Runner: &fakeRunner{store: store}, Recorder: ext}

	st, err := q.SubmitRender(context.Background(), assembler.Request{ProjectID: "p1", Units: units()})
	if err != nil {
		t.Fatalf("SubmitRender: %v", err)
	}
	if st.ID != "p1" || st.Type != TypeRender || st.Status != assembler.StatusCompleted {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Output == nil || st.Output.Duration != 4.2 || st.Output.AudioDuration != 4.2 || st.Payload.Units != 2 {
		t.Errorf("unexpected output %+v payload %+v", st.Output, st.Payload)
	}
	if len(ext.entries) != 1 || ext.entries[0] != (recorded{"p1", assembler.StatusQueued}) {
		t.Errorf("external sink got %v", ext.entries)
	}
	if _, err := q.SubmitRender(context.Background(), assembler.Request{ProjectID: "p1", Units: units()}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func TestSubmitRenderFailureKeepsKind(t *testing.T) {
	store := NewStore()
	runner := &fakeRunner{err: errs.Structural("frame drift reached one frame").WithScene("b", 1)}
	q := &Queue{Store: store, Dispatcher: syncSubmitter{}, Runner: runner}

	st, err := q.SubmitRender(context.Background(), assembler.Request{Units: units()})
	if err != nil {
		t.Fatalf("SubmitRender: %v", err)
	}
	if st.ID == "" {
		t.Fatal("expected generated id")
	}
	if st.Status != assembler.StatusFailed || st.ErrorKind != "structural" || st.Error == "" {
		t.Errorf("unexpected state %+v", st)
	}
	if _, err := q.SubmitRegenerate(context.Background(), st.ID, 0, units()[0]); !errors.Is(err, ErrNoResult) {
		t.Errorf("expected ErrNoResult, got %v", err)
	}
}

func TestSubmitRenderQueueFull(t *testing.T) {
	store := NewStore()
	q := &Queue{Store: store, Dispatcher: syncSubmitter{err: worker.ErrQueueFull}, Runner: &fakeRunner{}}
	_, err := q.SubmitRender(context.Background(), assembler.Request{ProjectID: "p2", Units: units()})
	if !errors.Is(err, worker.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	st, ok := store.Get("p2")
	if !ok || st.Status != assembler.StatusFailed || st.ErrorKind != "resource" {
		t.Errorf("unexpected state %+v", st)
	}
}

func TestSubmitRegenerate(t *testing.T) {
	store := NewStore()
	runner := &fakeRunner{}
	q := &Queue{Store: store, Dispatcher: syncSubmitter{}, Runner: runner}
	if _, err := q.SubmitRender(context.Background(), assembler.Request{ProjectID: "p3", Units: units()}); err != nil {
		t.Fatal(err)
	}

	st, err := q.SubmitRegenerate(context.Background(), "p3", 1, models.SpeechUnit{SceneID: "b", Text: "two again"})
	if err != nil {
		t.Fatalf("SubmitRegenerate: %v", err)
	}
	if st.Status != assembler.StatusCompleted || st.Output.Duration != 5 {
		t.Errorf("unexpected state %+v", st)
	}
	if st.Payload.RegenerateIndex == nil || *st.Payload.RegenerateIndex != 1 {
		t.Errorf("payload %+v", st.Payload)
	}
	res, _ := store.Result("p3")
	if res.Units[1].Text != "two again" {
		t.Errorf("stored result not replaced: %+v", res.Units)
	}

	if _, err := q.SubmitRegenerate(context.Background(), "p3", 5, units()[0]); !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected ErrIndexRange, got %v", err)
	}
	if _, err := q.SubmitRegenerate(context.Background(), "missing", 0, units()[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRequeueRejectsRunningJobs(t *testing.T) {
	store := NewStore()
	if err := store.Create(State{ID: "p4", Type: TypeRender}); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(context.Background(), "p4", assembler.StatusRendering, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Requeue("p4", Payload{}); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	if err := store.Record(context.Background(), "nope", assembler.StatusRendering, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreGetReturnsCopies(t *testing.T) {
	store := NewStore()
	_ = store.Create(State{ID: "a"})
	time.Sleep(time.Millisecond)
	_ = store.Create(State{ID: "b"})
	_ = store.Record(context.Background(), "a", assembler.StatusComposing, map[string]interface{}{"k": 1})

	st, _ := store.Get("a")
	st.Detail["k"] = 2
	again, _ := store.Get("a")
	if again.Detail["k"] != 1 {
		t.Error("Get must not expose internal state")
	}
	list := store.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Errorf("list order %+v", list)
	}
}

func TestDispatcherRunsRenderJob(t *testing.T) {
	store := NewStore()
	d := worker.NewDispatcher(2, 4, nil)
	d.Run(context.Background())
	q := &Queue{Store: store, Dispatcher: d, Runner: &fakeRunner{store: store}}
	if _, err := q.SubmitRender(context.Background(), assembler.Request{ProjectID: "p5", Units: units()}); err != nil {
		t.Fatal(err)
	}
	d.Drain()
	st, _ := store.Get("p5")
	if st.Status != assembler.StatusCompleted {
		t.Errorf("status = %s", st.Status)
	}
}
