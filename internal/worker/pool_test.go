package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type countJob struct {
	id    string
	count *int32
	err   error
}

func (j *countJob) Execute(ctx context.Context) error {
	atomic.AddInt32(j.count, 1)
	return j.err
}

func (j *countJob) ID() string { return j.id }

type blockingJob struct {
	started chan struct{}
	result  chan error
}

func (j *blockingJob) Execute(ctx context.Context) error {
	close(j.started)
	<-ctx.Done()
	j.result <- ctx.Err()
	return ctx.Err()
}

func (j *blockingJob) ID() string { return "blocking" }

type panicJob struct{}

func (panicJob) Execute(ctx context.Context) error { panic("boom") }
func (panicJob) ID() string                        { return "panic" }

func TestDispatcherRunsEveryJob(t *testing.T) {
	d := NewDispatcher(3, 20, nil)
	d.Run(context.Background())

	var count int32
	for i := 0; i < 20; i++ {
		var err error
		if i%5 == 0 {
			err = errors.New("job error")
		}
		if subErr := d.SubmitJob(&countJob{id: fmt.Sprintf("job-%d", i), count: &count, err: err}); subErr != nil {
			t.Fatalf("SubmitJob %d: %v", i, subErr)
		}
	}
	d.Drain()
	if got := atomic.LoadInt32(&count); got != 20 {
		t.Errorf("executed %d jobs, want 20", got)
	}
	if err := d.SubmitJob(&countJob{id: "late", count: &count}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestSubmitJobQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, nil)
	var count int32
	if err := d.SubmitJob(&countJob{id: "a", count: &count}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := d.SubmitJob(&countJob{id: "b", count: &count}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if d.QueueDepth() != 1 {
		t.Errorf("queue depth = %d", d.QueueDepth())
	}
	d.Stop()
}

func TestStopCancelsJobInFlight(t *testing.T) {
	d := NewDispatcher(1, 1, nil)
	d.Run(context.Background())
	job := &blockingJob{started: make(chan struct{}), result: make(chan error, 1)}
	if err := d.SubmitJob(job); err != nil {
		t.Fatal(err)
	}
	select {
	case <-job.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	if err := <-job.result; !errors.Is(err, context.Canceled) {
		t.Errorf("job saw %v, want context.Canceled", err)
	}
	d.Stop()
}

func TestWorkerSurvivesPanic(t *testing.T) {
	d := NewDispatcher(1, 4, nil)
	d.Run(context.Background())
	var count int32
	if err := d.SubmitJob(panicJob{}); err != nil {
		t.Fatal(err)
	}
	if err := d.SubmitJob(&countJob{id: "after", count: &count}); err != nil {
		t.Fatal(err)
	}
	d.Drain()
	if atomic.LoadInt32(&count) != 1 {
		t.Error("worker stopped after a panicking job")
	}
}
