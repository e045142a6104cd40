// Package jobs defines the render jobs run by the worker pool and the
// in-memory state clients poll.
package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/assembler"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
	"videothingy/assembly-engine/internal/worker"
)

const (
	TypeRender     = "RENDER"
	TypeRegenerate = "REGENERATE"
)

// Runner is the assembly surface jobs drive. *assembler.Assembler satisfies it.
type Runner interface {
	Assemble(ctx context.Context, req assembler.Request) (*assembler.Result, error)
	Regenerate(ctx context.Context, prev *assembler.Result, index int, unit models.SpeechUnit) (*assembler.Result, error)
}

var _ Runner = (*assembler.Assembler)(nil)

// RenderJob assembles one project.
type RenderJob struct {
	JobID   string
	Request assembler.Request
	runner  Runner
	store   *Store
	log     *logrus.Entry
}

// NewRenderJob creates a job whose id doubles as the project id.
func NewRenderJob(req assembler.Request, runner Runner, store *Store, log *logrus.Logger) *RenderJob {
	if req.ProjectID == "" {
		req.ProjectID = uuid.NewString()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RenderJob{
		JobID:   req.ProjectID,
		Request: req,
		runner:  runner,
		store:   store,
		log:     log.WithFields(logrus.Fields{"component": "render_job", "job_id": req.ProjectID}),
	}
}

func (j *RenderJob) ID() string { return j.JobID }

func (j *RenderJob) Type() string { return TypeRender }

// Payload is the job input recorded with the queued status.
func (j *RenderJob) Payload() Payload {
	return Payload{
		ProjectID:  j.JobID,
		Units:      len(j.Request.Units),
		Preview:    j.Request.Preview,
		OutputPath: j.Request.OutputPath,
		Overlays:   j.Request.Overlays,
	}
}

// Execute runs the assembly and stores the outcome.
func (j *RenderJob) Execute(ctx context.Context) error {
	j.log.WithField("units", len(j.Request.Units)).Info("executing render job")
	res, err := j.runner.Assemble(ctx, j.Request)
	if err != nil {
		j.store.Fail(j.JobID, errs.Kind(err), err)
		return fmt.Errorf("render job %s: %w", j.JobID, err)
	}
	j.store.Complete(j.JobID, res)
	j.log.WithField("output", res.OutputPath).Info("render job completed")
	return nil
}

// RegenerateJob re-synthesizes one unit of a finished project.
type RegenerateJob struct {
	JobID  string
	Index  int
	Unit   models.SpeechUnit
	prev   *assembler.Result
	runner Runner
	store  *Store
	log    *logrus.Entry
}

func NewRegenerateJob(prev *assembler.Result, index int, unit models.SpeechUnit, runner Runner, store *Store, log *logrus.Logger) *RegenerateJob {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RegenerateJob{
		JobID:  prev.ProjectID,
		Index:  index,
		Unit:   unit,
		prev:   prev,
		runner: runner,
		store:  store,
		log:    log.WithFields(logrus.Fields{"component": "regenerate_job", "job_id": prev.ProjectID, "index": index}),
	}
}

func (j *RegenerateJob) ID() string { return j.JobID }

func (j *RegenerateJob) Type() string { return TypeRegenerate }

func (j *RegenerateJob) Payload() Payload {
	idx := j.Index
	return Payload{
		ProjectID:       j.JobID,
		Units:           len(j.prev.Units),
		Preview:         false,
		OutputPath:      j.prev.OutputPath,
		Overlays:        j.prev.Overlays,
		RegenerateIndex: &idx,
	}
}

func (j *RegenerateJob) Execute(ctx context.Context) error {
	j.log.Info("executing regenerate job")
	res, err := j.runner.Regenerate(ctx, j.prev, j.Index, j.Unit)
	if err != nil {
		j.store.Fail(j.JobID, errs.Kind(err), err)
		return fmt.Errorf("regenerate job %s: %w", j.JobID, err)
	}
	j.store.Complete(j.JobID, res)
	j.log.WithField("output", res.OutputPath).Info("regenerate job completed")
	return nil
}

// Submitter accepts jobs. *worker.Dispatcher satisfies it.
type Submitter interface {
	SubmitJob(job worker.Job) error
}

// Queue ties the store, the external status sink and the dispatcher.
type Queue struct {
	Store      *Store
	Dispatcher Submitter
	Runner     Runner
	// Recorder receives the queued status; the assembler records the rest.
	Recorder ports.StatusRecorder
	Log      *logrus.Logger
}

// SubmitRender validates req, stores it as queued and hands it to the
// dispatcher. When the dispatcher refuses the job it is marked failed.
func (q *Queue) SubmitRender(ctx context.Context, req assembler.Request) (State, error) {
	job := NewRenderJob(req, q.Runner, q.Store, q.Log)
	st := State{ID: job.ID(), Type: job.Type(), Payload: job.Payload()}
	if err := q.Store.Create(st); err != nil {
		return State{}, err
	}
	return q.enqueue(ctx, job, job.Payload())
}

// SubmitRegenerate queues a regeneration of unit index for a finished job.
func (q *Queue) SubmitRegenerate(ctx context.Context, id string, index int, unit models.SpeechUnit) (State, error) {
	prev, ok := q.Store.Result(id)
	if !ok {
		if _, exists := q.Store.Get(id); !exists {
			return State{}, ErrNotFound
		}
		return State{}, ErrNoResult
	}
	if index < 0 || index >= len(prev.Units) {
		return State{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexRange, index, len(prev.Units))
	}
	job := NewRegenerateJob(prev, index, unit, q.Runner, q.Store, q.Log)
	if _, err := q.Store.Requeue(id, job.Payload()); err != nil {
		return State{}, err
	}
	return q.enqueue(ctx, job, job.Payload())
}

func (q *Queue) enqueue(ctx context.Context, job worker.Job, payload Payload) (State, error) {
	if q.Recorder != nil {
		detail := map[string]interface{}{
			"project_id": payload.ProjectID,
			"units":      payload.Units,
			"preview":    payload.Preview,
		}
		if payload.RegenerateIndex != nil {
			detail["regenerate_index"] = *payload.RegenerateIndex
		}
		if err := q.Recorder.Record(ctx, job.ID(), assembler.StatusQueued, detail); err != nil && q.Log != nil {
			q.Log.WithError(err).WithField("job_id", job.ID()).Warn("failed to record queued status")
		}
	}
	if err := q.Dispatcher.SubmitJob(job); err != nil {
		q.Store.Fail(job.ID(), "resource", err)
		return State{}, err
	}
	st, _ := q.Store.Get(job.ID())
	return st, nil
}
