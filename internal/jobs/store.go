package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"videothingy/assembly-engine/internal/assembler"
	"videothingy/assembly-engine/internal/ports"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
	ErrBusy     = errors.New("job is still running")
	ErrNoResult = errors.New("job has no finished result")

	ErrIndexRange = errors.New("unit index out of range")
)

// Payload is the submitted input, as shown to clients and the status sink.
type Payload struct {
	ProjectID       string   `json:"project_id"`
	Units           int      `json:"units"`
	Preview         bool     `json:"preview"`
	OutputPath      string   `json:"output_path,omitempty"`
	Overlays        []string `json:"overlays,omitempty"`
	RegenerateIndex *int     `json:"regenerate_index,omitempty"`
}

// Output summarises a finished render.
type Output struct {
	OutputPath       string  `json:"output_path"`
	UploadURL        string  `json:"upload_url,omitempty"`
	ManifestPath     string  `json:"manifest_path"`
	CaptionsPath     string  `json:"captions_path,omitempty"`
	Duration         float64 `json:"duration_seconds"`
	AudioDuration    float64 `json:"audio_duration_seconds"`
	Frames           int     `json:"frames"`
	Scenes           int     `json:"scenes"`
	Attempts         int     `json:"render_attempts"`
	EstimatedSeconds float64 `json:"estimated_render_seconds"`
}

// State is the in-memory view of one job.
type State struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Status    string                 `json:"status"`
	Payload   Payload                `json:"payload"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	Output    *Output                `json:"output,omitempty"`
	ErrorKind string                 `json:"error_kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`

	result *assembler.Result
}

// Finished reports whether the job reached a terminal status.
func (s State) Finished() bool {
	return s.Status == assembler.StatusCompleted || s.Status == assembler.StatusFailed
}

// Store keeps job states in memory. It is also a ports.StatusRecorder so the
// assembler's stage transitions show up in polled state.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*State
}

var _ ports.StatusRecorder = (*Store)(nil)

func NewStore() *Store {
	return &Store{jobs: make(map[string]*State)}
}

// Create adds a new job in the queued state.
func (s *Store) Create(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[st.ID]; ok {
		return ErrExists
	}
	now := time.Now().UTC()
	st.Status = assembler.StatusQueued
	st.CreatedAt, st.UpdatedAt = now, now
	s.jobs[st.ID] = &st
	return nil
}

// Requeue moves a finished job back to queued for regeneration. The previous
// result is returned so the job can build on it.
func (s *Store) Requeue(id string, payload Payload) (*assembler.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !st.Finished() {
		return nil, ErrBusy
	}
	if st.result == nil {
		return nil, ErrNoResult
	}
	st.Status = assembler.StatusQueued
	st.Payload = payload
	st.Detail = nil
	st.Error, st.ErrorKind = "", ""
	st.UpdatedAt = time.Now().UTC()
	return st.result, nil
}

// Get returns a copy of the job state.
func (s *Store) Get(id string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	if !ok {
		return State{}, false
	}
	return st.copy(), true
}

// Result returns the last successful assembly of the job.
func (s *Store) Result(id string) (*assembler.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	if !ok || st.result == nil {
		return nil, false
	}
	return st.result, true
}

// List returns every job, oldest first.
func (s *Store) List() []State {
	s.mu.RLock()
	out := make([]State, 0, len(s.jobs))
	for _, st := range s.jobs {
		out = append(out, st.copy())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Record implements ports.StatusRecorder.
func (s *Store) Record(ctx context.Context, jobID, status string, detail map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	st.Status = status
	st.Detail = copyDetail(detail)
	if status == assembler.StatusFailed {
		st.Error, _ = detail["error"].(string)
		st.ErrorKind, _ = detail["error_kind"].(string)
	}
	st.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete stores the finished result.
func (s *Store) Complete(id string, res *assembler.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return
	}
	st.Status = assembler.StatusCompleted
	st.result = res
	st.Output = outputOf(res)
	st.Error, st.ErrorKind = "", ""
	st.UpdatedAt = time.Now().UTC()
}

// Fail marks the job failed. A previous result, if any, is kept so the job
// can be regenerated again.
func (s *Store) Fail(id string, kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.jobs[id]
	if !ok {
		return
	}
	st.Status = assembler.StatusFailed
	st.ErrorKind = kind
	if err != nil {
		st.Error = err.Error()
	}
	st.UpdatedAt = time.Now().UTC()
}

func (st *State) copy() State {
	c := *st
	c.Detail = copyDetail(st.Detail)
	if st.Output != nil {
		o := *st.Output
		c.Output = &o
	}
	return c
}

func copyDetail(detail map[string]interface{}) map[string]interface{} {
	if detail == nil {
		return nil
	}
	out := make(map[string]interface{}, len(detail))
	for k, v := range detail {
		out[k] = v
	}
	return out
}

func outputOf(res *assembler.Result) *Output {
	if res == nil {
		return nil
	}
	out := &Output{
		OutputPath:       res.OutputPath,
		UploadURL:        res.UploadURL,
		ManifestPath:     res.ManifestPath,
		CaptionsPath:     res.CaptionsPath,
		Duration:         res.Render.Duration,
		Frames:           res.Allocation.TotalFrames(),
		Scenes:           len(res.Segments),
		Attempts:         res.Render.Attempts,
		EstimatedSeconds: res.EstimatedTime.Seconds(),
	}
	if res.Audio != nil {
		out.AudioDuration = res.Audio.TotalDuration
	}
	return out
}
