// Package db publishes render job status transitions to a Supabase table
// through PostgREST. The table is a write-only sink: nothing is read back to
// resume work.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"

	"videothingy/assembly-engine/internal/ports"
)

// RenderJobStatus maps to the status table. JSONB columns are raw messages
// and nullable columns are pointers.
type RenderJobStatus struct {
	JobID         string          `json:"job_id"`
	JobType       string          `json:"job_type"`
	Status        string          `json:"status"`
	InputPayload  json.RawMessage `json:"input_payload,omitempty"`
	OutputDetails json.RawMessage `json:"output_details,omitempty"`
	ErrorKind     *string         `json:"error_kind,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// DefaultTable is used when no table name is configured.
const DefaultTable = "render_job_statuses"

// JobTypeRender is the job_type written for assembly jobs.
const JobTypeRender = "RENDER"

// StatusRecorder implements ports.StatusRecorder on top of PostgREST. The
// "queued" status upserts the row, so a regenerated project reuses it; every
// later status updates it.
type StatusRecorder struct {
	client *postgrest.Client
	table  string
	log    *logrus.Entry
}

var _ ports.StatusRecorder = (*StatusRecorder)(nil)

// NewStatusRecorder builds a client against supabaseURL/rest/v1 using the
// service key for both apikey and bearer auth.
func NewStatusRecorder(supabaseURL, serviceKey, table string, log *logrus.Logger) (*StatusRecorder, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, errors.New("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}
	if table == "" {
		table = DefaultTable
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := postgrest.NewClient(strings.TrimRight(supabaseURL, "/")+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize postgrest client: %w", client.ClientError)
	}
	log.WithField("table", table).Info("status recorder initialized")
	return &StatusRecorder{client: client, table: table, log: log.WithField("component", "status_db")}, nil
}

// Record implements ports.StatusRecorder.
func (r *StatusRecorder) Record(ctx context.Context, jobID, status string, detail map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if status == "queued" {
		return r.CreateJobRecord(jobID, JobTypeRender, detail)
	}
	var errMsg, errKind string
	if status == "failed" && detail != nil {
		errMsg, _ = detail["error"].(string)
		errKind, _ = detail["error_kind"].(string)
	}
	return r.UpdateJobStatus(jobID, status, detail, errKind, errMsg)
}

// CreateJobRecord upserts the initial row for jobID.
func (r *StatusRecorder) CreateJobRecord(jobID, jobType string, inputPayload interface{}) error {
	payload, err := json.Marshal(inputPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal input payload: %w", err)
	}
	record := RenderJobStatus{
		JobID:        jobID,
		JobType:      jobType,
		Status:       "queued",
		InputPayload: payload,
	}

	var results []RenderJobStatus
	if _, err := r.client.From(r.table).Insert(record, true, "job_id", "representation", "").ExecuteTo(&results); err != nil {
		return fmt.Errorf("failed to insert job record %s: %w", jobID, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("no record returned after insert, job_id: %s", jobID)
	}
	r.log.WithFields(logrus.Fields{"job_id": jobID, "job_type": jobType}).Debug("job record created")
	return nil
}

// UpdateJobStatus sets status, output details and, for failures, the error
// columns of an existing row.
func (r *StatusRecorder) UpdateJobStatus(jobID, status string, outputDetails interface{}, errKind, errMsg string) error {
	update := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if outputDetails != nil {
		data, err := json.Marshal(outputDetails)
		if err != nil {
			return fmt.Errorf("failed to marshal output details: %w", err)
		}
		update["output_details"] = json.RawMessage(data)
	}
	if errMsg != "" {
		update["error_message"] = errMsg
	}
	if errKind != "" {
		update["error_kind"] = errKind
	}

	var results []RenderJobStatus
	if _, err := r.client.From(r.table).Update(update, "", "").Eq("job_id", jobID).ExecuteTo(&results); err != nil {
		return fmt.Errorf("failed to update job record %s: %w", jobID, err)
	}
	r.log.WithFields(logrus.Fields{"job_id": jobID, "status": status}).Debug("job record updated")
	return nil
}
