// -----------------------------------------------------------------------
// Job Record - persisted unit of pipeline work
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType identifies the pipeline stage that owns a job record
type JobType string

const (
	JobTypeTitleGeneration   JobType = "title_generation"
	JobTypeOutlineGeneration JobType = "outline_generation"
	JobTypeBlogGeneration    JobType = "blog_generation"
)

// AllJobTypes lists the stages in pipeline order
var AllJobTypes = []JobType{
	JobTypeTitleGeneration,
	JobTypeOutlineGeneration,
	JobTypeBlogGeneration,
}

// ParseJobType accepts either the canonical value or the short stage name ("title", "outline", "blog")
func ParseJobType(s string) (JobType, error) {
	switch s {
	case string(JobTypeTitleGeneration), "title", "titles":
		return JobTypeTitleGeneration, nil
	case string(JobTypeOutlineGeneration), "outline":
		return JobTypeOutlineGeneration, nil
	case string(JobTypeBlogGeneration), "blog":
		return JobTypeBlogGeneration, nil
	}
	return "", fmt.Errorf("unknown job type: %s", s)
}

// Stage returns the short stage name used for queue and config naming
func (t JobType) Stage() string {
	switch t {
	case JobTypeTitleGeneration:
		return "title"
	case JobTypeOutlineGeneration:
		return "outline"
	case JobTypeBlogGeneration:
		return "blog"
	}
	return string(t)
}

// JobStatus is the state of a job record
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition can happen from this status
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobRecord is the single source of truth for one unit of pipeline work.
// Result and Error are mutually exclusive and both empty until the record
// reaches a terminal status.
type JobRecord struct {
	ID          string          `json:"id" badgerhold:"key"`
	Type        JobType         `json:"type" badgerhold:"index"`
	Status      JobStatus       `json:"status" badgerhold:"index"`
	SourceJobID string          `json:"source_job_id,omitempty" badgerhold:"index"` // Upstream record this one was derived from
	Payload     json.RawMessage `json:"payload"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`

	RetriesDisabled  bool      `json:"retries_disabled,omitempty"`   // Operator asked for no further retries
	LastAttemptError string    `json:"last_attempt_error,omitempty"` // Reason the most recent attempt failed while awaiting retry
	NextAttemptAt    time.Time `json:"next_attempt_at,omitempty"`    // Earliest time a released record may be retried

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`   // Start of the current or last attempt
	CompletedAt time.Time `json:"completed_at,omitempty"` // Set on completed or failed
}

// NewJobRecord builds a pending record with timestamps set to now
func NewJobRecord(id string, jobType JobType, payload json.RawMessage, sourceJobID string) *JobRecord {
	now := time.Now().UTC()
	return &JobRecord{
		ID:          id,
		Type:        jobType,
		Status:      JobStatusPending,
		SourceJobID: sourceJobID,
		Payload:     payload,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a deep copy so callers can never mutate store-held state
func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = append(json.RawMessage(nil), j.Payload...)
	c.Result = append(json.RawMessage(nil), j.Result...)
	return &c
}

// DecodePayload unmarshals the payload into v
func (j *JobRecord) DecodePayload(v interface{}) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has no payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload for job %s: %w", j.ID, err)
	}
	return nil
}

// DecodeResult unmarshals the result into v
func (j *JobRecord) DecodeResult(v interface{}) error {
	if j.Status != JobStatusCompleted || len(j.Result) == 0 {
		return fmt.Errorf("job %s has no result (status=%s)", j.ID, j.Status)
	}
	if err := json.Unmarshal(j.Result, v); err != nil {
		return fmt.Errorf("failed to decode result for job %s: %w", j.ID, err)
	}
	return nil
}
