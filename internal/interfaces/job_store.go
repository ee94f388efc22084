package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ternarybob/inkwell/internal/models"
)

var (
	// ErrJobNotFound is returned when no record exists for an id
	ErrJobNotFound = errors.New("job not found")

	// ErrAlreadyProcessing is returned by TransitionToProcessing when another
	// attempt currently holds the record. Callers treat it as a duplicate delivery.
	ErrAlreadyProcessing = errors.New("job already processing")

	// ErrJobTerminal is returned when a claim targets a completed or failed record
	ErrJobTerminal = errors.New("job already in terminal state")

	// ErrInvalidTransition is returned for any other transition the state machine forbids
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// JobStore persists job records and enforces the job state machine.
// All status mutation goes through these methods; implementations own
// their locking and transactional discipline.
type JobStore interface {
	// Create inserts a pending record and returns its new id
	Create(ctx context.Context, jobType models.JobType, payload json.RawMessage, sourceJobID string) (string, error)

	// Get returns a snapshot of the record or ErrJobNotFound
	Get(ctx context.Context, id string) (*models.JobRecord, error)

	// TransitionToProcessing is the claim gate: pending -> processing,
	// incrementing Attempts. Exactly one concurrent caller succeeds.
	TransitionToProcessing(ctx context.Context, id string) (*models.JobRecord, error)

	// Complete moves processing -> completed and stores the result
	Complete(ctx context.Context, id string, result json.RawMessage) error

	// Fail moves processing -> failed with a reason. A pending record whose
	// retries were disabled may also be failed directly.
	Fail(ctx context.Context, id string, reason string) error

	// Release moves processing -> pending so a later attempt can claim it
	Release(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) (*models.JobRecord, error)

	// DisableRetries marks the record so no further attempts are scheduled
	DisableRetries(ctx context.Context, id string) (*models.JobRecord, error)

	// ListByStatus returns records with the given status, oldest first
	ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.JobRecord, error)

	// ListBySource returns records derived from sourceJobID, oldest first
	ListBySource(ctx context.Context, sourceJobID string) ([]*models.JobRecord, error)

	// RecoverStale releases processing records whose attempt started before
	// olderThan and returns the released records
	RecoverStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error)

	Close() error
}
