package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

// JobStore implements interfaces.JobStore on badgerhold.
// Every mutation is a read-modify-write inside one Badger transaction,
// serialised by mu so concurrent claims never race.
type JobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

var _ interfaces.JobStore = (*JobStore)(nil)

// NewJobStore creates a new JobStore instance
func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:     db,
		logger: logger,
	}
}

func (s *JobStore) Create(ctx context.Context, jobType models.JobType, payload json.RawMessage, sourceJobID string) (string, error) {
	id := common.NewJobID()
	record := models.NewJobRecord(id, jobType, payload, sourceJobID)

	// Store the value type; badgerhold derives the key prefix from the type name
	if err := s.db.Store().Insert(id, *record); err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("BadgerDB: Failed to insert job record")
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", id).
		Str("type", string(jobType)).
		Str("source_job_id", sourceJobID).
		Msg("Job record created")
	return id, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &record, nil
}

func (s *JobStore) TransitionToProcessing(ctx context.Context, id string) (*models.JobRecord, error) {
	return s.update(id, func(r *models.JobRecord, now time.Time) error {
		switch r.Status {
		case models.JobStatusProcessing:
			return fmt.Errorf("%w: %s", interfaces.ErrAlreadyProcessing, id)
		case models.JobStatusCompleted, models.JobStatusFailed:
			return fmt.Errorf("%w: %s is %s", interfaces.ErrJobTerminal, id, r.Status)
		}
		r.Status = models.JobStatusProcessing
		r.Attempts++
		r.StartedAt = now
		r.NextAttemptAt = time.Time{}
		return nil
	})
}

func (s *JobStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	_, err := s.update(id, func(r *models.JobRecord, now time.Time) error {
		if r.Status != models.JobStatusProcessing {
			return fmt.Errorf("%w: complete %s from %s", interfaces.ErrInvalidTransition, id, r.Status)
		}
		r.Status = models.JobStatusCompleted
		r.Result = result
		r.Error = ""
		r.LastAttemptError = ""
		r.CompletedAt = now
		return nil
	})
	return err
}

func (s *JobStore) Fail(ctx context.Context, id string, reason string) error {
	if reason == "" {
		reason = "unknown error"
	}
	_, err := s.update(id, func(r *models.JobRecord, now time.Time) error {
		allowed := r.Status == models.JobStatusProcessing ||
			(r.Status == models.JobStatusPending && r.RetriesDisabled)
		if !allowed {
			return fmt.Errorf("%w: fail %s from %s", interfaces.ErrInvalidTransition, id, r.Status)
		}
		r.Status = models.JobStatusFailed
		r.Error = reason
		r.Result = nil
		r.NextAttemptAt = time.Time{}
		r.CompletedAt = now
		return nil
	})
	return err
}

func (s *JobStore) Release(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) (*models.JobRecord, error) {
	return s.update(id, func(r *models.JobRecord, now time.Time) error {
		if r.Status != models.JobStatusProcessing {
			return fmt.Errorf("%w: release %s from %s", interfaces.ErrInvalidTransition, id, r.Status)
		}
		r.Status = models.JobStatusPending
		r.LastAttemptError = lastErr
		r.NextAttemptAt = nextAttemptAt
		return nil
	})
}

func (s *JobStore) DisableRetries(ctx context.Context, id string) (*models.JobRecord, error) {
	return s.update(id, func(r *models.JobRecord, now time.Time) error {
		r.RetriesDisabled = true
		return nil
	})
}

func (s *JobStore) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.JobRecord, error) {
	var records []models.JobRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}
	return sortedPointers(records), nil
}

func (s *JobStore) ListBySource(ctx context.Context, sourceJobID string) ([]*models.JobRecord, error) {
	var records []models.JobRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("SourceJobID").Eq(sourceJobID)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by source: %w", err)
	}
	return sortedPointers(records), nil
}

func (s *JobStore) RecoverStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	processing, err := s.ListByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return nil, err
	}

	var released []*models.JobRecord
	for _, candidate := range processing {
		if !candidate.StartedAt.Before(olderThan) {
			continue
		}
		startedAt := candidate.StartedAt
		record, err := s.update(candidate.ID, func(r *models.JobRecord, now time.Time) error {
			// Re-check inside the transaction: the attempt may have finished meanwhile
			if r.Status != models.JobStatusProcessing || !r.StartedAt.Equal(startedAt) {
				return errSkip
			}
			r.Status = models.JobStatusPending
			r.LastAttemptError = "attempt abandoned: worker stopped before finishing"
			r.NextAttemptAt = time.Time{}
			return nil
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			return released, err
		}

		s.logger.Warn().
			Str("job_id", record.ID).
			Str("type", string(record.Type)).
			Int("attempts", record.Attempts).
			Msg("Released stale processing job")
		released = append(released, record)
	}
	return released, nil
}

func (s *JobStore) Close() error {
	return nil
}

var errSkip = errors.New("skip update")

// update applies fn to the stored record inside a single transaction
func (s *JobStore) update(id string, fn func(r *models.JobRecord, now time.Time) error) (*models.JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *models.JobRecord
	err := s.db.Raw().Update(func(tx *badgerdb.Txn) error {
		var record models.JobRecord
		if err := s.db.Store().TxGet(tx, id, &record); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
			}
			return err
		}

		now := time.Now().UTC()
		if err := fn(&record, now); err != nil {
			return err
		}
		record.UpdatedAt = now

		if err := s.db.Store().TxUpdate(tx, id, record); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		updated = record.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func sortedPointers(records []models.JobRecord) []*models.JobRecord {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	out := make([]*models.JobRecord, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out
}
