// Package postgres provides a PostgreSQL implementation of the job record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS inkwell_jobs (
	id                 TEXT PRIMARY KEY,
	type               TEXT NOT NULL,
	status             TEXT NOT NULL,
	source_job_id      TEXT NOT NULL DEFAULT '',
	payload            JSONB NOT NULL,
	result             JSONB,
	error              TEXT NOT NULL DEFAULT '',
	attempts           INTEGER NOT NULL DEFAULT 0,
	retries_disabled   BOOLEAN NOT NULL DEFAULT FALSE,
	last_attempt_error TEXT NOT NULL DEFAULT '',
	next_attempt_at    TIMESTAMPTZ,
	started_at         TIMESTAMPTZ,
	completed_at       TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS inkwell_jobs_status_idx ON inkwell_jobs (status);
CREATE INDEX IF NOT EXISTS inkwell_jobs_source_idx ON inkwell_jobs (source_job_id);
`

const recordColumns = `id, type, status, source_job_id, payload, result, error, attempts,
	retries_disabled, last_attempt_error, next_attempt_at, started_at, completed_at,
	created_at, updated_at`

// JobStore implements interfaces.JobStore on a pgx pool. The claim gate is a
// conditional UPDATE, so concurrent claims from any number of processes are safe.
type JobStore struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

var _ interfaces.JobStore = (*JobStore)(nil)

// NewJobStore connects, verifies the connection and ensures the schema exists
func NewJobStore(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*JobStore, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure job schema: %w", err)
	}

	logger.Info().Int("max_conns", int(poolConfig.MaxConns)).Msg("Postgres job store initialized")

	return &JobStore{pool: pool, logger: logger}, nil
}

func (s *JobStore) Create(ctx context.Context, jobType models.JobType, payload json.RawMessage, sourceJobID string) (string, error) {
	id := common.NewJobID()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO inkwell_jobs (id, type, status, source_job_id, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, string(jobType), string(models.JobStatusPending), sourceJobID, []byte(payload),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.JobRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM inkwell_jobs WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return record, nil
}

func (s *JobStore) TransitionToProcessing(ctx context.Context, id string) (*models.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE inkwell_jobs
		 SET status = 'processing', attempts = attempts + 1, started_at = NOW(),
		     next_attempt_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+recordColumns,
		id,
	)
	record, err := scanRecord(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == models.JobStatusProcessing {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrAlreadyProcessing, id)
	}
	return nil, fmt.Errorf("%w: %s is %s", interfaces.ErrJobTerminal, id, current.Status)
}

func (s *JobStore) Complete(ctx context.Context, id string, result json.RawMessage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE inkwell_jobs
		 SET status = 'completed', result = $2, error = '', last_attempt_error = '',
		     completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'`,
		id, []byte(result),
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, "complete")
	}
	return nil
}

func (s *JobStore) Fail(ctx context.Context, id string, reason string) error {
	if reason == "" {
		reason = "unknown error"
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE inkwell_jobs
		 SET status = 'failed', error = $2, result = NULL, next_attempt_at = NULL,
		     completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND (status = 'processing' OR (status = 'pending' AND retries_disabled))`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, id, "fail")
	}
	return nil
}

func (s *JobStore) Release(ctx context.Context, id string, lastErr string, nextAttemptAt time.Time) (*models.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE inkwell_jobs
		 SET status = 'pending', last_attempt_error = $2, next_attempt_at = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'processing'
		 RETURNING `+recordColumns,
		id, lastErr, nullTime(nextAttemptAt),
	)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.transitionError(ctx, id, "release")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release job: %w", err)
	}
	return record, nil
}

func (s *JobStore) DisableRetries(ctx context.Context, id string) (*models.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE inkwell_jobs SET retries_disabled = TRUE, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+recordColumns,
		id,
	)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to disable retries: %w", err)
	}
	return record, nil
}

func (s *JobStore) ListByStatus(ctx context.Context, status models.JobStatus) ([]*models.JobRecord, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM inkwell_jobs WHERE status = $1 ORDER BY created_at`, string(status))
}

func (s *JobStore) ListBySource(ctx context.Context, sourceJobID string) ([]*models.JobRecord, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM inkwell_jobs WHERE source_job_id = $1 ORDER BY created_at`, sourceJobID)
}

func (s *JobStore) RecoverStale(ctx context.Context, olderThan time.Time) ([]*models.JobRecord, error) {
	released, err := s.list(ctx,
		`UPDATE inkwell_jobs
		 SET status = 'pending', next_attempt_at = NULL, updated_at = NOW(),
		     last_attempt_error = 'attempt abandoned: worker stopped before finishing'
		 WHERE status = 'processing' AND started_at < $1
		 RETURNING `+recordColumns,
		olderThan,
	)
	if err != nil {
		return nil, err
	}
	for _, record := range released {
		s.logger.Warn().
			Str("job_id", record.ID).
			Str("type", string(record.Type)).
			Int("attempts", record.Attempts).
			Msg("Released stale processing job")
	}
	return released, nil
}

func (s *JobStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *JobStore) list(ctx context.Context, query string, args ...any) ([]*models.JobRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var records []*models.JobRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return records, nil
}

// transitionError explains why a conditional update matched no rows
func (s *JobStore) transitionError(ctx context.Context, id, action string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s %s from %s", interfaces.ErrInvalidTransition, action, id, current.Status)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.JobRecord, error) {
	var (
		record                                models.JobRecord
		jobType, status                       string
		payload, result                       []byte
		nextAttemptAt, startedAt, completedAt *time.Time
	)
	err := row.Scan(
		&record.ID, &jobType, &status, &record.SourceJobID, &payload, &result,
		&record.Error, &record.Attempts, &record.RetriesDisabled, &record.LastAttemptError,
		&nextAttemptAt, &startedAt, &completedAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Type = models.JobType(jobType)
	record.Status = models.JobStatus(status)
	record.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		record.Result = json.RawMessage(result)
	}
	record.NextAttemptAt = derefTime(nextAttemptAt)
	record.StartedAt = derefTime(startedAt)
	record.CompletedAt = derefTime(completedAt)
	return &record, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
