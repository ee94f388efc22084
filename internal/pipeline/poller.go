package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

var (
	// ErrJobFailed is returned by Poller.Wait when the job ends in failed
	ErrJobFailed = errors.New("job failed")

	// ErrPollTimeout is returned when the job is still running at the deadline
	ErrPollTimeout = errors.New("timed out waiting for job")
)

// Poller waits for a job to reach a terminal state by polling the store
type Poller struct {
	store    interfaces.JobStore
	interval time.Duration
	timeout  time.Duration
}

// NewPoller creates a poller. A non-positive timeout waits until ctx ends.
func NewPoller(store interfaces.JobStore, interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{store: store, interval: interval, timeout: timeout}
}

// Wait polls until the job completes or fails. A failed job returns the
// record together with ErrJobFailed wrapping the record's error.
func (p *Poller) Wait(ctx context.Context, id string) (*models.JobRecord, error) {
	return p.WaitFunc(ctx, id, nil)
}

// WaitFunc is Wait with a callback invoked whenever the status or attempt count changes
func (p *Poller) WaitFunc(ctx context.Context, id string, onChange func(*models.JobRecord)) (*models.JobRecord, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var lastStatus models.JobStatus
	lastAttempts := -1

	for {
		record, err := p.store.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, p.contextError(ctx, id, nil)
			}
			return nil, err
		}

		if onChange != nil && (record.Status != lastStatus || record.Attempts != lastAttempts) {
			onChange(record)
		}
		lastStatus, lastAttempts = record.Status, record.Attempts

		switch record.Status {
		case models.JobStatusCompleted:
			return record, nil
		case models.JobStatusFailed:
			return record, fmt.Errorf("%w: %s", ErrJobFailed, record.Error)
		}

		select {
		case <-ctx.Done():
			return record, p.contextError(ctx, id, record)
		case <-ticker.C:
		}
	}
}

func (p *Poller) contextError(ctx context.Context, id string, record *models.JobRecord) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		status := "unknown"
		if record != nil {
			status = string(record.Status)
		}
		return fmt.Errorf("%w: %s still %s after %s", ErrPollTimeout, id, status, p.timeout)
	}
	return ctx.Err()
}
