// Package pipeline chains the title, outline and blog stages: stage workers
// that claim and run one attempt per delivery, and the coordinator that
// submits, fans out and recovers jobs.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

var (
	// ErrInvalidPayload is returned when a submission fails validation
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrNotReady is returned when a fan-out targets a job that has not completed
	ErrNotReady = errors.New("job not ready")

	// ErrUnknownTitle is returned when an approved title is not in the title job result
	ErrUnknownTitle = errors.New("title not produced by job")

	// ErrUnparseable marks an AI response the parser could not turn into a result.
	// It is always retried while attempts remain.
	ErrUnparseable = errors.New("unparseable AI response")

	errWrongType = errors.New("wrong job type")
)

// createAndEnqueue persists a pending record and enqueues its message
func createAndEnqueue(ctx context.Context, store interfaces.JobStore, queue interfaces.StageQueue, jobType models.JobType, payload interface{}, sourceJobID string) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", jobType.Stage(), err)
	}

	id, err := store.Create(ctx, jobType, data, sourceJobID)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", jobType.Stage(), err)
	}

	if err := queue.Enqueue(ctx, models.QueueMessage{JobID: id, Type: jobType, Payload: data}); err != nil {
		// The record stays pending; the startup requeue picks it up
		return id, fmt.Errorf("failed to enqueue %s job %s: %w", jobType.Stage(), id, err)
	}
	return id, nil
}

// requeue enqueues an existing pending record, honouring its retry time
func requeue(ctx context.Context, queue interfaces.StageQueue, record *models.JobRecord) error {
	delay := time.Until(record.NextAttemptAt)
	if record.NextAttemptAt.IsZero() || delay < 0 {
		delay = 0
	}
	return queue.EnqueueWithDelay(ctx, models.QueueMessage{
		JobID:   record.ID,
		Type:    record.Type,
		Payload: record.Payload,
	}, delay)
}

// blogChildOf returns the id of the blog job created for an outline job, or "" if there is none
func blogChildOf(ctx context.Context, store interfaces.JobStore, outlineJobID string) (string, error) {
	children, err := store.ListBySource(ctx, outlineJobID)
	if err != nil {
		return "", err
	}
	for _, child := range children {
		if child.Type == models.JobTypeBlogGeneration {
			return child.ID, nil
		}
	}
	return "", nil
}

// blogPayloadFor builds the blog stage input from a completed outline record
func blogPayloadFor(record *models.JobRecord, outline models.Outline) (models.BlogPayload, error) {
	var in models.OutlinePayload
	if err := record.DecodePayload(&in); err != nil {
		return models.BlogPayload{}, err
	}
	if outline.Title == "" {
		outline.Title = in.Title
	}
	return models.BlogPayload{
		Title:       in.Title,
		Keywords:    in.Keywords,
		Tone:        in.Tone,
		Outline:     outline,
		SourceJobID: record.ID,
	}, nil
}
