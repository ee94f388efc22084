package pipeline

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

// Observer receives stage worker lifecycle notifications. Implementations
// must not block; they run on the worker goroutine.
type Observer interface {
	OnClaimed(ctx context.Context, record *models.JobRecord)
	OnCompleted(ctx context.Context, record *models.JobRecord)
	OnRetryScheduled(ctx context.Context, record *models.JobRecord, cause error, delay time.Duration)
	OnFailed(ctx context.Context, record *models.JobRecord, reason string)
	OnDuplicate(ctx context.Context, jobID string, jobType models.JobType, cause error)
}

// LogObserver writes lifecycle notifications to the logger
type LogObserver struct {
	logger arbor.ILogger
}

// NewLogObserver creates a new log observer
func NewLogObserver(logger arbor.ILogger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnClaimed(ctx context.Context, record *models.JobRecord) {
	o.logger.Debug().
		Str("job_id", record.ID).
		Str("type", string(record.Type)).
		Int("attempt", record.Attempts).
		Msg("Job claimed")
}

func (o *LogObserver) OnCompleted(ctx context.Context, record *models.JobRecord) {
	o.logger.Info().
		Str("job_id", record.ID).
		Str("type", string(record.Type)).
		Int("attempts", record.Attempts).
		Msg("Job completed")
}

func (o *LogObserver) OnRetryScheduled(ctx context.Context, record *models.JobRecord, cause error, delay time.Duration) {
	o.logger.Warn().
		Err(cause).
		Str("job_id", record.ID).
		Str("type", string(record.Type)).
		Int("attempt", record.Attempts).
		Dur("delay", delay).
		Msg("Job attempt failed, retry scheduled")
}

func (o *LogObserver) OnFailed(ctx context.Context, record *models.JobRecord, reason string) {
	o.logger.Error().
		Str("job_id", record.ID).
		Str("type", string(record.Type)).
		Int("attempts", record.Attempts).
		Str("reason", reason).
		Msg("Job failed")
}

func (o *LogObserver) OnDuplicate(ctx context.Context, jobID string, jobType models.JobType, cause error) {
	o.logger.Debug().
		Err(cause).
		Str("job_id", jobID).
		Str("type", string(jobType)).
		Msg("Duplicate delivery dropped")
}

// EventObserver publishes lifecycle notifications on the event bus
type EventObserver struct {
	events interfaces.EventService
	logger arbor.ILogger
}

// NewEventObserver creates an observer backed by an EventService
func NewEventObserver(events interfaces.EventService, logger arbor.ILogger) *EventObserver {
	return &EventObserver{events: events, logger: logger}
}

func (o *EventObserver) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if err := o.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		o.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish job event")
	}
}

func recordPayload(record *models.JobRecord) map[string]interface{} {
	return map[string]interface{}{
		"job_id":        record.ID,
		"job_type":      string(record.Type),
		"status":        string(record.Status),
		"attempt":       record.Attempts,
		"source_job_id": record.SourceJobID,
	}
}

func (o *EventObserver) OnClaimed(ctx context.Context, record *models.JobRecord) {
	o.publish(ctx, interfaces.EventJobClaimed, recordPayload(record))
}

func (o *EventObserver) OnCompleted(ctx context.Context, record *models.JobRecord) {
	o.publish(ctx, interfaces.EventJobCompleted, recordPayload(record))
}

func (o *EventObserver) OnRetryScheduled(ctx context.Context, record *models.JobRecord, cause error, delay time.Duration) {
	payload := recordPayload(record)
	payload["error"] = cause.Error()
	payload["delay"] = delay.String()
	o.publish(ctx, interfaces.EventJobRetryScheduled, payload)
}

func (o *EventObserver) OnFailed(ctx context.Context, record *models.JobRecord, reason string) {
	payload := recordPayload(record)
	payload["error"] = reason
	o.publish(ctx, interfaces.EventJobFailed, payload)
}

func (o *EventObserver) OnDuplicate(ctx context.Context, jobID string, jobType models.JobType, cause error) {
	o.publish(ctx, interfaces.EventJobDuplicate, map[string]interface{}{
		"job_id":   jobID,
		"job_type": string(jobType),
		"error":    cause.Error(),
	})
}

// MultiObserver fans notifications out to several observers in order
type MultiObserver []Observer

func (m MultiObserver) OnClaimed(ctx context.Context, record *models.JobRecord) {
	for _, o := range m {
		o.OnClaimed(ctx, record)
	}
}

func (m MultiObserver) OnCompleted(ctx context.Context, record *models.JobRecord) {
	for _, o := range m {
		o.OnCompleted(ctx, record)
	}
}

func (m MultiObserver) OnRetryScheduled(ctx context.Context, record *models.JobRecord, cause error, delay time.Duration) {
	for _, o := range m {
		o.OnRetryScheduled(ctx, record, cause, delay)
	}
}

func (m MultiObserver) OnFailed(ctx context.Context, record *models.JobRecord, reason string) {
	for _, o := range m {
		o.OnFailed(ctx, record, reason)
	}
}

func (m MultiObserver) OnDuplicate(ctx context.Context, jobID string, jobType models.JobType, cause error) {
	for _, o := range m {
		o.OnDuplicate(ctx, jobID, jobType, cause)
	}
}

var (
	_ Observer = (*LogObserver)(nil)
	_ Observer = (*EventObserver)(nil)
	_ Observer = MultiObserver(nil)
)
