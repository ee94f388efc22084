package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobClaimed        EventType = "job_claimed"
	EventJobCompleted      EventType = "job_completed"
	EventJobRetryScheduled EventType = "job_retry_scheduled"
	EventJobFailed         EventType = "job_failed"
	EventJobDuplicate      EventType = "job_duplicate"
)

// AllEventTypes lists every job lifecycle event
var AllEventTypes = []EventType{
	EventJobClaimed,
	EventJobCompleted,
	EventJobRetryScheduled,
	EventJobFailed,
	EventJobDuplicate,
}

// Event represents a system event. Job lifecycle events carry a
// map payload with job_id, job_type and status, plus attempt, error and
// delay where relevant.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
