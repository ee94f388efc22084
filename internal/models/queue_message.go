package models

import (
	"encoding/json"
	"errors"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = errors.New("no messages in queue")

// QueueMessage is the work item stored in a stage queue.
// The payload travels with the message so a worker can call the AI
// client without re-reading the job record.
type QueueMessage struct {
	JobID   string          `json:"job_id"`  // References the job record id
	Type    JobType         `json:"type"`    // Stage routing
	Payload json.RawMessage `json:"payload"` // Copy of the record payload
}
