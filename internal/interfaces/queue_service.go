package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/inkwell/internal/models"
)

// StageQueue is the producing side of one stage's queue. Delivery is
// at-least-once; the job store claim gate makes duplicates harmless.
type StageQueue interface {
	Name() string
	Enqueue(ctx context.Context, msg models.QueueMessage) error
	EnqueueWithDelay(ctx context.Context, msg models.QueueMessage, delay time.Duration) error
	Len(ctx context.Context) (int, error)
}
