package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/services/events"
)

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	multi := MultiObserver{a, NewLogObserver(arbor.NewLogger()), b}

	rec := models.NewJobRecord("job_1", models.JobTypeTitleGeneration, nil, "")
	ctx := context.Background()

	multi.OnClaimed(ctx, rec)
	multi.OnRetryScheduled(ctx, rec, errors.New("overloaded"), time.Second)
	multi.OnFailed(ctx, rec, "gave up")
	multi.OnCompleted(ctx, rec)
	multi.OnDuplicate(ctx, "job_2", models.JobTypeBlogGeneration, interfaces.ErrAlreadyProcessing)

	want := []string{"claimed:job_1", "retry:job_1", "failed:job_1", "completed:job_1", "duplicate:job_2"}
	assert.Equal(t, want, a.Events())
	assert.Equal(t, want, b.Events())
}

func TestEventObserver_PublishesLifecycleEvents(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	defer bus.Close()

	var mu sync.Mutex
	received := map[interfaces.EventType]map[string]interface{}{}
	for _, eventType := range interfaces.AllEventTypes {
		require.NoError(t, bus.Subscribe(eventType, func(ctx context.Context, event interfaces.Event) error {
			mu.Lock()
			defer mu.Unlock()
			received[event.Type] = event.Payload.(map[string]interface{})
			return nil
		}))
	}

	observer := NewEventObserver(bus, logger)
	rec := models.NewJobRecord("job_1", models.JobTypeOutlineGeneration, nil, "job_0")
	rec.Attempts = 2
	ctx := context.Background()

	observer.OnClaimed(ctx, rec)
	observer.OnCompleted(ctx, rec)
	observer.OnRetryScheduled(ctx, rec, errors.New("rate limited"), 4*time.Second)
	observer.OnFailed(ctx, rec, "outline failed after 2 attempt(s)")
	observer.OnDuplicate(ctx, "job_1", models.JobTypeOutlineGeneration, interfaces.ErrJobTerminal)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == len(interfaces.AllEventTypes)
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "job_1", received[interfaces.EventJobClaimed]["job_id"])
	assert.Equal(t, "job_0", received[interfaces.EventJobClaimed]["source_job_id"])
	assert.Equal(t, 2, received[interfaces.EventJobCompleted]["attempt"])
	assert.Equal(t, "4s", received[interfaces.EventJobRetryScheduled]["delay"])
	assert.Equal(t, "rate limited", received[interfaces.EventJobRetryScheduled]["error"])
	assert.Equal(t, "outline failed after 2 attempt(s)", received[interfaces.EventJobFailed]["error"])
	assert.Equal(t, "outline_generation", received[interfaces.EventJobDuplicate]["job_type"])
}
