package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/interfaces"
)

func jobEvent(eventType interfaces.EventType) interfaces.Event {
	return interfaces.Event{
		Type: eventType,
		Payload: map[string]interface{}{
			"job_id":   "job_1",
			"job_type": "title_generation",
			"status":   "processing",
			"attempt":  1,
		},
	}
}

func TestService_SubscribeRejectsNil(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	assert.Error(t, svc.Subscribe(interfaces.EventJobClaimed, nil))
}

func TestService_PublishSyncCallsEveryHandler(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	var calls int32
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}
	require.NoError(t, svc.Subscribe(interfaces.EventJobCompleted, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobCompleted, handler))
	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, handler))

	require.NoError(t, svc.PublishSync(context.Background(), jobEvent(interfaces.EventJobCompleted)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestService_PublishSyncJoinsErrors(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	handlerErr := errors.New("sink offline")
	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		return handlerErr
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventJobFailed, func(ctx context.Context, event interfaces.Event) error {
		panic("bad handler")
	}))

	err := svc.PublishSync(context.Background(), jobEvent(interfaces.EventJobFailed))
	require.Error(t, err)
	assert.ErrorIs(t, err, handlerErr)
}

func TestService_PublishIsAsync(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	release := make(chan struct{})
	var done int32
	require.NoError(t, svc.Subscribe(interfaces.EventJobClaimed, func(ctx context.Context, event interfaces.Event) error {
		<-release
		atomic.StoreInt32(&done, 1)
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), jobEvent(interfaces.EventJobClaimed)))
	assert.Equal(t, int32(0), atomic.LoadInt32(&done), "publish must not wait for handlers")

	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 1 }, time.Second, 5*time.Millisecond)
}

func TestService_CloseDropsSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls int32
	require.NoError(t, svc.Subscribe(interfaces.EventJobDuplicate, func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))
	require.NoError(t, svc.Close())

	require.NoError(t, svc.PublishSync(context.Background(), jobEvent(interfaces.EventJobDuplicate)))
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	defer svc.Close()

	require.NoError(t, SubscribeLoggerToAllEvents(svc, arbor.NewLogger()))

	for _, eventType := range interfaces.AllEventTypes {
		assert.NoError(t, svc.PublishSync(context.Background(), jobEvent(eventType)))
	}
}
