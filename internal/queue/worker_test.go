package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestWorkerPool_ProcessesAllMessages(t *testing.T) {
	q := newTestQueue(t, time.Minute, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"job_1", "job_2", "job_3", "job_4"} {
		require.NoError(t, q.Enqueue(ctx, testMessage(id)))
	}

	var mu sync.Mutex
	seen := map[string]int{}
	handler := func(ctx context.Context, msg *Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen[msg.JobID]++
		return nil
	}

	pool := NewWorkerPool(q, handler, Config{PollInterval: 10 * time.Millisecond, Concurrency: 3}, arbor.NewLogger())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool {
		n, err := q.Len(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"job_1": 1, "job_2": 1, "job_3": 1, "job_4": 1}, seen)
}

func TestWorkerPool_HandlerErrorLeavesMessage(t *testing.T) {
	q := newTestQueue(t, time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, testMessage("job_1")))

	var calls int32
	handler := func(ctx context.Context, msg *Message) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("store unavailable")
	}

	pool := NewWorkerPool(q, handler, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, arbor.NewLogger())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed delivery stays queued for redelivery")
}

func TestWorkerPool_RecoversHandlerPanic(t *testing.T) {
	q := newTestQueue(t, time.Hour, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Enqueue(ctx, testMessage("job_1")))
	require.NoError(t, q.Enqueue(ctx, testMessage("job_2")))

	var handled int32
	handler := func(ctx context.Context, msg *Message) error {
		if msg.JobID == "job_1" {
			panic("boom")
		}
		atomic.AddInt32(&handled, 1)
		return nil
	}

	pool := NewWorkerPool(q, handler, Config{PollInterval: 10 * time.Millisecond, Concurrency: 1}, arbor.NewLogger())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
