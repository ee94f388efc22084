package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/inkwell/internal/common"
)

// JobHandler processes one delivered message. Returning an error leaves the
// message unacknowledged so it is redelivered after the visibility timeout.
type JobHandler func(ctx context.Context, msg *Message) error

// Source is the receiving side of a queue
type Source interface {
	Name() string
	Receive(ctx context.Context) (*Message, func() error, error)
}

// WorkerPool runs a bounded number of workers against one queue
type WorkerPool struct {
	source  Source
	handler JobHandler
	config  Config
	logger  arbor.ILogger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(source Source, handler JobHandler, config Config, logger arbor.ILogger) *WorkerPool {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = NewDefaultConfig().PollInterval
	}
	return &WorkerPool{
		source:  source,
		handler: handler,
		config:  config,
		logger:  logger,
	}
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has finished its current message
func (wp *WorkerPool) Run(ctx context.Context) error {
	wp.logger.Info().
		Str("queue", wp.source.Name()).
		Int("concurrency", wp.config.Concurrency).
		Msg("Starting worker pool")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < wp.config.Concurrency; i++ {
		workerID := i
		g.Go(func() error {
			wp.worker(gctx, workerID)
			return nil
		})
	}

	err := g.Wait()
	wp.logger.Info().Str("queue", wp.source.Name()).Msg("Worker pool stopped")
	return err
}

// worker is the main worker loop that processes messages
func (wp *WorkerPool) worker(ctx context.Context, workerID int) {
	// Spread worker starts evenly across the poll interval
	staggerDelay := (wp.config.PollInterval / time.Duration(wp.config.Concurrency)) * time.Duration(workerID)
	if staggerDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(staggerDelay):
		}
	}

	wp.logger.Debug().
		Str("queue", wp.source.Name()).
		Int("worker_id", workerID).
		Dur("stagger_delay", staggerDelay).
		Msg("Worker started")

	ticker := time.NewTicker(wp.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wp.logger.Debug().
				Str("queue", wp.source.Name()).
				Int("worker_id", workerID).
				Msg("Worker stopped")
			return

		case <-ticker.C:
			// Drain everything visible before waiting for the next tick
			for ctx.Err() == nil {
				err := wp.processMessage(ctx, workerID)
				if errors.Is(err, ErrNoMessage) {
					break
				}
				if err != nil {
					if ctx.Err() == nil {
						wp.logger.Warn().
							Err(err).
							Str("queue", wp.source.Name()).
							Int("worker_id", workerID).
							Msg("Error processing message")
					}
					break
				}
			}
		}
	}
}

// processMessage receives and processes a single message
func (wp *WorkerPool) processMessage(ctx context.Context, workerID int) error {
	msg, ack, err := wp.source.Receive(ctx)
	if err != nil {
		return err
	}

	wp.logger.Debug().
		Str("queue", wp.source.Name()).
		Str("job_id", msg.JobID).
		Int("worker_id", workerID).
		Msg("Processing message")

	startTime := time.Now()
	handlerErr := common.SafeCall(wp.logger, "queue:"+wp.source.Name(), func() error {
		return wp.handler(ctx, msg)
	})
	duration := time.Since(startTime)

	if handlerErr != nil {
		// Not acknowledged: the message reappears after the visibility timeout
		wp.logger.Error().
			Err(handlerErr).
			Str("queue", wp.source.Name()).
			Str("job_id", msg.JobID).
			Dur("duration", duration).
			Int("worker_id", workerID).
			Msg("Job handler failed, message left for redelivery")
		return handlerErr
	}

	if err := ack(); err != nil {
		wp.logger.Warn().
			Err(err).
			Str("queue", wp.source.Name()).
			Str("job_id", msg.JobID).
			Msg("Failed to delete message after handling")
		return err
	}

	wp.logger.Debug().
		Str("queue", wp.source.Name()).
		Str("job_id", msg.JobID).
		Dur("duration", duration).
		Int("worker_id", workerID).
		Msg("Message handled")
	return nil
}
