package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/parser"
	"github.com/ternarybob/inkwell/internal/queue"
	"github.com/ternarybob/inkwell/internal/services/render"
)

const maxErrorLength = 500

// StageWorkerConfig wires one stage worker
type StageWorkerConfig struct {
	JobType   models.JobType
	Store     interfaces.JobStore
	Generator interfaces.ContentGenerator
	Queue     interfaces.StageQueue // This stage's queue, used for delayed retries
	Next      interfaces.StageQueue // Blog queue for the outline stage; nil disables auto-advance
	Renderer  *render.Service       // Blog stage only
	Policy    RetryPolicy
	Timeout   time.Duration // Per AI call
	Observer  Observer

	// IsTransient classifies AI client errors. Unparseable responses and
	// call timeouts are always transient.
	IsTransient func(error) bool

	// RetryAfter returns the delay a provider asked for in an error, or 0.
	// A retry waits at least that long.
	RetryAfter func(error) time.Duration

	Logger arbor.ILogger
}

// StageWorker runs one attempt per delivered message: claim, call the AI
// client, parse, then complete, schedule a retry, or fail.
type StageWorker struct {
	StageWorkerConfig
}

// NewStageWorker creates a stage worker
func NewStageWorker(config StageWorkerConfig) (*StageWorker, error) {
	if config.Store == nil || config.Generator == nil || config.Queue == nil {
		return nil, fmt.Errorf("stage worker %s requires a store, generator and queue", config.JobType)
	}
	if config.JobType == models.JobTypeBlogGeneration && config.Renderer == nil {
		return nil, fmt.Errorf("blog stage worker requires a renderer")
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Minute
	}
	if config.Observer == nil {
		config.Observer = MultiObserver(nil)
	}
	if config.IsTransient == nil {
		config.IsTransient = func(error) bool { return true }
	}
	if config.Policy.MaxAttempts < 1 {
		config.Policy.MaxAttempts = 1
	}
	return &StageWorker{StageWorkerConfig: config}, nil
}

// Handle processes one delivery. A nil return acknowledges the message.
// Errors are only returned when the store or queue could not record the
// outcome, so the message is redelivered.
func (w *StageWorker) Handle(ctx context.Context, msg *queue.Message) error {
	record, err := w.Store.TransitionToProcessing(ctx, msg.JobID)
	switch {
	case errors.Is(err, interfaces.ErrAlreadyProcessing), errors.Is(err, interfaces.ErrJobTerminal):
		w.Observer.OnDuplicate(ctx, msg.JobID, w.JobType, err)
		return nil
	case errors.Is(err, interfaces.ErrJobNotFound):
		w.Logger.Warn().Str("job_id", msg.JobID).Msg("Message references unknown job, dropping")
		return nil
	case err != nil:
		return fmt.Errorf("failed to claim job %s: %w", msg.JobID, err)
	}

	w.Observer.OnClaimed(ctx, record)

	// Outcomes are recorded even when shutdown cancels ctx
	storeCtx := context.WithoutCancel(ctx)

	if record.Attempts > w.Policy.MaxAttempts {
		// Only reachable after stale recovery released an exhausted attempt
		return w.fail(storeCtx, record, fmt.Errorf("attempt limit of %d reached", w.Policy.MaxAttempts))
	}

	payload := msg.Payload
	if len(payload) == 0 {
		payload = record.Payload
	}

	callCtx, cancel := context.WithTimeout(ctx, w.Timeout)
	result, outline, runErr := w.run(callCtx, payload)
	cancel()

	if runErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the attempt: hand the record back without consuming a retry delay
		if _, err := w.Store.Release(storeCtx, record.ID, "attempt interrupted by shutdown", time.Time{}); err != nil {
			w.Logger.Warn().Err(err).Str("job_id", record.ID).Msg("Failed to release interrupted job")
		}
		return ctx.Err()
	}

	if runErr != nil {
		return w.retryOrFail(storeCtx, msg, record, runErr)
	}

	// The blog job exists before the outline reads as completed, so anyone
	// that sees the completed outline also sees its blog child
	if outline != nil && w.Next != nil {
		if _, err := w.advance(storeCtx, record, *outline); err != nil {
			w.Logger.Error().Err(err).Str("job_id", record.ID).Msg("Failed to advance outline to blog generation")
		}
	}

	if err := w.Store.Complete(storeCtx, record.ID, result); err != nil {
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			// The stale sweep released the record while this attempt ran
			w.Logger.Warn().Err(err).Str("job_id", record.ID).Msg("Result discarded, job no longer held by this attempt")
			return nil
		}
		return fmt.Errorf("failed to complete job %s: %w", record.ID, err)
	}

	record.Status = models.JobStatusCompleted
	record.Result = result
	w.Observer.OnCompleted(ctx, record)
	return nil
}

// run performs the AI call and parse for this stage. The outline is
// returned separately so the outline stage can advance without re-decoding.
func (w *StageWorker) run(ctx context.Context, payload json.RawMessage) (json.RawMessage, *models.Outline, error) {
	switch w.JobType {
	case models.JobTypeTitleGeneration:
		var in models.TitlePayload
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		text, err := w.Generator.GenerateTitles(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		titles := parser.ParseTitles(&text)
		if len(titles) == 0 {
			return nil, nil, fmt.Errorf("%w: no titles found", ErrUnparseable)
		}
		if in.Count > 0 && len(titles) > in.Count {
			titles = titles[:in.Count]
		}
		data, err := json.Marshal(models.TitleResult{Titles: titles})
		return data, nil, err

	case models.JobTypeOutlineGeneration:
		var in models.OutlinePayload
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		text, err := w.Generator.GenerateOutline(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		outline, ok := parser.ParseOutline(&text).Value()
		if !ok {
			return nil, nil, fmt.Errorf("%w: no outline object found", ErrUnparseable)
		}
		if outline.Title == "" {
			outline.Title = in.Title
		}
		data, err := json.Marshal(outline)
		return data, &outline, err

	case models.JobTypeBlogGeneration:
		var in models.BlogPayload
		if err := json.Unmarshal(payload, &in); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		text, err := w.Generator.GenerateBlog(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		blog, ok := parser.ParseBlog(&text).Value()
		if !ok {
			return nil, nil, fmt.Errorf("%w: no blog object found", ErrUnparseable)
		}
		if blog.Title == "" {
			blog.Title = in.Title
		}
		if err := w.Renderer.Finalize(&blog); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		data, err := json.Marshal(blog)
		return data, nil, err
	}

	return nil, nil, fmt.Errorf("%w: %s", errWrongType, w.JobType)
}

func (w *StageWorker) transient(err error) bool {
	if errors.Is(err, ErrInvalidPayload) || errors.Is(err, errWrongType) {
		return false
	}
	if errors.Is(err, ErrUnparseable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return w.IsTransient(err)
}

func (w *StageWorker) retryOrFail(ctx context.Context, msg *queue.Message, record *models.JobRecord, cause error) error {
	if !w.transient(cause) || record.RetriesDisabled || !w.Policy.ShouldRetry(record.Attempts) {
		return w.fail(ctx, record, cause)
	}

	delay := w.Policy.Delay(record.Attempts)
	if w.RetryAfter != nil {
		if hint := w.RetryAfter(cause); hint > delay {
			delay = hint
		}
	}
	released, err := w.Store.Release(ctx, record.ID, truncate(cause.Error()), time.Now().Add(delay))
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("failed to release job %s: %w", record.ID, err)
	}

	if released.RetriesDisabled {
		// Stop-retries arrived while the attempt was running
		return w.fail(ctx, released, cause)
	}

	retry := *msg
	if len(retry.Payload) == 0 {
		retry.Payload = record.Payload
	}
	if err := w.Queue.EnqueueWithDelay(ctx, retry, delay); err != nil {
		// Left unacknowledged, the current message is redelivered and claims the pending record
		return fmt.Errorf("failed to schedule retry for job %s: %w", record.ID, err)
	}

	w.Observer.OnRetryScheduled(ctx, released, cause, delay)
	return nil
}

func (w *StageWorker) fail(ctx context.Context, record *models.JobRecord, cause error) error {
	reason := truncate(fmt.Sprintf("%s failed after %d attempt(s): %v", w.JobType.Stage(), record.Attempts, cause))

	if err := w.Store.Fail(ctx, record.ID, reason); err != nil {
		if errors.Is(err, interfaces.ErrInvalidTransition) {
			return nil
		}
		return fmt.Errorf("failed to mark job %s failed: %w", record.ID, err)
	}

	record.Status = models.JobStatusFailed
	record.Error = reason
	w.Observer.OnFailed(ctx, record, reason)
	return nil
}

// advance creates and enqueues the blog job for an outline. A blog job left
// by an earlier attempt of the same outline is reused.
func (w *StageWorker) advance(ctx context.Context, record *models.JobRecord, outline models.Outline) (string, error) {
	existing, err := blogChildOf(ctx, w.Store, record.ID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	payload, err := blogPayloadFor(record, outline)
	if err != nil {
		return "", err
	}
	id, err := createAndEnqueue(ctx, w.Store, w.Next, models.JobTypeBlogGeneration, payload, record.ID)
	if err != nil {
		return id, err
	}

	w.Logger.Debug().
		Str("outline_job_id", record.ID).
		Str("blog_job_id", id).
		Msg("Blog generation enqueued")
	return id, nil
}

func truncate(s string) string {
	if len(s) <= maxErrorLength {
		return s
	}
	return s[:maxErrorLength] + "..."
}
