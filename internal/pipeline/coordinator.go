package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
)

// Runner is a long-running component started with the coordinator, such as a worker pool
type Runner interface {
	Run(ctx context.Context) error
}

// CoordinatorConfig wires the coordinator
type CoordinatorConfig struct {
	Store  interfaces.JobStore
	Queues map[models.JobType]interfaces.StageQueue
	Pools  []Runner

	StaleAfter         time.Duration // Processing records older than this are released
	StaleSweepSchedule string        // Cron schedule; empty runs the sweep at startup only

	// MaxAttempts is the attempt ceiling per stage. Stale records that already
	// used their last attempt are failed instead of released.
	MaxAttempts map[models.JobType]int

	// Events receives job_failed for failures the coordinator records itself.
	// Optional.
	Events interfaces.EventService

	Logger arbor.ILogger
}

// Coordinator is the public face of the pipeline: submission, status,
// title fan-out, operator controls and the worker lifecycle.
type Coordinator struct {
	store       interfaces.JobStore
	queues      map[models.JobType]interfaces.StageQueue
	pools       []Runner
	staleAfter  time.Duration
	schedule    string
	maxAttempts map[models.JobType]int
	events      interfaces.EventService
	validate    *validator.Validate
	logger      arbor.ILogger

	advanceMu sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	cron   *cron.Cron
}

// NewCoordinator creates a new coordinator
func NewCoordinator(config CoordinatorConfig) (*Coordinator, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("coordinator requires a job store")
	}
	for _, jobType := range models.AllJobTypes {
		if config.Queues[jobType] == nil {
			return nil, fmt.Errorf("coordinator requires a %s queue", jobType.Stage())
		}
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = 15 * time.Minute
	}

	return &Coordinator{
		store:       config.Store,
		queues:      config.Queues,
		pools:       config.Pools,
		staleAfter:  config.StaleAfter,
		schedule:    config.StaleSweepSchedule,
		maxAttempts: config.MaxAttempts,
		events:      config.Events,
		validate:    validator.New(),
		logger:      config.Logger,
	}, nil
}

// Submit validates a payload, creates a pending record and enqueues it.
// The payload may be a typed payload struct or raw JSON.
func (c *Coordinator) Submit(ctx context.Context, jobType models.JobType, payload interface{}) (string, error) {
	typed, err := c.decodePayload(jobType, payload)
	if err != nil {
		return "", err
	}

	id, err := createAndEnqueue(ctx, c.store, c.queues[jobType], jobType, typed, sourceOf(typed))
	if err != nil {
		return id, err
	}

	c.logger.Info().
		Str("job_id", id).
		Str("type", string(jobType)).
		Msg("Job submitted")
	return id, nil
}

// decodePayload normalizes payload into the typed struct for jobType and validates it
func (c *Coordinator) decodePayload(jobType models.JobType, payload interface{}) (interface{}, error) {
	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	var typed interface{}
	switch jobType {
	case models.JobTypeTitleGeneration:
		typed = &models.TitlePayload{}
	case models.JobTypeOutlineGeneration:
		typed = &models.OutlinePayload{}
	case models.JobTypeBlogGeneration:
		typed = &models.BlogPayload{}
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidPayload, jobType)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(typed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := c.validate.Struct(typed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if blog, ok := typed.(*models.BlogPayload); ok && len(blog.Outline.Sections) == 0 {
		return nil, fmt.Errorf("%w: outline has no sections", ErrInvalidPayload)
	}
	return typed, nil
}

func sourceOf(payload interface{}) string {
	switch p := payload.(type) {
	case *models.OutlinePayload:
		return p.SourceJobID
	case *models.BlogPayload:
		return p.SourceJobID
	}
	return ""
}

// Status returns a snapshot of a job record
func (c *Coordinator) Status(ctx context.Context, id string) (*models.JobRecord, error) {
	return c.store.Get(ctx, id)
}

// ApproveTitles creates one outline job per selected title of a completed
// title job. Titles must appear in the job's result. Titles approved earlier
// are skipped, so approving the same list twice creates nothing new.
// Returns the ids of the outline jobs created by this call.
func (c *Coordinator) ApproveTitles(ctx context.Context, titleJobID string, titles []string) ([]string, error) {
	record, err := c.store.Get(ctx, titleJobID)
	if err != nil {
		return nil, err
	}
	if record.Type != models.JobTypeTitleGeneration {
		return nil, fmt.Errorf("%w: job %s is %s, not title_generation", errWrongType, titleJobID, record.Type)
	}
	if record.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: title job %s is %s", ErrNotReady, titleJobID, record.Status)
	}

	var result models.TitleResult
	if err := record.DecodeResult(&result); err != nil {
		return nil, err
	}
	var source models.TitlePayload
	if err := record.DecodePayload(&source); err != nil {
		return nil, err
	}

	produced := make(map[string]bool, len(result.Titles))
	for _, t := range result.Titles {
		produced[strings.TrimSpace(t)] = true
	}

	var selected []string
	seen := map[string]bool{}
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		if !produced[t] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTitle, t)
		}
		seen[t] = true
		selected = append(selected, t)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no titles selected", ErrInvalidPayload)
	}

	advanced, err := c.advancedTitles(ctx, titleJobID)
	if err != nil {
		return nil, err
	}

	var created []string
	for _, title := range selected {
		if advanced[title] {
			c.logger.Debug().
				Str("title_job_id", titleJobID).
				Str("title", title).
				Msg("Title already approved, skipping")
			continue
		}

		payload := models.OutlinePayload{
			Title:       title,
			Keywords:    source.Keywords,
			Tone:        source.Tone,
			SourceJobID: titleJobID,
		}
		id, err := createAndEnqueue(ctx, c.store, c.queues[models.JobTypeOutlineGeneration], models.JobTypeOutlineGeneration, payload, titleJobID)
		if err != nil {
			return created, err
		}
		created = append(created, id)
	}

	c.logger.Info().
		Str("title_job_id", titleJobID).
		Int("selected", len(selected)).
		Int("created", len(created)).
		Msg("Titles approved")
	return created, nil
}

// advancedTitles returns the titles that already have an outline job
func (c *Coordinator) advancedTitles(ctx context.Context, titleJobID string) (map[string]bool, error) {
	children, err := c.store.ListBySource(ctx, titleJobID)
	if err != nil {
		return nil, err
	}

	advanced := make(map[string]bool, len(children))
	for _, child := range children {
		if child.Type != models.JobTypeOutlineGeneration {
			continue
		}
		var p models.OutlinePayload
		if err := child.DecodePayload(&p); err != nil {
			continue
		}
		advanced[strings.TrimSpace(p.Title)] = true
	}
	return advanced, nil
}

// QueueDepth returns the number of messages held by a stage queue,
// including messages waiting for a delayed retry or redelivery
func (c *Coordinator) QueueDepth(ctx context.Context, jobType models.JobType) (int, error) {
	q, ok := c.queues[jobType]
	if !ok {
		return 0, fmt.Errorf("%w: unknown job type %q", ErrInvalidPayload, jobType)
	}
	return q.Len(ctx)
}

// AdvanceOutline creates the blog job for a completed outline job. If one
// already exists its id is returned instead. With auto-advance on, the
// outline worker creates the blog job before completing the outline, so this
// only ever returns that job.
func (c *Coordinator) AdvanceOutline(ctx context.Context, outlineJobID string) (string, error) {
	record, err := c.store.Get(ctx, outlineJobID)
	if err != nil {
		return "", err
	}
	if record.Type != models.JobTypeOutlineGeneration {
		return "", fmt.Errorf("%w: job %s is %s, not outline_generation", errWrongType, outlineJobID, record.Type)
	}
	if record.Status != models.JobStatusCompleted {
		return "", fmt.Errorf("%w: outline job %s is %s", ErrNotReady, outlineJobID, record.Status)
	}

	c.advanceMu.Lock()
	defer c.advanceMu.Unlock()

	existing, err := blogChildOf(ctx, c.store, outlineJobID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	var outline models.Outline
	if err := record.DecodeResult(&outline); err != nil {
		return "", err
	}
	payload, err := blogPayloadFor(record, outline)
	if err != nil {
		return "", err
	}
	return createAndEnqueue(ctx, c.store, c.queues[models.JobTypeBlogGeneration], models.JobTypeBlogGeneration, payload, outlineJobID)
}

// StopRetries disables further automatic attempts. A job waiting for a
// retry fails immediately; an in-flight attempt finishes on its own.
func (c *Coordinator) StopRetries(ctx context.Context, id string) (*models.JobRecord, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return current, fmt.Errorf("%w: job %s is %s", interfaces.ErrJobTerminal, id, current.Status)
	}

	record, err := c.store.DisableRetries(ctx, id)
	if err != nil {
		return nil, err
	}

	failed := false
	if record.Status == models.JobStatusPending && record.Attempts > 0 {
		err := c.store.Fail(ctx, id, "retries stopped by operator")
		if err != nil && !errors.Is(err, interfaces.ErrInvalidTransition) {
			return nil, err
		}
		failed = err == nil
	}

	c.logger.Info().
		Str("job_id", id).
		Str("status", string(record.Status)).
		Msg("Retries stopped")

	record, err = c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if failed {
		c.publishFailed(ctx, record)
	}
	return record, nil
}

// publishFailed waits for the handlers, so a CLI command that exits right
// after does not drop the event
func (c *Coordinator) publishFailed(ctx context.Context, record *models.JobRecord) {
	if c.events == nil {
		return
	}
	payload := recordPayload(record)
	payload["error"] = record.Error
	if err := c.events.PublishSync(ctx, interfaces.Event{Type: interfaces.EventJobFailed, Payload: payload}); err != nil {
		c.logger.Warn().Err(err).Str("job_id", record.ID).Msg("Failed to publish job event")
	}
}

// RecoverStale releases processing records whose attempt outlived
// staleAfter and enqueues them again. Records that already used their last
// attempt are failed instead.
func (c *Coordinator) RecoverStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-c.staleAfter)

	failed, err := c.failExhausted(ctx, cutoff)
	released, rerr := c.store.RecoverStale(ctx, cutoff)
	err = errors.Join(err, rerr)
	for _, record := range released {
		if qerr := requeue(ctx, c.queues[record.Type], record); qerr != nil {
			err = errors.Join(err, qerr)
		}
	}
	return failed + len(released), err
}

// failExhausted fails stale processing records with no attempts left
func (c *Coordinator) failExhausted(ctx context.Context, cutoff time.Time) (int, error) {
	if len(c.maxAttempts) == 0 {
		return 0, nil
	}

	processing, err := c.store.ListByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return 0, err
	}

	failed := 0
	var errs []error
	for _, record := range processing {
		limit := c.maxAttempts[record.Type]
		if limit < 1 || record.Attempts < limit || !record.StartedAt.Before(cutoff) {
			continue
		}

		reason := fmt.Sprintf("%s failed after %d attempt(s): attempt abandoned: worker stopped before finishing", record.Type.Stage(), record.Attempts)
		if err := c.store.Fail(ctx, record.ID, reason); err != nil {
			if !errors.Is(err, interfaces.ErrInvalidTransition) {
				errs = append(errs, err)
			}
			continue
		}

		c.logger.Warn().
			Str("job_id", record.ID).
			Str("type", string(record.Type)).
			Int("attempts", record.Attempts).
			Msg("Failed stale job with no attempts left")
		failed++

		record.Status = models.JobStatusFailed
		record.Error = reason
		c.publishFailed(ctx, record)
	}
	return failed, errors.Join(errs...)
}

// RequeuePending enqueues every pending record. Queue messages are keyed by
// job id, so records that are already queued are not duplicated.
func (c *Coordinator) RequeuePending(ctx context.Context) (int, error) {
	pending, err := c.store.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, record := range pending {
		if err := requeue(ctx, c.queues[record.Type], record); err != nil {
			errs = append(errs, err)
		}
	}
	return len(pending), errors.Join(errs...)
}

// Start recovers interrupted work, then runs the worker pools and the stale sweep
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("coordinator already started")
	}

	if n, err := c.RecoverStale(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Stale recovery failed at startup")
	} else if n > 0 {
		c.logger.Info().Int("count", n).Msg("Recovered stale jobs")
	}
	if n, err := c.RequeuePending(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to requeue pending jobs")
	} else if n > 0 {
		c.logger.Info().Int("count", n).Msg("Requeued pending jobs")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	for _, pool := range c.pools {
		p := pool
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	if c.schedule != "" {
		c.cron = cron.New()
		_, err := c.cron.AddFunc(c.schedule, func() {
			n, err := c.RecoverStale(gctx)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Stale sweep failed")
				return
			}
			if n > 0 {
				c.logger.Info().Int("count", n).Msg("Stale sweep recovered jobs")
			}
		})
		if err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("invalid stale sweep schedule %q: %w", c.schedule, err)
		}
		c.cron.Start()
	}

	c.cancel = cancel
	c.group = g

	c.logger.Info().
		Int("pools", len(c.pools)).
		Str("stale_sweep", c.schedule).
		Msg("Pipeline started")
	return nil
}

// Stop cancels the workers and waits for in-flight messages to finish
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel == nil {
		return nil
	}

	if c.cron != nil {
		<-c.cron.Stop().Done()
		c.cron = nil
	}
	c.cancel()
	err := c.group.Wait()

	c.cancel = nil
	c.group = nil

	c.logger.Info().Msg("Pipeline stopped")
	return err
}
