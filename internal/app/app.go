package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/pipeline"
	"github.com/ternarybob/inkwell/internal/queue"
	"github.com/ternarybob/inkwell/internal/services/events"
	"github.com/ternarybob/inkwell/internal/services/llm"
	"github.com/ternarybob/inkwell/internal/services/render"
	"github.com/ternarybob/inkwell/internal/storage"
)

// Options controls which parts of the application are built
type Options struct {
	// Workers builds the AI provider and the stage worker pools. Commands
	// that only read or annotate job records leave it off.
	Workers bool

	// Generator replaces the configured AI provider
	Generator interfaces.ContentGenerator
}

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager *storage.Manager
	EventService   *events.Service
	Queues         map[models.JobType]*queue.BadgerManager
	Coordinator    *pipeline.Coordinator

	provider llm.Provider
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Queues: map[models.JobType]*queue.BadgerManager{},
	}

	if err := a.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a.EventService = events.NewService(logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, logger); err != nil {
		_ = a.Close()
		return nil, err
	}

	if err := a.initQueues(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to initialize queues: %w", err)
	}

	var pools []pipeline.Runner
	if opts.Workers {
		var err error
		if pools, err = a.initWorkers(ctx, opts.Generator); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialize workers: %w", err)
		}
	}

	stageQueues := make(map[models.JobType]interfaces.StageQueue, len(a.Queues))
	for jobType, q := range a.Queues {
		stageQueues[jobType] = q
	}

	maxAttempts := make(map[models.JobType]int, len(models.AllJobTypes))
	for _, jobType := range models.AllJobTypes {
		maxAttempts[jobType] = cfg.Stage(jobType).MaxAttempts
	}

	coordinator, err := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Store:              a.StorageManager.JobStore(),
		Queues:             stageQueues,
		Pools:              pools,
		StaleAfter:         common.ParseDurationOr(cfg.Pipeline.StaleAfter, 15*time.Minute),
		StaleSweepSchedule: cfg.Pipeline.StaleSweepSchedule,
		MaxAttempts:        maxAttempts,
		Events:             a.EventService,
		Logger:             logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Coordinator = coordinator

	logger.Debug().
		Bool("workers", opts.Workers).
		Str("storage", cfg.Storage.Driver).
		Msg("Application initialization complete")

	return a, nil
}

// initDatabase initializes the storage layer
func (a *App) initDatabase(ctx context.Context) error {
	storageManager, err := storage.NewStorageManager(ctx, a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = storageManager
	return nil
}

// initQueues opens one Badger-backed queue per stage
func (a *App) initQueues() error {
	visibility := common.ParseDurationOr(a.Config.Queue.VisibilityTimeout, 5*time.Minute)

	for _, jobType := range models.AllJobTypes {
		q, err := queue.NewBadgerManager(a.StorageManager.DB().Raw(), jobType.Stage(), visibility, a.Config.Queue.MaxReceive)
		if err != nil {
			return err
		}
		a.Queues[jobType] = q
	}
	return nil
}

// initWorkers builds the AI client and one worker pool per stage
func (a *App) initWorkers(ctx context.Context, generator interfaces.ContentGenerator) ([]pipeline.Runner, error) {
	if generator == nil {
		provider, err := llm.NewProvider(ctx, a.Config, a.Logger)
		if err != nil {
			return nil, err
		}
		a.provider = provider

		client, err := llm.NewClient(provider, common.ParseDurationOr(a.Config.LLM.RateLimit, 0), a.Config.LLM.PromptsDir, a.Logger)
		if err != nil {
			return nil, err
		}
		generator = client
	}

	observer := pipeline.MultiObserver{
		pipeline.NewLogObserver(a.Logger),
		pipeline.NewEventObserver(a.EventService, a.Logger),
	}
	renderer := render.NewService(a.Logger)
	pollInterval := common.ParseDurationOr(a.Config.Queue.PollInterval, 500*time.Millisecond)

	var pools []pipeline.Runner
	for _, jobType := range models.AllJobTypes {
		stage := a.Config.Stage(jobType)

		config := pipeline.StageWorkerConfig{
			JobType:     jobType,
			Store:       a.StorageManager.JobStore(),
			Generator:   generator,
			Queue:       a.Queues[jobType],
			Policy:      pipeline.NewRetryPolicy(*stage),
			Timeout:     common.ParseDurationOr(stage.Timeout, time.Minute),
			Observer:    observer,
			IsTransient: llm.IsTransient,
			RetryAfter:  llm.ExtractRetryDelay,
			Logger:      a.Logger,
		}
		switch jobType {
		case models.JobTypeOutlineGeneration:
			if a.Config.Pipeline.AutoAdvanceOutline {
				config.Next = a.Queues[models.JobTypeBlogGeneration]
			}
		case models.JobTypeBlogGeneration:
			config.Renderer = renderer
		}

		worker, err := pipeline.NewStageWorker(config)
		if err != nil {
			return nil, err
		}

		pools = append(pools, queue.NewWorkerPool(a.Queues[jobType], worker.Handle, queue.Config{
			PollInterval: pollInterval,
			Concurrency:  stage.Concurrency,
		}, a.Logger))
	}

	return pools, nil
}

// Poller returns a status poller configured from the pipeline settings
func (a *App) Poller() *pipeline.Poller {
	return pipeline.NewPoller(
		a.StorageManager.JobStore(),
		common.ParseDurationOr(a.Config.Pipeline.PollInterval, time.Second),
		common.ParseDurationOr(a.Config.Pipeline.PollTimeout, 0),
	)
}

// Start runs the stage workers and the stale sweep
func (a *App) Start(ctx context.Context) error {
	return a.Coordinator.Start(ctx)
}

// Close stops the workers then closes all application resources
func (a *App) Close() error {
	if a.Coordinator != nil {
		if err := a.Coordinator.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop pipeline")
		}
	}

	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close AI provider")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	for _, q := range a.Queues {
		_ = q.Close()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Debug().Msg("Storage closed")
	}

	return nil
}
