package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/queue"
	"github.com/ternarybob/inkwell/internal/services/render"
	badgerstore "github.com/ternarybob/inkwell/internal/storage/badger"
)

const (
	titlesResponse = "Here are your titles:\n" +
		`["Wellness at Work", "Warm Habits for Busy Professionals", "Small Steps to Better Health"]`

	outlineResponse = "```json\n" + `{
  "title": "Wellness at Work",
  "introduction": "Why wellbeing matters at the office",
  "sections": [
    {"heading": "Move more", "subheadings": ["Desk stretches", "Walking meetings"]},
    {"heading": "Eat well"}
  ],
  "conclusion": "Start small"
}` + "\n```"

	blogResponse = `{"title": "Wellness at Work", "content": "## Move more\n\nTake a short walk every hour.", "meta_description": "Simple wellness habits"}`
)

var errUpstream = errors.New("Error 503, Message: The model is overloaded, Status: UNAVAILABLE")

type fakeGenerator struct {
	mu     sync.Mutex
	calls  map[models.JobType]int
	titles func(ctx context.Context, call int) (string, error)
	outln  func(ctx context.Context, call int) (string, error)
	blog   func(ctx context.Context, call int) (string, error)
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		calls:  map[models.JobType]int{},
		titles: respond(titlesResponse),
		outln:  respond(outlineResponse),
		blog:   respond(blogResponse),
	}
}

func respond(text string) func(context.Context, int) (string, error) {
	return func(context.Context, int) (string, error) { return text, nil }
}

func (f *fakeGenerator) next(jobType models.JobType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[jobType]++
	return f.calls[jobType]
}

func (f *fakeGenerator) Calls(jobType models.JobType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[jobType]
}

func (f *fakeGenerator) GenerateTitles(ctx context.Context, payload models.TitlePayload) (string, error) {
	return f.titles(ctx, f.next(models.JobTypeTitleGeneration))
}

func (f *fakeGenerator) GenerateOutline(ctx context.Context, payload models.OutlinePayload) (string, error) {
	return f.outln(ctx, f.next(models.JobTypeOutlineGeneration))
}

func (f *fakeGenerator) GenerateBlog(ctx context.Context, payload models.BlogPayload) (string, error) {
	return f.blog(ctx, f.next(models.JobTypeBlogGeneration))
}

// recordingObserver keeps the sequence of notifications as "event:job_id"
type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingObserver) add(event, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event+":"+id)
}

func (r *recordingObserver) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingObserver) OnClaimed(ctx context.Context, rec *models.JobRecord) {
	r.add("claimed", rec.ID)
}

func (r *recordingObserver) OnCompleted(ctx context.Context, rec *models.JobRecord) {
	r.add("completed", rec.ID)
}

func (r *recordingObserver) OnRetryScheduled(ctx context.Context, rec *models.JobRecord, cause error, delay time.Duration) {
	r.add("retry", rec.ID)
}

func (r *recordingObserver) OnFailed(ctx context.Context, rec *models.JobRecord, reason string) {
	r.add("failed", rec.ID)
}

func (r *recordingObserver) OnDuplicate(ctx context.Context, jobID string, jobType models.JobType, cause error) {
	r.add("duplicate", jobID)
}

type harness struct {
	t           *testing.T
	store       *badgerstore.JobStore
	queues      map[models.JobType]*queue.BadgerManager
	generator   *fakeGenerator
	observer    *recordingObserver
	coordinator *Coordinator
	logger      arbor.ILogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		t:         t,
		store:     badgerstore.NewJobStore(db, logger),
		queues:    map[models.JobType]*queue.BadgerManager{},
		generator: newFakeGenerator(),
		observer:  &recordingObserver{},
		logger:    logger,
	}

	stageQueues := map[models.JobType]interfaces.StageQueue{}
	for _, jobType := range models.AllJobTypes {
		q, err := queue.NewBadgerManager(db.Raw(), jobType.Stage(), time.Minute, 5)
		require.NoError(t, err)
		h.queues[jobType] = q
		stageQueues[jobType] = q
	}

	h.coordinator, err = NewCoordinator(CoordinatorConfig{
		Store:      h.store,
		Queues:     stageQueues,
		StaleAfter: time.Minute,
		Logger:     logger,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) worker(jobType models.JobType, maxAttempts int) *StageWorker {
	h.t.Helper()

	config := StageWorkerConfig{
		JobType:   jobType,
		Store:     h.store,
		Generator: h.generator,
		Queue:     h.queues[jobType],
		Policy:    RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2},
		Timeout:   time.Second,
		Observer:  h.observer,
		IsTransient: func(err error) bool {
			return strings.Contains(err.Error(), "503")
		},
		Logger: h.logger,
	}
	if jobType == models.JobTypeOutlineGeneration {
		config.Next = h.queues[models.JobTypeBlogGeneration]
	}
	if jobType == models.JobTypeBlogGeneration {
		config.Renderer = render.NewService(h.logger)
	}

	w, err := NewStageWorker(config)
	require.NoError(h.t, err)
	return w
}

// receive pulls the next message of a stage, waiting briefly for delayed retries
func (h *harness) receive(jobType models.JobType) (*queue.Message, func() error) {
	h.t.Helper()

	deadline := time.Now().Add(time.Second)
	for {
		msg, ack, err := h.queues[jobType].Receive(context.Background())
		if err == nil {
			return msg, ack
		}
		require.ErrorIs(h.t, err, queue.ErrNoMessage)
		if time.Now().After(deadline) {
			h.t.Fatalf("no %s message within deadline", jobType.Stage())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// deliver receives one message of the stage and runs it through the worker, acking on success
func (h *harness) deliver(w *StageWorker) error {
	h.t.Helper()

	msg, ack := h.receive(w.JobType)
	if err := w.Handle(context.Background(), msg); err != nil {
		return err
	}
	return ack()
}

func (h *harness) submitTitles(count int) string {
	h.t.Helper()

	id, err := h.coordinator.Submit(context.Background(), models.JobTypeTitleGeneration, models.TitlePayload{
		Keywords:       []string{"wellness"},
		Tone:           "warm",
		TargetAudience: "professionals",
		Count:          count,
	})
	require.NoError(h.t, err)
	return id
}

func (h *harness) get(id string) *models.JobRecord {
	h.t.Helper()

	rec, err := h.store.Get(context.Background(), id)
	require.NoError(h.t, err)
	return rec
}

func (h *harness) queueLen(jobType models.JobType) int {
	h.t.Helper()

	n, err := h.queues[jobType].Len(context.Background())
	require.NoError(h.t, err)
	return n
}

func decodeTitles(t *testing.T, rec *models.JobRecord) []string {
	t.Helper()

	var result models.TitleResult
	require.NoError(t, json.Unmarshal(rec.Result, &result))
	return result.Titles
}

// slowBlogStore delays blog record creation to widen the window between
// the outline attempt finishing and its blog job being written
type slowBlogStore struct {
	interfaces.JobStore
	delay time.Duration
}

func (s *slowBlogStore) Create(ctx context.Context, jobType models.JobType, payload json.RawMessage, sourceJobID string) (string, error) {
	if jobType == models.JobTypeBlogGeneration {
		time.Sleep(s.delay)
	}
	return s.JobStore.Create(ctx, jobType, payload, sourceJobID)
}
