package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/models"
)

type cannedGenerator struct{}

func (cannedGenerator) GenerateTitles(ctx context.Context, payload models.TitlePayload) (string, error) {
	return `["Wellness at Work", "Small Steps to Better Health"]`, nil
}

func (cannedGenerator) GenerateOutline(ctx context.Context, payload models.OutlinePayload) (string, error) {
	return `{"title": "` + payload.Title + `", "sections": [{"heading": "Move more"}, {"heading": "Eat well"}]}`, nil
}

func (cannedGenerator) GenerateBlog(ctx context.Context, payload models.BlogPayload) (string, error) {
	return `{"title": "` + payload.Title + `", "content": "## Move more\n\nWalk every hour."}`, nil
}

func testConfig(t *testing.T) *common.Config {
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Queue.PollInterval = "5ms"
	cfg.Pipeline.StaleSweepSchedule = ""
	cfg.Pipeline.PollInterval = "10ms"
	cfg.Pipeline.PollTimeout = "10s"
	return cfg
}

func TestApp_RunsPipelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), arbor.NewLogger(), Options{Workers: true, Generator: cannedGenerator{}})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start(ctx))
	poller := a.Poller()

	titleID, err := a.Coordinator.Submit(ctx, models.JobTypeTitleGeneration, models.TitlePayload{
		Keywords:       []string{"wellness"},
		Tone:           "warm",
		TargetAudience: "professionals",
		Count:          2,
	})
	require.NoError(t, err)

	record, err := poller.Wait(ctx, titleID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, record.Status)

	outlineIDs, err := a.Coordinator.ApproveTitles(ctx, titleID, []string{"Wellness at Work"})
	require.NoError(t, err)
	require.Len(t, outlineIDs, 1)

	_, err = poller.Wait(ctx, outlineIDs[0])
	require.NoError(t, err)

	// Outline completion enqueues the blog stage on its own
	var blogs []*models.JobRecord
	require.Eventually(t, func() bool {
		blogs, err = a.StorageManager.JobStore().ListBySource(ctx, outlineIDs[0])
		return err == nil && len(blogs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	record, err = poller.Wait(ctx, blogs[0].ID)
	require.NoError(t, err)

	var blog models.Blog
	require.NoError(t, record.DecodeResult(&blog))
	assert.Equal(t, "Wellness at Work", blog.Title)
	assert.Contains(t, blog.HTML, "<h2")
	assert.Greater(t, blog.WordCount, 0)
}

func TestApp_WithoutWorkersLeavesJobsPending(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t), arbor.NewLogger(), Options{})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Start(ctx))

	id, err := a.Coordinator.Submit(ctx, models.JobTypeTitleGeneration, models.TitlePayload{
		Keywords:       []string{"wellness"},
		Tone:           "warm",
		TargetAudience: "professionals",
		Count:          1,
	})
	require.NoError(t, err)

	record, err := a.Coordinator.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, record.Status)

	record, err = a.Coordinator.StopRetries(ctx, id)
	require.NoError(t, err)
	assert.True(t, record.RetriesDisabled)
}

func TestApp_MissingAPIKeyFailsWorkerMode(t *testing.T) {
	t.Setenv("INKWELL_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := New(context.Background(), testConfig(t), arbor.NewLogger(), Options{Workers: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}
