package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/inkwell/internal/interfaces"
	"github.com/ternarybob/inkwell/internal/models"
	"github.com/ternarybob/inkwell/internal/parser"
	"github.com/ternarybob/inkwell/internal/templates"
)

// Client turns stage payloads into prompts and sends them to a Provider.
// All stages share one limiter so the combined call rate stays bounded.
type Client struct {
	provider Provider
	limiter  *rate.Limiter
	prompts  map[string]*templates.Template
	logger   arbor.ILogger
}

var _ interfaces.ContentGenerator = (*Client)(nil)

// NewClient creates a client allowing at most one call per interval.
// A non-positive interval disables limiting. Prompt templates in promptsDir
// override the embedded ones.
func NewClient(provider Provider, interval time.Duration, promptsDir string, logger arbor.ILogger) (*Client, error) {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	prompts := make(map[string]*templates.Template, len(models.AllJobTypes))
	for _, jobType := range models.AllJobTypes {
		tmpl, err := templates.GetTemplate(jobType.Stage(), promptsDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		prompts[jobType.Stage()] = tmpl
	}

	return &Client{
		provider: provider,
		limiter:  rate.NewLimiter(limit, 1),
		prompts:  prompts,
		logger:   logger,
	}, nil
}

// GenerateTitles asks for payload.Count title candidates
func (c *Client) GenerateTitles(ctx context.Context, payload models.TitlePayload) (string, error) {
	return c.generate(ctx, "title", payload, parser.TitlesSchema)
}

// GenerateOutline asks for a structured outline of one title
func (c *Client) GenerateOutline(ctx context.Context, payload models.OutlinePayload) (string, error) {
	return c.generate(ctx, "outline", payload, parser.OutlineSchema)
}

// GenerateBlog asks for the full article following an outline
func (c *Client) GenerateBlog(ctx context.Context, payload models.BlogPayload) (string, error) {
	return c.generate(ctx, "blog", payload, parser.BlogSchema)
}

func (c *Client) generate(ctx context.Context, stage string, payload interface{}, schema map[string]interface{}) (string, error) {
	tmpl := c.prompts[stage]

	prompt, err := tmpl.Render(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	system, err := tmpl.RenderSystem(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	return c.complete(ctx, stage, &Request{
		System:      system,
		Prompt:      prompt,
		Schema:      schema,
		Temperature: tmpl.Temperature,
		MaxTokens:   tmpl.MaxTokens,
	})
}

func (c *Client) complete(ctx context.Context, stage string, request *Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	text, err := c.provider.Complete(ctx, request)
	duration := time.Since(start)

	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("provider", c.provider.Name()).
			Str("stage", stage).
			Dur("duration", duration).
			Bool("transient", IsTransient(err)).
			Msg("AI call failed")
		return "", err
	}

	c.logger.Debug().
		Str("provider", c.provider.Name()).
		Str("stage", stage).
		Dur("duration", duration).
		Int("response_length", len(text)).
		Msg("AI call completed")
	return text, nil
}
