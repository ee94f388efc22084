package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
)

// ClaudeProvider completes requests with the Anthropic Messages API
type ClaudeProvider struct {
	client anthropic.Client
	config *common.ClaudeConfig
	logger arbor.ILogger
}

// NewClaudeProvider creates a Claude provider
func NewClaudeProvider(config *common.ClaudeConfig, logger arbor.ILogger) (*ClaudeProvider, error) {
	apiKey, err := common.ResolveAPIKey(common.LLMProviderClaude, config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	// SDK-level retries are disabled; the stage retry policy owns backoff
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	logger.Debug().Str("model", config.Model).Msg("Claude provider initialized")

	return &ClaudeProvider{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *ClaudeProvider) Name() string {
	return common.LLMProviderClaude
}

// Complete sends one prompt to Claude and returns the concatenated text blocks
func (p *ClaudeProvider) Complete(ctx context.Context, request *Request) (string, error) {
	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(NormalizeModel(p.config.Model)),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(withSchemaHint(request.Prompt, request.Schema))),
		},
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}

	if request.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.System},
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

// Close is a no-op; the HTTP client has no resources to release
func (p *ClaudeProvider) Close() error {
	return nil
}

// withSchemaHint appends the expected JSON schema to the prompt for providers
// without native structured output
func withSchemaHint(prompt string, schema map[string]interface{}) string {
	if len(schema) == 0 {
		return prompt
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return prompt
	}
	return prompt + "\n\nRespond with JSON only, matching this JSON schema:\n" + string(data)
}
