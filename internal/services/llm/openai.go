package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
)

// OpenAIProvider completes requests with the OpenAI chat completions API or
// any compatible endpoint configured through base_url
type OpenAIProvider struct {
	client openai.Client
	config *common.OpenAIConfig
	logger arbor.ILogger
}

// NewOpenAIProvider creates an OpenAI provider
func NewOpenAIProvider(config *common.OpenAIConfig, logger arbor.ILogger) (*OpenAIProvider, error) {
	apiKey, err := common.ResolveAPIKey(common.LLMProviderOpenAI, config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if config.Model == "" {
		return nil, fmt.Errorf("%w: openai model is required", ErrPermanent)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	logger.Debug().
		Str("model", config.Model).
		Str("base_url", config.BaseURL).
		Msg("OpenAI provider initialized")

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		config: config,
		logger: logger,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return common.LLMProviderOpenAI
}

// Complete sends one prompt as a chat completion and returns the first choice
func (p *OpenAIProvider) Complete(ctx context.Context, request *Request) (string, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if request.System != "" {
		msgs = append(msgs, openai.SystemMessage(request.System))
	}
	msgs = append(msgs, openai.UserMessage(withSchemaHint(request.Prompt, request.Schema)))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(NormalizeModel(p.config.Model)),
		Messages: msgs,
	}

	temp := request.Temperature
	if temp <= 0 {
		temp = p.config.Temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(float64(temp))
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Close is a no-op; the HTTP client has no resources to release
func (p *OpenAIProvider) Close() error {
	return nil
}
