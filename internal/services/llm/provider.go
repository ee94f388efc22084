package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
)

// Request represents a provider-agnostic completion request
type Request struct {
	System      string
	Prompt      string
	Schema      map[string]interface{} // JSON schema for structured output, honoured where the provider supports it
	Temperature float32
	MaxTokens   int
}

// Provider defines the interface for AI text completion
type Provider interface {
	Name() string
	Complete(ctx context.Context, request *Request) (string, error)
	Close() error
}

// DetectProvider determines the provider from a model string.
// Model strings can be:
// - "claude-sonnet-4-5" or "claude/claude-sonnet-4-5" -> claude
// - "gemini-2.5-flash" or "google/gemini-2.5-flash" -> gemini
// - "gpt-4o-mini" or "openai/gpt-4o-mini" -> openai
// - anything else -> fallback
func DetectProvider(model, fallback string) string {
	model = strings.ToLower(strings.TrimSpace(model))

	switch {
	case strings.HasPrefix(model, "claude/"), strings.HasPrefix(model, "anthropic/"), strings.HasPrefix(model, "claude-"):
		return common.LLMProviderClaude
	case strings.HasPrefix(model, "gemini/"), strings.HasPrefix(model, "google/"), strings.HasPrefix(model, "gemini-"):
		return common.LLMProviderGemini
	case strings.HasPrefix(model, "openai/"), strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return common.LLMProviderOpenAI
	}
	return fallback
}

// NormalizeModel removes a provider prefix from a model name if present
func NormalizeModel(model string) string {
	for _, prefix := range []string{"claude/", "anthropic/", "gemini/", "google/", "openai/"} {
		if strings.HasPrefix(strings.ToLower(model), prefix) {
			return model[len(prefix):]
		}
	}
	return model
}

// NewProvider creates the provider selected by llm.default_provider. When
// llm.model is set, its prefix picks the provider and it replaces that
// provider's configured model.
func NewProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.LLM.DefaultProvider))
	model := strings.TrimSpace(config.LLM.Model)
	if model != "" {
		name = DetectProvider(model, name)
	}

	logger.Debug().Str("provider", name).Str("model", model).Msg("Creating AI provider")

	switch name {
	case common.LLMProviderGemini, "":
		gemini := config.Gemini
		if model != "" {
			gemini.Model = model
		}
		return NewGeminiProvider(ctx, &gemini, logger)
	case common.LLMProviderClaude:
		claude := config.Claude
		if model != "" {
			claude.Model = model
		}
		return NewClaudeProvider(&claude, logger)
	case common.LLMProviderOpenAI:
		openAI := config.OpenAI
		if model != "" {
			openAI.Model = model
		}
		return NewOpenAIProvider(&openAI, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrPermanent, name)
	}
}
