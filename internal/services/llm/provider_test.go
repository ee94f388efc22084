package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/inkwell/internal/common"
	"github.com/ternarybob/inkwell/internal/parser"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-5", common.LLMProviderClaude},
		{"anthropic/claude-3-haiku", common.LLMProviderClaude},
		{"gemini-2.5-flash", common.LLMProviderGemini},
		{"google/gemini-2.5-pro", common.LLMProviderGemini},
		{"gpt-4o-mini", common.LLMProviderOpenAI},
		{"openai/gpt-4.1", common.LLMProviderOpenAI},
		{"llama3", "fallback"},
		{"", "fallback"},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.model, "fallback"))
		})
	}
}

func TestNormalizeModel(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-5", NormalizeModel("claude/claude-sonnet-4-5"))
	assert.Equal(t, "gemini-2.5-flash", NormalizeModel("Google/gemini-2.5-flash"))
	assert.Equal(t, "gpt-4o-mini", NormalizeModel("gpt-4o-mini"))
}

func TestNewProvider_UnknownIsPermanent(t *testing.T) {
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = "mystery"

	_, err := NewProvider(context.Background(), config, arbor.NewLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPermanent)
	assert.False(t, IsTransient(err))
}

func TestNewProvider_OpenAI(t *testing.T) {
	t.Setenv("INKWELL_OPENAI_API_KEY", "test-key")
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = common.LLMProviderOpenAI

	provider, err := NewProvider(context.Background(), config, arbor.NewLogger())
	require.NoError(t, err)
	assert.Equal(t, common.LLMProviderOpenAI, provider.Name())
	assert.NoError(t, provider.Close())
}

func TestNewProvider_ModelPrefixSelectsProvider(t *testing.T) {
	t.Setenv("INKWELL_OPENAI_API_KEY", "test-key")
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = common.LLMProviderGemini
	config.LLM.Model = "openai/gpt-4.1"

	provider, err := NewProvider(context.Background(), config, arbor.NewLogger())
	require.NoError(t, err)
	defer provider.Close()

	require.Equal(t, common.LLMProviderOpenAI, provider.Name())
	openAI, ok := provider.(*OpenAIProvider)
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-4.1", openAI.config.Model)
	assert.Equal(t, "gpt-4o-mini", config.OpenAI.Model, "shared config is left untouched")
}

func TestNewProvider_UnknownModelKeepsDefaultProvider(t *testing.T) {
	t.Setenv("INKWELL_OPENAI_API_KEY", "test-key")
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = common.LLMProviderOpenAI
	config.LLM.Model = "llama3"

	provider, err := NewProvider(context.Background(), config, arbor.NewLogger())
	require.NoError(t, err)
	defer provider.Close()
	assert.Equal(t, common.LLMProviderOpenAI, provider.Name())
}

func TestGeminiProvider_GenerateConfig(t *testing.T) {
	p := &GeminiProvider{
		config: &common.GeminiConfig{Model: "gemini-2.5-flash", MaxTokens: 4096, Temperature: 0.7},
		logger: arbor.NewLogger(),
	}

	config := p.generateConfig(&Request{Prompt: "p"})
	assert.Equal(t, int32(4096), config.MaxOutputTokens)
	require.NotNil(t, config.Temperature)
	assert.InDelta(t, 0.7, *config.Temperature, 0.001)
	assert.Nil(t, config.ResponseSchema)

	config = p.generateConfig(&Request{Prompt: "p", MaxTokens: 256, Temperature: 0.2, System: "s", Schema: parser.BlogSchema})
	assert.Equal(t, int32(256), config.MaxOutputTokens)
	assert.InDelta(t, 0.2, *config.Temperature, 0.001)
	assert.NotNil(t, config.SystemInstruction)
	assert.Equal(t, "application/json", config.ResponseMIMEType)

	p.config.MaxTokens = 0
	assert.Zero(t, p.generateConfig(&Request{Prompt: "p"}).MaxOutputTokens)
}

func TestNewProvider_MissingKeyIsPermanent(t *testing.T) {
	for _, name := range []string{"INKWELL_CLAUDE_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(name, "")
	}
	config := common.NewDefaultConfig()
	config.LLM.DefaultProvider = common.LLMProviderClaude
	config.Claude.APIKey = ""

	_, err := NewProvider(context.Background(), config, arbor.NewLogger())
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"permanent", fmt.Errorf("wrap: %w", ErrPermanent), false},
		{"cancelled", context.Canceled, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"empty response", ErrEmptyResponse, true},
		{"gemini rate limit", errors.New("Error 429, Message: Please retry in 4s., Status: RESOURCE_EXHAUSTED"), true},
		{"gemini unavailable", errors.New("Error 503, Message: The model is overloaded, Status: UNAVAILABLE"), true},
		{"gemini bad request", errors.New("Error 400, Message: invalid argument, Status: INVALID_ARGUMENT"), false},
		{"overloaded text", errors.New("overloaded_error: Overloaded"), true},
		{"openai unauthorized", &openai.Error{StatusCode: 401}, false},
		{"openai server error", &openai.Error{StatusCode: 500}, true},
		{"plain", errors.New("unexpected end of JSON input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.5s., Status: RESOURCE_EXHAUSTED")
	assert.Equal(t, 45500*time.Millisecond, ExtractRetryDelay(err))
	assert.Zero(t, ExtractRetryDelay(errors.New("boom")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(parser.OutlineSchema)
	require.NoError(t, err)
	require.NotNil(t, schema)

	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"sections"}, schema.Required)

	sections := schema.Properties["sections"]
	require.NotNil(t, sections)
	assert.Equal(t, genai.TypeArray, sections.Type)
	require.NotNil(t, sections.Items)
	assert.Equal(t, genai.TypeString, sections.Items.Properties["heading"].Type)

	_, err = convertToGenaiSchema(map[string]interface{}{"type": "tuple"})
	assert.Error(t, err)

	empty, err := convertToGenaiSchema(nil)
	assert.NoError(t, err)
	assert.Nil(t, empty)
}

func TestWithSchemaHint(t *testing.T) {
	assert.Equal(t, "prompt", withSchemaHint("prompt", nil))

	hinted := withSchemaHint("prompt", parser.TitlesSchema)
	assert.Contains(t, hinted, "prompt\n\nRespond with JSON only")
	assert.Contains(t, hinted, `"type":"array"`)
}
