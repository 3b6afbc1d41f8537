package llm

import (
	"fmt"

	"hdbinsights/config"

	"github.com/rs/zerolog"
)

// NewFromConfig builds the chat model for the configured provider. model is
// the default model name used when a request does not set one.
func NewFromConfig(cfg *config.Config, model string, logger zerolog.Logger) (ChatModel, error) {
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		return NewAnthropicModel(cfg.AnthropicAPIKey, model, logger), nil
	case config.ProviderOpenAI:
		return newOpenAICompatible(cfg.OpenAIAPIKey, cfg.LLMBaseURL, model, logger)
	case config.ProviderOpenRouter:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" {
			baseURL = config.OpenRouterBaseURL
		}
		return newOpenAICompatible(cfg.OpenRouterAPIKey, baseURL, model, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

func newOpenAICompatible(apiKey, baseURL, model string, logger zerolog.Logger) (ChatModel, error) {
	m, err := NewOpenAICompatibleModel(apiKey, baseURL, model, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}
