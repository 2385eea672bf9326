package llm

import (
	"fmt"

	"github.com/scrypster/memento-assistant/internal/config"
)

// NewChatClient creates the appropriate ChatClient based on the configured
// chat provider.
func NewChatClient(cfg config.LLMConfig) (ChatClient, error) {
	switch cfg.ChatProvider {
	case "anthropic", "":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("%w: MEMENTO_ANTHROPIC_API_KEY is not set", ErrProviderUnavailable)
		}
		return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, Model: cfg.AnthropicModel}), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("%w: MEMENTO_GEMINI_API_KEY is not set", ErrProviderUnavailable)
		}
		return NewGeminiClient(GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: MEMENTO_OPENAI_API_KEY is not set", ErrProviderUnavailable)
		}
		return NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OpenAIModel}), nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %q", cfg.ChatProvider)
	}
}

// NewEmbeddingGenerator creates the appropriate EmbeddingGenerator.
// The mock provider always succeeds and needs no credentials.
func NewEmbeddingGenerator(cfg config.LLMConfig) (EmbeddingGenerator, error) {
	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: MEMENTO_OPENAI_API_KEY is not set", ErrProviderUnavailable)
		}
		model := cfg.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{APIKey: cfg.OpenAIAPIKey, Model: model}), nil
	case "ollama":
		model := cfg.EmbeddingModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbeddingClient(OllamaConfig{BaseURL: cfg.OllamaURL, Model: model}), nil
	case "mock", "":
		return NewMockEmbeddingGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q", cfg.EmbeddingProvider)
	}
}
