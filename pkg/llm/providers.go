package llm

import (
	"context"
	"time"
)

// ProvidersConfig carries the keys and models for every provider. A provider
// is part of a chain only when its key (or, for Ollama, Enabled) is set.
type ProvidersConfig struct {
	OpenAI        OpenAIConfig
	GoogleAI      GoogleAIConfig
	Ollama        OllamaConfig
	OllamaEnabled bool
	Timeout       time.Duration
}

// NewEmbeddingProviders builds the embedding chain: OpenAI, then Google AI, then Ollama.
func NewEmbeddingProviders(ctx context.Context, config ProvidersConfig) ([]EmbeddingProvider, error) {
	var providers []EmbeddingProvider

	if config.OpenAI.APIKey != "" {
		config.OpenAI.Timeout = config.Timeout
		providers = append(providers, NewOpenAIEmbedder(config.OpenAI))
	}
	if config.GoogleAI.APIKey != "" {
		config.GoogleAI.Timeout = config.Timeout
		p, err := NewGoogleAIEmbedder(ctx, config.GoogleAI)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if config.OllamaEnabled {
		config.Ollama.Timeout = config.Timeout
		p, err := NewOllamaEmbedder(config.Ollama)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return providers, nil
}

// NewGenerationProviders builds the generation chain in the same order.
func NewGenerationProviders(ctx context.Context, config ProvidersConfig) ([]GenerationProvider, error) {
	var providers []GenerationProvider

	if config.OpenAI.APIKey != "" {
		config.OpenAI.Timeout = config.Timeout
		providers = append(providers, NewOpenAIChat(config.OpenAI))
	}
	if config.GoogleAI.APIKey != "" {
		config.GoogleAI.Timeout = config.Timeout
		p, err := NewGoogleAIChat(ctx, config.GoogleAI)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if config.OllamaEnabled {
		config.Ollama.Timeout = config.Timeout
		p, err := NewOllamaChat(config.Ollama)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	return providers, nil
}
