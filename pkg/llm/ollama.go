package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

type OllamaConfig struct {
	BaseURL        string // Ollama server URL
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

func newOllama(model string, config OllamaConfig) (*ollama.LLM, error) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithHTTPClient(newHTTPClient(config.Timeout)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Ollama: %w", err)
	}
	return llm, nil
}

// OllamaEmbedder uses a local model; nomic-embed-text emits 768 dimensions.
type OllamaEmbedder struct {
	llm *ollama.LLM
}

func NewOllamaEmbedder(config OllamaConfig) (*OllamaEmbedder, error) {
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "nomic-embed-text:latest"
	}
	llm, err := newOllama(config.EmbeddingModel, config)
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{llm: llm}, nil
}

func (e *OllamaEmbedder) Name() string { return "ollama" }

func (e *OllamaEmbedder) Batch() bool { return false }

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.llm.CreateEmbedding(ctx, texts)
}

type OllamaChat struct {
	llm         *ollama.LLM
	temperature float64
	maxTokens   int
}

func NewOllamaChat(config OllamaConfig) (*OllamaChat, error) {
	if config.ChatModel == "" {
		config.ChatModel = "mistral" // Default Ollama model
	}
	llm, err := newOllama(config.ChatModel, config)
	if err != nil {
		return nil, err
	}
	return &OllamaChat{
		llm:         llm,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
	}, nil
}

func (c *OllamaChat) Name() string { return "ollama" }

func (c *OllamaChat) Generate(ctx context.Context, prompt Prompt) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.User),
	}

	return generateContent(ctx, c.llm, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
}
