package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

type GoogleAIConfig struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

func newGoogleAI(ctx context.Context, config GoogleAIConfig) (*googleai.GoogleAI, error) {
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = "text-embedding-004"
	}
	if config.ChatModel == "" {
		config.ChatModel = "gemini-2.0-flash"
	}

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(config.APIKey),
		googleai.WithHTTPClient(newGoogleAIHTTPClient(config.APIKey, config.Timeout)),
		googleai.WithDefaultModel(config.ChatModel),
		googleai.WithDefaultEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google AI client: %w", err)
	}
	return client, nil
}

// GoogleAIEmbedder embeds one text per call; the gateway loops for batches.
type GoogleAIEmbedder struct {
	client *googleai.GoogleAI
}

func NewGoogleAIEmbedder(ctx context.Context, config GoogleAIConfig) (*GoogleAIEmbedder, error) {
	client, err := newGoogleAI(ctx, config)
	if err != nil {
		return nil, err
	}
	return &GoogleAIEmbedder{client: client}, nil
}

func (e *GoogleAIEmbedder) Name() string { return "googleai" }

func (e *GoogleAIEmbedder) Batch() bool { return false }

func (e *GoogleAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.CreateEmbedding(ctx, texts)
}

// GoogleAIChat sends instruction and context as a single user message.
type GoogleAIChat struct {
	client      *googleai.GoogleAI
	temperature float64
	maxTokens   int
}

func NewGoogleAIChat(ctx context.Context, config GoogleAIConfig) (*GoogleAIChat, error) {
	client, err := newGoogleAI(ctx, config)
	if err != nil {
		return nil, err
	}
	return &GoogleAIChat{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
	}, nil
}

func (c *GoogleAIChat) Name() string { return "googleai" }

func (c *GoogleAIChat) Generate(ctx context.Context, prompt Prompt) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.Combined()),
	}

	return generateContent(ctx, c.client, content,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
}

func generateContent(ctx context.Context, model llms.Model, content []llms.MessageContent, options ...llms.CallOption) (string, error) {
	resp, err := model.GenerateContent(ctx, content, options...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Content, nil
}
