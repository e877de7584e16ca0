package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xhad/ragbot/internal/models"
)

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Temperature    float64
	MaxTokens      int
	Timeout        time.Duration
}

func newOpenAIClient(config OpenAIConfig) *openai.Client {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(config.Timeout)
	return openai.NewClientWithConfig(clientConfig)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint with a fixed output size.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIEmbedder(config OpenAIConfig) *OpenAIEmbedder {
	if config.EmbeddingModel == "" {
		config.EmbeddingModel = string(openai.SmallEmbedding3)
	}
	return &OpenAIEmbedder{
		client:     newOpenAIClient(config),
		model:      openai.EmbeddingModel(config.EmbeddingModel),
		dimensions: models.EmbeddingDim,
	}
}

func (e *OpenAIEmbedder) Name() string { return "openai" }

func (e *OpenAIEmbedder) Batch() bool { return true }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	})
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrMalformedResponse, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrMalformedResponse, i)
		}
	}
	return vectors, nil
}

// OpenAIChat sends the system/user pair to the chat completions endpoint.
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIChat(config OpenAIConfig) *OpenAIChat {
	if config.ChatModel == "" {
		config.ChatModel = openai.GPT4oMini
	}
	return &OpenAIChat{
		client:      newOpenAIClient(config),
		model:       config.ChatModel,
		temperature: chatTemperature(config.Temperature),
		maxTokens:   config.MaxTokens,
	}
}

// chatTemperature keeps an explicit zero on the wire; go-openai omits a zero
// temperature, which the API reads as its default of 1.
func chatTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (c *OpenAIChat) Name() string { return "openai" }

func (c *OpenAIChat) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrMalformedResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
