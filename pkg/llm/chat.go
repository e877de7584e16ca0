package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Prompt is a system instruction plus the user-facing prompt. Providers that
// accept a system role send both; others concatenate them.
type Prompt struct {
	System string
	User   string
}

// Combined returns the instruction and prompt as one message.
func (p Prompt) Combined() string {
	if p.System == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

// GenerationProvider is one text generation backend in the fallback order.
type GenerationProvider interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Timeout time.Duration
}

// ChatEngine generates completions using the first provider that succeeds.
type ChatEngine struct {
	config    ChatConfig
	providers []GenerationProvider
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig, providers ...GenerationProvider) *ChatEngine {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &ChatEngine{
		config:    config,
		providers: providers,
	}
}

func (ce *ChatEngine) Providers() []string {
	names := make([]string, len(ce.providers))
	for i, p := range ce.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate runs prompt against each provider in order, returning the first
// non-empty completion.
func (ce *ChatEngine) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return firstSuccess(ctx, StageGeneration, ce.Providers(), func(ctx context.Context, i int) (string, error) {
		ctx, cancel := withTimeout(ctx, ce.config.Timeout)
		defer cancel()

		out, err := ce.providers[i].Generate(ctx, prompt)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(out) == "" {
			return "", fmt.Errorf("%w: empty completion", ErrMalformedResponse)
		}
		return out, nil
	})
}
