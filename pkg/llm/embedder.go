package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/xhad/ragbot/internal/models"
)

// EmbeddingProvider is one embedding backend in the gateway's fallback order.
type EmbeddingProvider interface {
	Name() string
	// Batch reports whether Embed accepts more than one text per call.
	Batch() bool
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	Dimensions int
	Timeout    time.Duration
}

// Embedder tries each provider in order until one returns vectors of the
// configured dimensionality.
type Embedder struct {
	config    EmbedderConfig
	providers []EmbeddingProvider
}

func NewEmbedderWithConfig(config EmbedderConfig, providers ...EmbeddingProvider) *Embedder {
	if config.Dimensions <= 0 {
		config.Dimensions = models.EmbeddingDim
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Embedder{
		config:    config,
		providers: providers,
	}
}

// Providers returns provider names in fallback order.
func (e *Embedder) Providers() []string {
	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}
	return names
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts preserving input order. Providers without a batch
// endpoint are called once per text; any failed item fails that provider for
// the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	return firstSuccess(ctx, StageEmbedding, e.Providers(), func(ctx context.Context, i int) ([][]float32, error) {
		p := e.providers[i]
		if p.Batch() {
			return e.call(ctx, p, texts)
		}

		vectors := make([][]float32, 0, len(texts))
		for n, text := range texts {
			v, err := e.call(ctx, p, []string{text})
			if err != nil {
				return nil, fmt.Errorf("item %d of %d: %w", n+1, len(texts), err)
			}
			vectors = append(vectors, v[0])
		}
		return vectors, nil
	})
}

func (e *Embedder) call(ctx context.Context, p EmbeddingProvider, texts []string) ([][]float32, error) {
	ctx, cancel := withTimeout(ctx, e.config.Timeout)
	defer cancel()

	vectors, err := p.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrMalformedResponse, len(vectors), len(texts))
	}

	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		fitted, err := fitDimensions(v, e.config.Dimensions)
		if err != nil {
			return nil, err
		}
		out[i] = fitted
	}
	return out, nil
}

// fitDimensions truncates longer vectors and rejects shorter ones.
func fitDimensions(v []float32, dim int) ([]float32, error) {
	switch {
	case len(v) == dim:
		return v, nil
	case len(v) > dim:
		out := make([]float32, dim)
		copy(out, v[:dim])
		return out, nil
	default:
		return nil, &DimensionError{Got: len(v), Want: dim}
	}
}
