package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/internal/types"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/zlog"
)

const DefaultLimit = 3

// Store is the subset of the repository retrieval reads from.
type Store interface {
	Search(ctx context.Context, chatbotID int64, embedding []float32, limit int) ([]models.SearchResult, error)
	Hydrate(ctx context.Context, chatbotID int64, results []models.SearchResult) ([]models.SimilarDocument, error)
}

type Service struct {
	embedder types.Embedder
	store    Store
}

func New(embedder types.Embedder, store Store) *Service {
	return &Service{
		embedder: embedder,
		store:    store,
	}
}

// FindSimilar embeds query and returns the chatbot's closest chunks with their
// parent documents, best match first.
func (s *Service) FindSimilar(ctx context.Context, query string, chatbotID int64, limit int) ([]models.SimilarDocument, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		var stageErr *llm.StageError
		if !errors.As(err, &stageErr) {
			err = &llm.StageError{Stage: llm.StageEmbedding, Err: err}
		}
		return nil, err
	}

	results, err := s.store.Search(ctx, chatbotID, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	if len(results) == 0 {
		return []models.SimilarDocument{}, nil
	}

	docs, err := s.store.Hydrate(ctx, chatbotID, results)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	zlog.Debug("retrieved chunks",
		zap.Int64("chatbot_id", chatbotID),
		zap.Int("hits", len(results)),
		zap.Int("hydrated", len(docs)))
	return docs, nil
}
