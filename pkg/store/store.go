package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/internal/types"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// Both wrap ErrNotFound.
	ErrChatbotNotFound  = fmt.Errorf("chatbot %w", ErrNotFound)
	ErrDocumentNotFound = fmt.Errorf("document %w", ErrNotFound)
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Driver      string
	URL         string
	VectorDim   int
	SearchLimit int
}

// Open returns the repository selected by config.Driver.
func Open(ctx context.Context, config Config) (types.Repository, error) {
	switch config.Driver {
	case "", DriverPostgres:
		return NewWithConfig(ctx, VectorStoreConfig{
			ConnString:  config.URL,
			VectorDim:   config.VectorDim,
			SearchLimit: config.SearchLimit,
		})
	case DriverMemory:
		return NewMemoryStore(config.VectorDim), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", config.Driver)
	}
}

func checkDim(embedding []float32, dim int) error {
	if len(embedding) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), dim)
	}
	return nil
}

func similarity(r models.SearchResult) float64 {
	return 1 - r.Distance
}

// sanitizeText drops invalid UTF-8 and NUL bytes, both of which Postgres rejects in TEXT columns.
func sanitizeText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
