package types

import (
	"context"

	"github.com/xhad/ragbot/internal/models"
)

// Core interfaces
type VectorStore interface {
	Store(ctx context.Context, documentID int64, content string, embedding []float32) (int64, error)
	StoreChunks(ctx context.Context, documentID int64, chunks []models.Chunk) ([]int64, error)
	Search(ctx context.Context, chatbotID int64, embedding []float32, limit int) ([]models.SearchResult, error)
	Hydrate(ctx context.Context, chatbotID int64, results []models.SearchResult) ([]models.SimilarDocument, error)
}

type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, chatbotID, documentID int64) (*models.Document, error)
	ListDocuments(ctx context.Context, chatbotID int64) ([]models.DocumentSummary, error)
	SetDocumentStatus(ctx context.Context, documentID int64, status models.DocumentStatus) error
	DeleteDocument(ctx context.Context, chatbotID, documentID int64) error
	DeleteChunks(ctx context.Context, documentID int64) error
}

type ChatbotStore interface {
	CreateChatbot(ctx context.Context, bot *models.Chatbot) error
	GetChatbot(ctx context.Context, id int64) (*models.Chatbot, error)
}

type ChatStore interface {
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	History(ctx context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error)
}

// Repository is the persistence layer the pipeline runs against.
type Repository interface {
	VectorStore
	DocumentStore
	ChatbotStore
	ChatStore
	Close()
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Processor interface {
	Process(docs []models.SourceDocument) ([]models.ProcessedDocument, error)
}
