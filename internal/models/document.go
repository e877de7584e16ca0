package models

import "time"

// EmbeddingDim is the fixed length of every stored or queried embedding.
const EmbeddingDim = 768

type DocumentStatus string

const (
	StatusPending  DocumentStatus = "pending"
	StatusComplete DocumentStatus = "complete"
	StatusFailed   DocumentStatus = "failed"
)

type Chatbot struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SourceDocument is the raw text handed to ingestion by an extractor or a caller.
type SourceDocument struct {
	URL         string
	Title       string
	Content     string
	ContentType string
	Metadata    map[string]interface{}
}

type Document struct {
	ID          int64                  `json:"id"`
	ChatbotID   int64                  `json:"chatbotId"`
	URL         string                 `json:"url,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Content     string                 `json:"content"`
	ContentType string                 `json:"contentType"`
	Metadata    map[string]interface{} `json:"metadata"`
	Status      DocumentStatus         `json:"status"`
	CreatedAt   time.Time              `json:"createdAt"`
}

// DocumentSummary is a document listing row with its stored chunk count.
type DocumentSummary struct {
	ID             int64          `json:"id"`
	URL            string         `json:"url,omitempty"`
	ContentType    string         `json:"contentType"`
	Status         DocumentStatus `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
	EmbeddingCount int            `json:"embeddingCount"`
}

type Chunk struct {
	ID         int64                  `json:"id"`
	DocumentID int64                  `json:"documentId"`
	Index      int                    `json:"index"`
	Content    string                 `json:"content"`
	Embedding  []float32              `json:"-"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// ProcessedDocument is a source document split into chunks, ready to be embedded.
type ProcessedDocument struct {
	SourceDocument
	Chunks []string
}

type SearchResult struct {
	ChunkID    int64   `json:"chunkId"`
	DocumentID int64   `json:"documentId"`
	Content    string  `json:"content"`
	Distance   float64 `json:"distance"`
}

type SimilarDocument struct {
	SearchResult
	Similarity float64   `json:"similarity"`
	Document   *Document `json:"document,omitempty"`
}
