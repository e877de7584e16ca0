package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ChatMessage struct {
	ID        int64                  `json:"id"`
	ChatbotID int64                  `json:"chatbotId"`
	SessionID string                 `json:"sessionId"`
	Role      Role                   `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"createdAt"`
}

// SourceRef records which chunk grounded an assistant turn.
type SourceRef struct {
	ChunkID    int64   `json:"chunkId"`
	DocumentID int64   `json:"documentId"`
	Similarity float64 `json:"similarity"`
}
