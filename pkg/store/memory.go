package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/xhad/ragbot/internal/models"
)

// MemoryStore keeps every table in process memory. Used for tests and for
// running without Postgres.
type MemoryStore struct {
	mu  sync.RWMutex
	dim int

	nextID    int64
	chatbots  map[int64]models.Chatbot
	documents map[int64]models.Document
	chunks    []models.Chunk
	messages  []models.ChatMessage
}

func NewMemoryStore(dim int) *MemoryStore {
	if dim <= 0 {
		dim = models.EmbeddingDim
	}
	return &MemoryStore{
		dim:       dim,
		chatbots:  make(map[int64]models.Chatbot),
		documents: make(map[int64]models.Document),
	}
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateChatbot(_ context.Context, bot *models.Chatbot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bot.ID = m.id()
	bot.CreatedAt = time.Now()
	m.chatbots[bot.ID] = *bot
	return nil
}

func (m *MemoryStore) GetChatbot(_ context.Context, id int64) (*models.Chatbot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bot, ok := m.chatbots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrChatbotNotFound, id)
	}
	return &bot, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chatbots[doc.ChatbotID]; !ok {
		return fmt.Errorf("%w: %d", ErrChatbotNotFound, doc.ChatbotID)
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.ContentType == "" {
		doc.ContentType = "text"
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc.ID = m.id()
	doc.CreatedAt = time.Now()
	m.documents[doc.ID] = *doc
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, chatbotID, documentID int64) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[documentID]
	if !ok || doc.ChatbotID != chatbotID {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return &doc, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, chatbotID int64) ([]models.DocumentSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[int64]int)
	for _, c := range m.chunks {
		counts[c.DocumentID]++
	}

	summaries := []models.DocumentSummary{}
	for _, doc := range m.documents {
		if doc.ChatbotID != chatbotID {
			continue
		}
		summaries = append(summaries, models.DocumentSummary{
			ID:             doc.ID,
			URL:            doc.URL,
			ContentType:    doc.ContentType,
			Status:         doc.Status,
			CreatedAt:      doc.CreatedAt,
			EmbeddingCount: counts[doc.ID],
		})
	}
	// newest first, matching the Postgres ordering
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID > summaries[j].ID })
	return summaries, nil
}

func (m *MemoryStore) SetDocumentStatus(_ context.Context, documentID int64, status models.DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[documentID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	doc.Status = status
	m.documents[documentID] = doc
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, chatbotID, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[documentID]
	if !ok || doc.ChatbotID != chatbotID {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	delete(m.documents, documentID)
	m.deleteChunksLocked(documentID)
	return nil
}

func (m *MemoryStore) DeleteChunks(_ context.Context, documentID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteChunksLocked(documentID)
	return nil
}

func (m *MemoryStore) deleteChunksLocked(documentID int64) {
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
}

func (m *MemoryStore) Store(_ context.Context, documentID int64, content string, embedding []float32) (int64, error) {
	if err := checkDim(embedding, m.dim); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.documents[documentID]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	index := 0
	for _, c := range m.chunks {
		if c.DocumentID == documentID && c.Index >= index {
			index = c.Index + 1
		}
	}

	chunk := models.Chunk{
		ID:         m.id(),
		DocumentID: documentID,
		Index:      index,
		Content:    content,
		Embedding:  append([]float32(nil), embedding...),
		CreatedAt:  time.Now(),
	}
	m.chunks = append(m.chunks, chunk)
	return chunk.ID, nil
}

func (m *MemoryStore) StoreChunks(_ context.Context, documentID int64, chunks []models.Chunk) ([]int64, error) {
	for _, c := range chunks {
		if err := checkDim(c.Embedding, m.dim); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}

	m.deleteChunksLocked(documentID)

	now := time.Now()
	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		c.ID = m.id()
		c.DocumentID = documentID
		c.Embedding = append([]float32(nil), c.Embedding...)
		c.CreatedAt = now
		m.chunks = append(m.chunks, c)
		ids = append(ids, c.ID)
	}

	doc.Status = models.StatusComplete
	m.documents[documentID] = doc
	return ids, nil
}

func (m *MemoryStore) Search(_ context.Context, chatbotID int64, embedding []float32, limit int) ([]models.SearchResult, error) {
	if err := checkDim(embedding, m.dim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []models.SearchResult{}
	for _, c := range m.chunks {
		doc, ok := m.documents[c.DocumentID]
		if !ok || doc.ChatbotID != chatbotID || doc.Status != models.StatusComplete {
			continue
		}
		results = append(results, models.SearchResult{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Content:    c.Content,
			Distance:   cosineDistance(embedding, c.Embedding),
		})
	}

	// chunk ids grow with insertion, so this matches ORDER BY distance, id
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) Hydrate(_ context.Context, chatbotID int64, results []models.SearchResult) ([]models.SimilarDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make(map[int64]*models.Document)
	for _, r := range results {
		doc, ok := m.documents[r.DocumentID]
		if !ok || doc.ChatbotID != chatbotID {
			continue
		}
		docs[doc.ID] = &doc
	}
	return hydrate(results, docs), nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.chatbots[msg.ChatbotID]; !ok {
		return fmt.Errorf("%w: %d", ErrChatbotNotFound, msg.ChatbotID)
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	msg.ID = m.id()
	msg.CreatedAt = time.Now()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *MemoryStore) History(_ context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := []models.ChatMessage{}
	for _, msg := range m.messages {
		if msg.ChatbotID == chatbotID && msg.SessionID == sessionID {
			history = append(history, msg)
		}
	}
	return history, nil
}

// cosineDistance matches pgvector's <=>: 1 - cos(a, b). A zero vector is at
// distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
