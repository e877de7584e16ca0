package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/ragbot/internal/models"
)

type VectorStoreConfig struct {
	ConnString  string
	VectorDim   int
	SearchLimit int
}

// VectorStore is the Postgres + pgvector repository.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.VectorDim == 0 {
		config.VectorDim = models.EmbeddingDim
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 5
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS chatbots (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id BIGSERIAL PRIMARY KEY,
			chatbot_id BIGINT NOT NULL REFERENCES chatbots(id) ON DELETE CASCADE,
			url TEXT,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT 'text',
			metadata JSONB NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS documents_chatbot_idx ON documents (chatbot_id, status)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, vs.config.VectorDim),
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks
			USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id BIGSERIAL PRIMARY KEY,
			chatbot_id BIGINT NOT NULL REFERENCES chatbots(id) ON DELETE CASCADE,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (chatbot_id, session_id, id)`,
	}

	for _, stmt := range statements {
		if _, err := vs.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %v", err)
		}
	}
	return nil
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

func (vs *VectorStore) CreateChatbot(ctx context.Context, bot *models.Chatbot) error {
	err := vs.pool.QueryRow(ctx,
		`INSERT INTO chatbots (name, description) VALUES ($1, $2) RETURNING id, created_at`,
		sanitizeText(bot.Name), sanitizeText(bot.Description),
	).Scan(&bot.ID, &bot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chatbot: %w", err)
	}
	return nil
}

func (vs *VectorStore) GetChatbot(ctx context.Context, id int64) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := vs.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at FROM chatbots WHERE id = $1`, id,
	).Scan(&bot.ID, &bot.Name, &bot.Description, &bot.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrChatbotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chatbot: %w", err)
	}
	return &bot, nil
}

func (vs *VectorStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	if doc.ContentType == "" {
		doc.ContentType = "text"
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}

	var url *string
	if doc.URL != "" {
		u := sanitizeText(doc.URL)
		url = &u
	}

	err := vs.pool.QueryRow(ctx,
		`INSERT INTO documents (chatbot_id, url, title, content, content_type, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		doc.ChatbotID, url, sanitizeText(doc.Title), sanitizeText(doc.Content),
		doc.ContentType, doc.Metadata, string(doc.Status),
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

const documentColumns = `id, chatbot_id, COALESCE(url, ''), title, content, content_type, metadata, status, created_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var doc models.Document
	var status string
	err := row.Scan(&doc.ID, &doc.ChatbotID, &doc.URL, &doc.Title, &doc.Content,
		&doc.ContentType, &doc.Metadata, &status, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	return &doc, nil
}

func (vs *VectorStore) GetDocument(ctx context.Context, chatbotID, documentID int64) (*models.Document, error) {
	doc, err := scanDocument(vs.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND chatbot_id = $2`,
		documentID, chatbotID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return doc, nil
}

func (vs *VectorStore) ListDocuments(ctx context.Context, chatbotID int64) ([]models.DocumentSummary, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT d.id, COALESCE(d.url, ''), d.content_type, d.status, d.created_at, COUNT(c.id)
		FROM documents d
		LEFT JOIN chunks c ON c.document_id = d.id
		WHERE d.chatbot_id = $1
		GROUP BY d.id
		ORDER BY d.created_at DESC, d.id DESC`, chatbotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	summaries := []models.DocumentSummary{}
	for rows.Next() {
		var s models.DocumentSummary
		var status string
		var count int64
		if err := rows.Scan(&s.ID, &s.URL, &s.ContentType, &status, &s.CreatedAt, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.Status = models.DocumentStatus(status)
		s.EmbeddingCount = int(count)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (vs *VectorStore) SetDocumentStatus(ctx context.Context, documentID int64, status models.DocumentStatus) error {
	tag, err := vs.pool.Exec(ctx, `UPDATE documents SET status = $1 WHERE id = $2`, string(status), documentID)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return nil
}

func (vs *VectorStore) DeleteDocument(ctx context.Context, chatbotID, documentID int64) error {
	tag, err := vs.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1 AND chatbot_id = $2`, documentID, chatbotID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	return nil
}

func (vs *VectorStore) DeleteChunks(ctx context.Context, documentID int64) error {
	if _, err := vs.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Store appends a single chunk to a document.
func (vs *VectorStore) Store(ctx context.Context, documentID int64, content string, embedding []float32) (int64, error) {
	if err := checkDim(embedding, vs.config.VectorDim); err != nil {
		return 0, err
	}

	var id int64
	err := vs.pool.QueryRow(ctx, `
		INSERT INTO chunks (document_id, chunk_index, content, embedding)
		SELECT $1::bigint, COALESCE(MAX(chunk_index) + 1, 0), $2::text, $3::vector FROM chunks WHERE document_id = $1
		RETURNING id`,
		documentID, sanitizeText(content), pgvector.NewVector(embedding),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert chunk: %w", err)
	}
	return id, nil
}

// StoreChunks replaces the document's chunk set and marks it complete in one
// transaction.
func (vs *VectorStore) StoreChunks(ctx context.Context, documentID int64, chunks []models.Chunk) ([]int64, error) {
	for _, c := range chunks {
		if err := checkDim(c.Embedding, vs.config.VectorDim); err != nil {
			return nil, fmt.Errorf("chunk %d: %w", c.Index, err)
		}
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock document: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return nil, fmt.Errorf("failed to clear chunks: %w", err)
	}

	ids := make([]int64, 0, len(chunks))
	for _, c := range chunks {
		metadata := c.Metadata
		if metadata == nil {
			metadata = map[string]interface{}{}
		}

		var id int64
		err := tx.QueryRow(ctx, `
			INSERT INTO chunks (document_id, chunk_index, content, embedding, metadata)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			documentID, c.Index, sanitizeText(c.Content), pgvector.NewVector(c.Embedding), metadata,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
		ids = append(ids, id)
	}

	if _, err := tx.Exec(ctx, `UPDATE documents SET status = $1 WHERE id = $2`,
		string(models.StatusComplete), documentID); err != nil {
		return nil, fmt.Errorf("failed to mark document complete: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %v", err)
	}
	return ids, nil
}

// Search ranks the chatbot's completed chunks by cosine distance to embedding.
func (vs *VectorStore) Search(ctx context.Context, chatbotID int64, embedding []float32, limit int) ([]models.SearchResult, error) {
	if err := checkDim(embedding, vs.config.VectorDim); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = vs.config.SearchLimit
	}

	rows, err := vs.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.content, c.embedding <=> $1 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.chatbot_id = $2 AND d.status = $3
		ORDER BY distance, c.id
		LIMIT $4`,
		pgvector.NewVector(embedding), chatbotID, string(models.StatusComplete), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.SearchResult{}
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Hydrate attaches parent documents to results. Results whose document no
// longer exists under chatbotID are dropped.
func (vs *VectorStore) Hydrate(ctx context.Context, chatbotID int64, results []models.SearchResult) ([]models.SimilarDocument, error) {
	if len(results) == 0 {
		return []models.SimilarDocument{}, nil
	}

	ids := make([]int64, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.DocumentID)
	}

	rows, err := vs.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE chatbot_id = $1 AND id = ANY($2)`,
		chatbotID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	defer rows.Close()

	docs := make(map[int64]*models.Document)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hydrate(results, docs), nil
}

func hydrate(results []models.SearchResult, docs map[int64]*models.Document) []models.SimilarDocument {
	out := make([]models.SimilarDocument, 0, len(results))
	for _, r := range results {
		doc, ok := docs[r.DocumentID]
		if !ok {
			continue
		}
		out = append(out, models.SimilarDocument{
			SearchResult: r,
			Similarity:   similarity(r),
			Document:     doc,
		})
	}
	return out
}

func (vs *VectorStore) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.Metadata == nil {
		msg.Metadata = map[string]interface{}{}
	}
	err := vs.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (chatbot_id, session_id, role, content, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		msg.ChatbotID, msg.SessionID, string(msg.Role), sanitizeText(msg.Content), msg.Metadata,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

func (vs *VectorStore) History(ctx context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error) {
	rows, err := vs.pool.Query(ctx, `
		SELECT id, chatbot_id, session_id, role, content, metadata, created_at
		FROM chat_messages
		WHERE chatbot_id = $1 AND session_id = $2
		ORDER BY id`, chatbotID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	messages := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		var role string
		if err := rows.Scan(&m.ID, &m.ChatbotID, &m.SessionID, &role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Role = models.Role(role)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
