package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/internal/types"
	"github.com/xhad/ragbot/pkg/github"
	"github.com/xhad/ragbot/pkg/zlog"
)

var (
	ErrNothingToIngest     = errors.New("content, URL, or GitHub repository is required")
	ErrGitHubNotConfigured = errors.New("GitHub integration is not configured, set GITHUB_TOKEN to enable repository ingestion")
	ErrCrawlerDisabled     = errors.New("website crawling is not configured")
)

const (
	SourceManual  = "manual"
	SourceGitHub  = "github"
	SourceWebsite = "website"
)

// Crawler fetches a documentation site starting at url.
type Crawler interface {
	Scrape(ctx context.Context, url string) ([]models.SourceDocument, error)
}

// RepoExtractor fetches documentation files from a repository.
type RepoExtractor interface {
	Extract(ctx context.Context, owner, repo string) ([]models.SourceDocument, error)
}

type Store interface {
	GetChatbot(ctx context.Context, id int64) (*models.Chatbot, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, chatbotID, documentID int64) (*models.Document, error)
	SetDocumentStatus(ctx context.Context, documentID int64, status models.DocumentStatus) error
	StoreChunks(ctx context.Context, documentID int64, chunks []models.Chunk) ([]int64, error)
}

type Request struct {
	Content     string                 `json:"content,omitempty"`
	URL         string                 `json:"url,omitempty"`
	ContentType string                 `json:"contentType,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	SourceType  string                 `json:"sourceType,omitempty"`
	GithubRepo  string                 `json:"githubRepo,omitempty"`
}

type Result struct {
	Message         string            `json:"message"`
	Documents       []models.Document `json:"documents"`
	TotalDocuments  int               `json:"totalDocuments"`
	TotalEmbeddings int               `json:"totalEmbeddings"`
}

// ProgressFunc is called after each document is stored.
type ProgressFunc func(done, total int, doc models.Document)

type Service struct {
	store     Store
	embedder  types.Embedder
	processor types.Processor
	crawler   Crawler
	repos     RepoExtractor
}

// New wires an ingestion service. crawler and repos may be nil, in which case
// the matching source types are rejected.
func New(store Store, embedder types.Embedder, processor types.Processor, crawler Crawler, repos RepoExtractor) *Service {
	return &Service{
		store:     store,
		embedder:  embedder,
		processor: processor,
		crawler:   crawler,
		repos:     repos,
	}
}

// Resolve turns a request into the source documents to ingest.
func (s *Service) Resolve(ctx context.Context, req Request) ([]models.SourceDocument, error) {
	switch {
	case req.SourceType == SourceGitHub && req.GithubRepo != "":
		owner, repo, err := github.ParseRepo(req.GithubRepo)
		if err != nil {
			return nil, err
		}
		if s.repos == nil {
			return nil, ErrGitHubNotConfigured
		}
		docs, err := s.repos.Extract(ctx, owner, repo)
		if err != nil {
			return nil, fmt.Errorf("failed to extract documentation files from GitHub repository: %w", err)
		}
		return withMetadata(docs, req.Metadata), nil

	case req.SourceType == SourceWebsite && req.URL != "":
		if s.crawler == nil {
			return nil, ErrCrawlerDisabled
		}
		docs, err := s.crawler.Scrape(ctx, req.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to crawl %s: %w", req.URL, err)
		}
		return withMetadata(docs, req.Metadata), nil

	case req.Content != "":
		contentType := req.ContentType
		if contentType == "" {
			contentType = "web_page"
		}
		return []models.SourceDocument{{
			URL:         req.URL,
			Content:     req.Content,
			ContentType: contentType,
			Metadata:    merge(nil, req.Metadata),
		}}, nil

	default:
		return nil, ErrNothingToIngest
	}
}

// withMetadata layers caller metadata over the extractor's own keys.
func withMetadata(docs []models.SourceDocument, extra map[string]interface{}) []models.SourceDocument {
	for i := range docs {
		docs[i].Metadata = merge(docs[i].Metadata, extra)
	}
	return docs
}

func merge(base, extra map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}

// Ingest stores every resolved document for chatbotID, one at a time. A
// document whose chunks fail to embed or store is marked failed and stops the
// run; documents already stored stay complete.
func (s *Service) Ingest(ctx context.Context, chatbotID int64, req Request, progress ProgressFunc) (*Result, error) {
	if _, err := s.store.GetChatbot(ctx, chatbotID); err != nil {
		return nil, err
	}

	sources, err := s.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	zlog.Info("ingesting documents",
		zap.Int64("chatbot_id", chatbotID),
		zap.String("source", sourceLabel(req)),
		zap.Int("documents", len(sources)))

	result := &Result{
		Message:   "Documents ingested successfully",
		Documents: make([]models.Document, 0, len(sources)),
	}

	for i, src := range sources {
		doc := &models.Document{
			ChatbotID:   chatbotID,
			URL:         src.URL,
			Title:       src.Title,
			Content:     src.Content,
			ContentType: src.ContentType,
			Metadata:    src.Metadata,
			Status:      models.StatusPending,
		}
		if err := s.store.CreateDocument(ctx, doc); err != nil {
			return nil, fmt.Errorf("failed to create document: %w", err)
		}

		n, err := s.process(ctx, doc)
		if err != nil {
			return nil, err
		}

		result.Documents = append(result.Documents, *doc)
		result.TotalEmbeddings += n
		if progress != nil {
			progress(i+1, len(sources), *doc)
		}
	}

	result.TotalDocuments = len(result.Documents)
	return result, nil
}

// Retry re-runs chunking and embedding for a stored document, replacing any
// chunks it already has.
func (s *Service) Retry(ctx context.Context, chatbotID, documentID int64) (*Result, error) {
	doc, err := s.store.GetDocument(ctx, chatbotID, documentID)
	if err != nil {
		return nil, err
	}

	n, err := s.process(ctx, doc)
	if err != nil {
		return nil, err
	}

	return &Result{
		Message:         "Document re-ingested successfully",
		Documents:       []models.Document{*doc},
		TotalDocuments:  1,
		TotalEmbeddings: n,
	}, nil
}

// process chunks, embeds and stores one document. The chunk write and the
// switch to complete happen together; any failure marks the document failed.
func (s *Service) process(ctx context.Context, doc *models.Document) (int, error) {
	fail := func(err error) (int, error) {
		// the request context may already be cancelled
		statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if serr := s.store.SetDocumentStatus(statusCtx, doc.ID, models.StatusFailed); serr != nil {
			zlog.Error("failed to mark document failed", zap.Int64("document_id", doc.ID), zap.Error(serr))
		} else {
			doc.Status = models.StatusFailed
		}
		zlog.Error("document ingestion failed",
			zap.Int64("chatbot_id", doc.ChatbotID),
			zap.Int64("document_id", doc.ID),
			zap.Error(err))
		return 0, fmt.Errorf("document %d: %w", doc.ID, err)
	}

	processed, err := s.processor.Process([]models.SourceDocument{{
		URL:         doc.URL,
		Title:       doc.Title,
		Content:     doc.Content,
		ContentType: doc.ContentType,
		Metadata:    doc.Metadata,
	}})
	if err != nil {
		return fail(err)
	}

	var texts []string
	if len(processed) > 0 {
		texts = processed[0].Chunks
	}

	var embeddings [][]float32
	if len(texts) > 0 {
		embeddings, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fail(err)
		}
	}

	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			DocumentID: doc.ID,
			Index:      i,
			Content:    text,
			Embedding:  embeddings[i],
		}
	}

	if _, err := s.store.StoreChunks(ctx, doc.ID, chunks); err != nil {
		return fail(err)
	}
	doc.Status = models.StatusComplete

	zlog.Info("document ingested",
		zap.Int64("chatbot_id", doc.ChatbotID),
		zap.Int64("document_id", doc.ID),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func sourceLabel(req Request) string {
	switch {
	case req.SourceType == SourceGitHub && req.GithubRepo != "":
		return SourceGitHub
	case req.SourceType == SourceWebsite && req.URL != "":
		return SourceWebsite
	default:
		return SourceManual
	}
}
