package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/internal/types"
	"github.com/xhad/ragbot/pkg/chat"
	"github.com/xhad/ragbot/pkg/ingest"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/processor"
	"github.com/xhad/ragbot/pkg/retrieval"
	"github.com/xhad/ragbot/pkg/store"
	"github.com/xhad/ragbot/server"
)

type unitEmbedder struct{}

func (unitEmbedder) Embed(context.Context, string) ([]float32, error) {
	v := make([]float32, models.EmbeddingDim)
	v[0] = 1
	return v, nil
}

func (e unitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type stubGenerator struct {
	reply string
	err   error
}

func (g *stubGenerator) Generate(context.Context, llm.Prompt) (string, error) {
	return g.reply, g.err
}

type harness struct {
	handler http.Handler
	repo    *store.MemoryStore
	gen     *stubGenerator
	bot     *models.Chatbot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithEmbedder(t, unitEmbedder{})
}

func newHarnessWithEmbedder(t *testing.T, embedder types.Embedder) *harness {
	t.Helper()

	repo := store.NewMemoryStore(models.EmbeddingDim)
	gen := &stubGenerator{reply: "Widgets are blue."}
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 1000, ChunkOverlap: 200})

	chatSvc := chat.New(chat.Config{}, retrieval.New(embedder, repo), gen, repo)
	ingestSvc := ingest.New(repo, embedder, &proc, nil, nil)

	bot := &models.Chatbot{Name: "Docs"}
	require.NoError(t, repo.CreateChatbot(context.Background(), bot))

	srv := server.New(server.Config{Mode: gin.TestMode, CORSOrigins: []string{"https://app.example.com"}}, chatSvc, ingestSvc, repo)
	return &harness{handler: srv.Handler(), repo: repo, gen: gen, bot: bot}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) path(format string, args ...interface{}) string {
	return fmt.Sprintf("/chatbots/%d", h.bot.ID) + fmt.Sprintf(format, args...)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestChatbots(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/chatbots", `{"name":"Support","description":"Help desk"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var bot models.Chatbot
	decode(t, rec, &bot)
	assert.NotZero(t, bot.ID)
	assert.Equal(t, "Support", bot.Name)

	rec = h.do(t, http.MethodGet, fmt.Sprintf("/chatbots/%d", bot.ID), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/chatbots", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/chatbots/999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Chatbot not found", errorOf(t, rec))

	rec = h.do(t, http.MethodGet, "/chatbots/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid chatbot ID", errorOf(t, rec))
}

func TestChatFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, h.path("/ingest"), `{"content":"Widgets are blue and ship in boxes of ten."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ingest.Result
	decode(t, rec, &result)
	assert.Equal(t, 1, result.TotalDocuments)
	assert.Equal(t, 1, result.TotalEmbeddings)

	rec = h.do(t, http.MethodPost, h.path("/chat"), `{"message":"What color are widgets?"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp chat.ChatResponse
	decode(t, rec, &resp)
	assert.Equal(t, "Widgets are blue.", resp.Response)
	require.NotEmpty(t, resp.SessionID)
	assert.NotContains(t, rec.Body.String(), "sources")

	rec = h.do(t, http.MethodGet, h.path("/chat?sessionId=%s", resp.SessionID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.ChatMessage
	decode(t, rec, &history)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
}

func TestChatErrors(t *testing.T) {
	quota := &llm.StageError{Stage: llm.StageGeneration, Err: &llm.ChainError{Failures: []*llm.ProviderError{
		{Provider: "openai", Kind: llm.KindQuota, Err: errors.New("insufficient_quota")},
		{Provider: "googleai", Kind: llm.KindTransient, Err: errors.New("unavailable")},
	}}}
	auth := &llm.StageError{Stage: llm.StageGeneration, Err: &llm.ChainError{Failures: []*llm.ProviderError{
		{Provider: "openai", Kind: llm.KindAuth, Err: errors.New("bad key")},
	}}}
	timeout := &llm.StageError{Stage: llm.StageGeneration, Err: &llm.ChainError{Failures: []*llm.ProviderError{
		{Provider: "openai", Kind: llm.KindTimeout, Err: context.DeadlineExceeded},
	}}}
	none := &llm.StageError{Stage: llm.StageGeneration, Err: llm.ErrNoProvider}

	tests := []struct {
		name   string
		body   string
		genErr error
		status int
	}{
		{name: "missing message", body: `{"message":""}`, status: http.StatusBadRequest},
		{name: "malformed body", body: `{"message":`, status: http.StatusBadRequest},
		{name: "quota", body: `{"message":"hi there, what is new"}`, genErr: quota, status: http.StatusTooManyRequests},
		{name: "auth", body: `{"message":"what is new"}`, genErr: auth, status: http.StatusUnauthorized},
		{name: "timeout", body: `{"message":"what is new"}`, genErr: timeout, status: http.StatusGatewayTimeout},
		{name: "no provider", body: `{"message":"what is new"}`, genErr: none, status: http.StatusInternalServerError},
		{name: "unexpected", body: `{"message":"what is new"}`, genErr: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.gen.err = tt.genErr

			rec := h.do(t, http.MethodPost, h.path("/chat"), tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}

	t.Run("unknown chatbot", func(t *testing.T) {
		h := newHarness(t)
		rec := h.do(t, http.MethodPost, "/chatbots/42/chat", `{"message":"hello"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHistoryRequiresSession(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, h.path("/chat"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "session ID is required", errorOf(t, rec))
}

func TestIngestValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, h.path("/ingest"), `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, h.path("/ingest"), `{"sourceType":"github","githubRepo":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, h.path("/ingest"), `{"sourceType":"github","githubRepo":"acme/docs"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingProvider struct {
	name string
	err  error
}

func (p failingProvider) Name() string { return p.name }

func (p failingProvider) Batch() bool { return true }

func (p failingProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, p.err
}

func TestIngestProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		primary error
		backup  error
		status  int
	}{
		{
			name:    "quota",
			primary: errors.New("error, status code: 429, message: You exceeded your current quota (insufficient_quota)"),
			backup:  errors.New("googleapi: Error 500: internal"),
			status:  http.StatusTooManyRequests,
		},
		{
			name:    "auth",
			primary: errors.New("error, status code: 401, message: Incorrect API key provided"),
			backup:  errors.New("rpc error: code = PermissionDenied desc = API key not valid"),
			status:  http.StatusUnauthorized,
		},
		{
			name:    "timeout",
			primary: context.DeadlineExceeded,
			backup:  errors.New("dial tcp: connection refused"),
			status:  http.StatusGatewayTimeout,
		},
		{
			name:    "transient",
			primary: errors.New("error, status code: 500, message: oops"),
			backup:  errors.New("dial tcp: connection refused"),
			status:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := llm.NewEmbedderWithConfig(llm.EmbedderConfig{},
				failingProvider{name: "openai", err: tt.primary},
				failingProvider{name: "googleai", err: tt.backup},
			)
			h := newHarnessWithEmbedder(t, embedder)

			rec := h.do(t, http.MethodPost, h.path("/ingest"), `{"content":"Widgets are blue."}`)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotContains(t, errorOf(t, rec), "status code")

			docs, err := h.repo.ListDocuments(context.Background(), h.bot.ID)
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, models.StatusFailed, docs[0].Status)
			assert.Zero(t, docs[0].EmbeddingCount)
		})
	}
}

func TestDocuments(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.do(t, http.MethodPost, h.path("/ingest"), `{"content":"First document."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var result ingest.Result
	decode(t, rec, &result)
	docID := result.Documents[0].ID

	failed := &models.Document{ChatbotID: h.bot.ID, Content: "Second document.", Status: models.StatusPending}
	require.NoError(t, h.repo.CreateDocument(ctx, failed))
	require.NoError(t, h.repo.SetDocumentStatus(ctx, failed.ID, models.StatusFailed))

	rec = h.do(t, http.MethodGet, h.path("/documents"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []models.DocumentSummary
	decode(t, rec, &docs)
	require.Len(t, docs, 2)
	assert.Equal(t, failed.ID, docs[0].ID)
	assert.Equal(t, models.StatusFailed, docs[0].Status)
	assert.Equal(t, 1, docs[1].EmbeddingCount)

	rec = h.do(t, http.MethodPost, h.path("/documents/%d/retry", failed.ID), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &result)
	assert.Equal(t, "Document re-ingested successfully", result.Message)

	rec = h.do(t, http.MethodDelete, h.path("/documents/%d", docID), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, h.path("/documents/%d", docID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", errorOf(t, rec))

	rec = h.do(t, http.MethodPost, h.path("/documents/%d/retry", docID), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", errorOf(t, rec))

	rec = h.do(t, http.MethodGet, "/chatbots/77/documents", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Chatbot not found", errorOf(t, rec))
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, h.path("/chat"), nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketChat(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + h.path("/ws")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() server.Message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg server.Message
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "What color are widgets?"}))
	assert.Equal(t, "status", read().Type)
	first := read()
	assert.Equal(t, "response", first.Type)
	assert.Equal(t, "Widgets are blue.", first.Content)
	require.NotEmpty(t, first.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": ""}))
	assert.Equal(t, "status", read().Type)
	failed := read()
	assert.Equal(t, "error", failed.Type)
	assert.Equal(t, first.SessionID, failed.SessionID)

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "And boxes?"}))
	read()
	second := read()
	assert.Equal(t, first.SessionID, second.SessionID)

	history, err := h.repo.History(context.Background(), h.bot.ID, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
