package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/internal/types"
	"github.com/xhad/ragbot/pkg/store"
)

// axis returns a unit vector along dimension i, optionally blended with j.
func axis(i int) []float32 {
	v := make([]float32, models.EmbeddingDim)
	v[i] = 1
	return v
}

func blend(i, j int, wi, wj float32) []float32 {
	v := make([]float32, models.EmbeddingDim)
	v[i] = wi
	v[j] = wj
	return v
}

type fixture struct {
	repo types.Repository
	ctx  context.Context
}

func (f *fixture) chatbot(t *testing.T, name string) int64 {
	t.Helper()
	bot := &models.Chatbot{Name: name}
	require.NoError(t, f.repo.CreateChatbot(f.ctx, bot))
	require.NotZero(t, bot.ID)
	return bot.ID
}

func (f *fixture) document(t *testing.T, chatbotID int64, embeddings map[string][]float32, order ...string) (int64, []int64) {
	t.Helper()
	doc := &models.Document{ChatbotID: chatbotID, Content: "source text", ContentType: "text"}
	require.NoError(t, f.repo.CreateDocument(f.ctx, doc))
	assert.Equal(t, models.StatusPending, doc.Status)

	chunks := make([]models.Chunk, 0, len(order))
	for i, content := range order {
		chunks = append(chunks, models.Chunk{Index: i, Content: content, Embedding: embeddings[content]})
	}
	ids, err := f.repo.StoreChunks(f.ctx, doc.ID, chunks)
	require.NoError(t, err)
	require.Len(t, ids, len(order))
	return doc.ID, ids
}

func runRepositorySuite(t *testing.T, newRepo func(t *testing.T) types.Repository) {
	setup := func(t *testing.T) *fixture {
		return &fixture{repo: newRepo(t), ctx: context.Background()}
	}

	t.Run("TenantIsolation", func(t *testing.T) {
		f := setup(t)
		botA := f.chatbot(t, "alpha")
		botB := f.chatbot(t, "beta")

		docA, _ := f.document(t, botA, map[string][]float32{"alpha fact": axis(0)}, "alpha fact")
		f.document(t, botB, map[string][]float32{"beta fact": axis(0)}, "beta fact")

		results, err := f.repo.Search(f.ctx, botA, axis(0), 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "alpha fact", results[0].Content)
		assert.Equal(t, docA, results[0].DocumentID)

		// hydrating another tenant's hits yields nothing
		hydrated, err := f.repo.Hydrate(f.ctx, botB, results)
		require.NoError(t, err)
		assert.Empty(t, hydrated)
	})

	t.Run("OrderingAndTies", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "ordering")

		embeddings := map[string][]float32{
			"far":    axis(1),
			"exact":  axis(0),
			"near":   blend(0, 1, 0.8, 0.6),
			"exact2": axis(0),
		}
		_, ids := f.document(t, bot, embeddings, "far", "exact", "near", "exact2")

		results, err := f.repo.Search(f.ctx, bot, axis(0), 10)
		require.NoError(t, err)
		require.Len(t, results, 4)

		contents := []string{results[0].Content, results[1].Content, results[2].Content, results[3].Content}
		assert.Equal(t, []string{"exact", "exact2", "near", "far"}, contents)
		assert.Equal(t, ids[1], results[0].ChunkID)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
		assert.InDelta(t, 0.2, results[2].Distance, 1e-6)
		assert.InDelta(t, 1, results[3].Distance, 1e-6)
	})

	t.Run("LimitNeverPads", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "limit")
		f.document(t, bot, map[string][]float32{"a": axis(0), "b": axis(1), "c": axis(2)}, "a", "b", "c")

		results, err := f.repo.Search(f.ctx, bot, axis(0), 2)
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = f.repo.Search(f.ctx, bot, axis(0), 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("EmptyCorpus", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "empty")

		results, err := f.repo.Search(f.ctx, bot, axis(0), 3)
		require.NoError(t, err)
		assert.Empty(t, results)

		hydrated, err := f.repo.Hydrate(f.ctx, bot, results)
		require.NoError(t, err)
		assert.Empty(t, hydrated)
	})

	t.Run("PendingDocumentsAreHidden", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "pending")

		doc := &models.Document{ChatbotID: bot, Content: "draft"}
		require.NoError(t, f.repo.CreateDocument(f.ctx, doc))
		_, err := f.repo.Store(f.ctx, doc.ID, "draft chunk", axis(0))
		require.NoError(t, err)

		results, err := f.repo.Search(f.ctx, bot, axis(0), 3)
		require.NoError(t, err)
		assert.Empty(t, results)

		require.NoError(t, f.repo.SetDocumentStatus(f.ctx, doc.ID, models.StatusComplete))
		results, err = f.repo.Search(f.ctx, bot, axis(0), 3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "draft chunk", results[0].Content)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "dims")
		doc := &models.Document{ChatbotID: bot, Content: "x"}
		require.NoError(t, f.repo.CreateDocument(f.ctx, doc))

		short := make([]float32, 384)

		_, err := f.repo.Store(f.ctx, doc.ID, "x", short)
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)

		_, err = f.repo.StoreChunks(f.ctx, doc.ID, []models.Chunk{{Content: "x", Embedding: short}})
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)

		_, err = f.repo.Search(f.ctx, bot, short, 3)
		assert.ErrorIs(t, err, store.ErrDimensionMismatch)

		got, err := f.repo.GetDocument(f.ctx, bot, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	})

	t.Run("HydrateDropsVanishedDocuments", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "hydrate")
		keep, _ := f.document(t, bot, map[string][]float32{"kept": axis(0)}, "kept")
		gone, _ := f.document(t, bot, map[string][]float32{"gone": blend(0, 1, 0.8, 0.6)}, "gone")

		results, err := f.repo.Search(f.ctx, bot, axis(0), 3)
		require.NoError(t, err)
		require.Len(t, results, 2)

		require.NoError(t, f.repo.DeleteDocument(f.ctx, bot, gone))

		hydrated, err := f.repo.Hydrate(f.ctx, bot, results)
		require.NoError(t, err)
		require.Len(t, hydrated, 1)
		assert.Equal(t, keep, hydrated[0].Document.ID)
		assert.InDelta(t, 1-hydrated[0].Distance, hydrated[0].Similarity, 1e-9)
	})

	t.Run("DocumentLifecycle", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "lifecycle")
		other := f.chatbot(t, "other")

		docID, _ := f.document(t, bot, map[string][]float32{"one": axis(0), "two": axis(1)}, "one", "two")

		docs, err := f.repo.ListDocuments(f.ctx, bot)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 2, docs[0].EmbeddingCount)
		assert.Equal(t, models.StatusComplete, docs[0].Status)

		// re-storing replaces the chunk set
		_, err = f.repo.StoreChunks(f.ctx, docID, []models.Chunk{{Index: 0, Content: "only", Embedding: axis(2)}})
		require.NoError(t, err)
		docs, err = f.repo.ListDocuments(f.ctx, bot)
		require.NoError(t, err)
		assert.Equal(t, 1, docs[0].EmbeddingCount)

		err = f.repo.DeleteDocument(f.ctx, other, docID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, err, store.ErrDocumentNotFound)
		assert.NotErrorIs(t, err, store.ErrChatbotNotFound)

		require.NoError(t, f.repo.DeleteDocument(f.ctx, bot, docID))
		_, err = f.repo.GetDocument(f.ctx, bot, docID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		results, err := f.repo.Search(f.ctx, bot, axis(2), 3)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("ChatHistory", func(t *testing.T) {
		f := setup(t)
		bot := f.chatbot(t, "history")

		turns := []models.ChatMessage{
			{ChatbotID: bot, SessionID: "s1", Role: models.RoleUser, Content: "hi"},
			{ChatbotID: bot, SessionID: "s2", Role: models.RoleUser, Content: "elsewhere"},
			{ChatbotID: bot, SessionID: "s1", Role: models.RoleAssistant, Content: "hello",
				Metadata: map[string]interface{}{"sources": []interface{}{}}},
		}
		for i := range turns {
			require.NoError(t, f.repo.AppendMessage(f.ctx, &turns[i]))
		}

		history, err := f.repo.History(f.ctx, bot, "s1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, models.RoleUser, history[0].Role)
		assert.Equal(t, "hello", history[1].Content)
		assert.Contains(t, history[1].Metadata, "sources")

		history, err = f.repo.History(f.ctx, bot, "missing")
		require.NoError(t, err)
		assert.Empty(t, history)
	})

	t.Run("UnknownChatbot", func(t *testing.T) {
		f := setup(t)
		_, err := f.repo.GetChatbot(f.ctx, 987654321)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, err, store.ErrChatbotNotFound)
		assert.NotErrorIs(t, err, store.ErrDocumentNotFound)
	})
}
