package retrieval_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/retrieval"
	"github.com/xhad/ragbot/pkg/store"
)

// keywordEmbedder maps each known keyword to its own axis.
type keywordEmbedder struct {
	axes map[string]int
	err  error
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, models.EmbeddingDim)
	for word, i := range e.axes {
		if text == word {
			v[i] = 1
		}
	}
	return v, nil
}

func (e *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func seed(t *testing.T, repo *store.MemoryStore, emb *keywordEmbedder, chatbotID int64, contents ...string) {
	t.Helper()
	ctx := context.Background()

	doc := &models.Document{ChatbotID: chatbotID, Content: "seed"}
	require.NoError(t, repo.CreateDocument(ctx, doc))

	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		v, err := emb.Embed(ctx, c)
		require.NoError(t, err)
		chunks[i] = models.Chunk{Index: i, Content: c, Embedding: v}
	}
	_, err := repo.StoreChunks(ctx, doc.ID, chunks)
	require.NoError(t, err)
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore(0)
	emb := &keywordEmbedder{axes: map[string]int{"apples": 0, "pears": 1, "plums": 2, "figs": 3}}

	bot := &models.Chatbot{Name: "fruit"}
	require.NoError(t, repo.CreateChatbot(ctx, bot))
	seed(t, repo, emb, bot.ID, "apples", "pears", "plums", "figs")

	svc := retrieval.New(emb, repo)
	docs, err := svc.FindSimilar(ctx, "pears", bot.ID, 0)
	require.NoError(t, err)
	require.Len(t, docs, retrieval.DefaultLimit)

	assert.Equal(t, "pears", docs[0].Content)
	assert.InDelta(t, 1.0, docs[0].Similarity, 1e-9)
	require.NotNil(t, docs[0].Document)
	assert.Equal(t, bot.ID, docs[0].Document.ChatbotID)
}

func TestFindSimilar_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore(0)
	bot := &models.Chatbot{Name: "empty"}
	require.NoError(t, repo.CreateChatbot(ctx, bot))

	svc := retrieval.New(&keywordEmbedder{}, repo)
	docs, err := svc.FindSimilar(ctx, "anything", bot.ID, 3)
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestFindSimilar_OtherTenantInvisible(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemoryStore(0)
	emb := &keywordEmbedder{axes: map[string]int{"secret": 0}}

	owner := &models.Chatbot{Name: "owner"}
	require.NoError(t, repo.CreateChatbot(ctx, owner))
	stranger := &models.Chatbot{Name: "stranger"}
	require.NoError(t, repo.CreateChatbot(ctx, stranger))
	seed(t, repo, emb, owner.ID, "secret")

	docs, err := retrieval.New(emb, repo).FindSimilar(ctx, "secret", stranger.ID, 3)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestFindSimilar_EmbeddingFailureIsLabelled(t *testing.T) {
	repo := store.NewMemoryStore(0)
	svc := retrieval.New(&keywordEmbedder{err: errors.New("boom")}, repo)

	_, err := svc.FindSimilar(context.Background(), "q", 1, 3)
	require.Error(t, err)

	stage, ok := llm.StageOf(err)
	assert.True(t, ok)
	assert.Equal(t, llm.StageEmbedding, stage)
	assert.Contains(t, err.Error(), "embedding: boom")
}
