package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/zlog"
)

var ErrMessageRequired = errors.New("message is required")

type Retriever interface {
	FindSimilar(ctx context.Context, query string, chatbotID int64, limit int) ([]models.SimilarDocument, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, error)
}

type Store interface {
	GetChatbot(ctx context.Context, id int64) (*models.Chatbot, error)
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error
	History(ctx context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error)
}

type Config struct {
	// ContextLimit is the number of chunks retrieved per question.
	ContextLimit int
	// GreetingSentences caps the length of replies to greetings.
	GreetingSentences int
}

type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type ChatResponse struct {
	Response  string             `json:"response"`
	SessionID string             `json:"sessionId"`
	Sources   []models.SourceRef `json:"-"`
}

type Orchestrator struct {
	config    Config
	retriever Retriever
	generator Generator
	store     Store
}

func New(config Config, retriever Retriever, generator Generator, store Store) *Orchestrator {
	if config.ContextLimit <= 0 {
		config.ContextLimit = 3
	}
	if config.GreetingSentences <= 0 {
		config.GreetingSentences = 3
	}
	return &Orchestrator{
		config:    config,
		retriever: retriever,
		generator: generator,
		store:     store,
	}
}

// Chat answers one user message. The user turn is persisted before
// generation, so a failed generation still leaves it in the history.
func (o *Orchestrator) Chat(ctx context.Context, chatbotID int64, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrMessageRequired
	}

	bot, err := o.store.GetChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	userTurn := &models.ChatMessage{
		ChatbotID: chatbotID,
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   req.Message,
	}
	if err := o.store.AppendMessage(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	greeting := IsGreeting(req.Message)
	sources := []models.SourceRef{}

	var prompt llm.Prompt
	if greeting {
		prompt = BuildGreetingPrompt(bot.Name, req.Message)
	} else {
		docs, err := o.retriever.FindSimilar(ctx, req.Message, chatbotID, o.config.ContextLimit)
		if err != nil {
			zlog.Error("retrieval failed", zap.Int64("chatbot_id", chatbotID), zap.Error(err))
			return nil, err
		}

		contents := make([]string, len(docs))
		for i, d := range docs {
			contents[i] = d.Content
			sources = append(sources, models.SourceRef{
				ChunkID:    d.ChunkID,
				DocumentID: d.DocumentID,
				Similarity: d.Similarity,
			})
		}
		prompt = BuildPrompt(bot.Name, strings.Join(contents, "\n\n"), req.Message)
	}

	reply, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		zlog.Error("generation failed",
			zap.Int64("chatbot_id", chatbotID),
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, err
	}

	if greeting {
		reply = Truncate(reply, o.config.GreetingSentences)
	}

	assistantTurn := &models.ChatMessage{
		ChatbotID: chatbotID,
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply,
		Metadata:  map[string]interface{}{"sources": sources},
	}
	if err := o.store.AppendMessage(ctx, assistantTurn); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	zlog.Info("chat answered",
		zap.Int64("chatbot_id", chatbotID),
		zap.String("session_id", sessionID),
		zap.Bool("greeting", greeting),
		zap.Int("sources", len(sources)))

	return &ChatResponse{
		Response:  reply,
		SessionID: sessionID,
		Sources:   sources,
	}, nil
}

// History returns a session's turns in the order they were written.
func (o *Orchestrator) History(ctx context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error) {
	if _, err := o.store.GetChatbot(ctx, chatbotID); err != nil {
		return nil, err
	}
	return o.store.History(ctx, chatbotID, sessionID)
}
