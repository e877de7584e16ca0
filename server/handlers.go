package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/chat"
	"github.com/xhad/ragbot/pkg/github"
	"github.com/xhad/ragbot/pkg/ingest"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/store"
	"github.com/xhad/ragbot/pkg/zlog"
)

var (
	errInvalidID       = errors.New("invalid chatbot ID")
	errInvalidDocID    = errors.New("invalid document ID")
	errInvalidBody     = errors.New("invalid request body")
	errSessionRequired = errors.New("session ID is required")
	errNameRequired    = errors.New("name is required")
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createChatbotRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateChatbot(c *gin.Context) {
	var req createChatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "create chatbot", errInvalidBody)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(c, "create chatbot", errNameRequired)
		return
	}

	bot := &models.Chatbot{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if err := s.store.CreateChatbot(c.Request.Context(), bot); err != nil {
		writeError(c, "create chatbot", err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (s *Server) handleGetChatbot(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}
	bot, err := s.store.GetChatbot(c.Request.Context(), id)
	if err != nil {
		writeError(c, "get chatbot", err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (s *Server) handleIngest(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}

	var req ingest.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "ingest document", errInvalidBody)
		return
	}

	result, err := s.ingest.Ingest(c.Request.Context(), id, req, nil)
	if err != nil {
		writeError(c, "ingest document", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleChat(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}

	var req chat.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "chat with bot", errInvalidBody)
		return
	}

	resp, err := s.chat.Chat(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, "chat with bot", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHistory(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		writeError(c, "fetch chat history", errSessionRequired)
		return
	}

	history, err := s.chat.History(c.Request.Context(), id, sessionID)
	if err != nil {
		writeError(c, "fetch chat history", err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) handleListDocuments(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}

	if _, err := s.store.GetChatbot(c.Request.Context(), id); err != nil {
		writeError(c, "fetch documents", err)
		return
	}

	docs, err := s.store.ListDocuments(c.Request.Context(), id)
	if err != nil {
		writeError(c, "fetch documents", err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteDocument(c.Request.Context(), id, docID); err != nil {
		writeError(c, "delete document", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

func (s *Server) handleRetryDocument(c *gin.Context) {
	id, ok := chatbotID(c)
	if !ok {
		return
	}
	docID, ok := documentID(c)
	if !ok {
		return
	}

	result, err := s.ingest.Retry(c.Request.Context(), id, docID)
	if err != nil {
		writeError(c, "retry document", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func chatbotID(c *gin.Context) (int64, bool) {
	return pathID(c, "id", errInvalidID)
}

func documentID(c *gin.Context) (int64, bool) {
	return pathID(c, "docId", errInvalidDocID)
}

func pathID(c *gin.Context, name string, invalid error) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: invalid.Error()})
		return 0, false
	}
	return id, true
}

// statusFor maps a service error to an HTTP status and a short client message.
func statusFor(op string, err error) (int, string) {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, errSessionRequired),
		errors.Is(err, errNameRequired),
		errors.Is(err, chat.ErrMessageRequired),
		errors.Is(err, ingest.ErrNothingToIngest),
		errors.Is(err, github.ErrInvalidRepo):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrDocumentNotFound):
		return http.StatusNotFound, "Document not found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Chatbot not found"
	case errors.Is(err, ingest.ErrGitHubNotConfigured):
		return http.StatusInternalServerError, err.Error()
	}

	switch llm.KindOf(err) {
	case llm.KindQuota:
		return http.StatusTooManyRequests, "AI service quota exceeded. Please try again later."
	case llm.KindAuth:
		return http.StatusUnauthorized, "Authentication error with AI service."
	case llm.KindTimeout:
		return http.StatusGatewayTimeout, "AI service timed out. Please try again later."
	case llm.KindConfig:
		return http.StatusInternalServerError, "No AI provider is configured."
	}

	return http.StatusInternalServerError, "Failed to " + op
}

func writeError(c *gin.Context, op string, err error) {
	status, msg := statusFor(op, err)
	if status >= http.StatusInternalServerError {
		zlog.Error("request failed",
			zap.String("op", op),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	} else {
		zlog.Debug("request rejected", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, errorResponse{Error: msg})
}
