package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/chat"
	"github.com/xhad/ragbot/pkg/ingest"
	"github.com/xhad/ragbot/pkg/zlog"
)

type ChatService interface {
	Chat(ctx context.Context, chatbotID int64, req chat.ChatRequest) (*chat.ChatResponse, error)
	History(ctx context.Context, chatbotID int64, sessionID string) ([]models.ChatMessage, error)
}

type IngestService interface {
	Ingest(ctx context.Context, chatbotID int64, req ingest.Request, progress ingest.ProgressFunc) (*ingest.Result, error)
	Retry(ctx context.Context, chatbotID, documentID int64) (*ingest.Result, error)
}

type Store interface {
	CreateChatbot(ctx context.Context, bot *models.Chatbot) error
	GetChatbot(ctx context.Context, id int64) (*models.Chatbot, error)
	ListDocuments(ctx context.Context, chatbotID int64) ([]models.DocumentSummary, error)
	DeleteDocument(ctx context.Context, chatbotID, documentID int64) error
}

type Config struct {
	Addr        string
	Mode        string
	CORSOrigins []string
	// ShutdownTimeout bounds how long Run waits for in-flight requests.
	ShutdownTimeout time.Duration
}

type Server struct {
	config Config
	engine *gin.Engine
	server *http.Server

	chat   ChatService
	ingest IngestService
	store  Store
}

func New(config Config, chatSvc ChatService, ingestSvc IngestService, store Store) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config: config,
		engine: gin.New(),
		chat:   chatSvc,
		ingest: ingestSvc,
		store:  store,
	}

	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerMiddlewares() {
	s.engine.Use(gin.Recovery())
	s.engine.Use(loggingMiddleware())

	corsConfig := cors.DefaultConfig()
	if slices.Contains(s.config.CORSOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.config.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	s.engine.Use(cors.New(corsConfig))
}

func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		zlog.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()))
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)

	s.engine.POST("/chatbots", s.handleCreateChatbot)

	bots := s.engine.Group("/chatbots/:id")
	{
		bots.GET("", s.handleGetChatbot)

		bots.POST("/ingest", s.handleIngest)

		bots.POST("/chat", s.handleChat)
		bots.GET("/chat", s.handleHistory)
		bots.GET("/ws", s.handleWebSocket)

		bots.GET("/documents", s.handleListDocuments)
		bots.DELETE("/documents/:docId", s.handleDeleteDocument)
		bots.POST("/documents/:docId/retry", s.handleRetryDocument)
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("starting HTTP server", zap.String("addr", s.config.Addr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zlog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
