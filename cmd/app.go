package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/types"
	"github.com/xhad/ragbot/pkg/chat"
	cfgPkg "github.com/xhad/ragbot/pkg/config"
	"github.com/xhad/ragbot/pkg/github"
	"github.com/xhad/ragbot/pkg/ingest"
	"github.com/xhad/ragbot/pkg/llm"
	"github.com/xhad/ragbot/pkg/processor"
	"github.com/xhad/ragbot/pkg/retrieval"
	"github.com/xhad/ragbot/pkg/scraper"
	"github.com/xhad/ragbot/pkg/store"
	"github.com/xhad/ragbot/pkg/zlog"
)

// app holds the wired pipeline shared by every command.
type app struct {
	repo   types.Repository
	chat   *chat.Orchestrator
	ingest *ingest.Service
}

func buildApp(ctx context.Context, config *cfgPkg.Config, onPage func(url string)) (*app, error) {
	repo, err := store.Open(ctx, store.Config{
		Driver:      config.Database.Driver,
		URL:         config.Database.URL,
		VectorDim:   config.Database.VectorDim,
		SearchLimit: config.Database.SearchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	providers := providersConfig(config.LLM)

	embedders, err := llm.NewEmbeddingProviders(ctx, providers)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize embedding providers: %w", err)
	}
	generators, err := llm.NewGenerationProviders(ctx, providers)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to initialize generation providers: %w", err)
	}

	embedder := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Dimensions: config.Database.VectorDim,
		Timeout:    config.LLM.Timeout,
	}, embedders...)
	chatEngine := llm.NewWithConfig(llm.ChatConfig{Timeout: config.LLM.Timeout}, generators...)

	if len(embedder.Providers()) == 0 {
		zlog.Warn("no embedding provider configured; ingestion and retrieval will fail")
	}
	zlog.Info("providers configured",
		zap.Strings("embedding", embedder.Providers()),
		zap.Strings("generation", chatEngine.Providers()))

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.Processor.ChunkSize,
		ChunkOverlap: config.Processor.ChunkOverlap,
	})

	crawler := scraper.NewWithConfig(scraper.ScraperConfig{
		MaxDepth:          config.Scraper.MaxDepth,
		RateLimit:         config.Scraper.RateLimit,
		IgnorePatterns:    config.Scraper.IgnorePatterns,
		AllowedExtensions: config.Scraper.AllowedExtensions,
		Timeout:           config.Scraper.Timeout,
		OnProgress:        onPage,
	})

	// a nil extractor makes GitHub ingestion report ErrGitHubNotConfigured
	var repos ingest.RepoExtractor
	if config.GitHub.Token != "" {
		extractor, err := github.NewWithConfig(github.ExtractorConfig{
			Token:   config.GitHub.Token,
			BaseURL: config.GitHub.BaseURL,
		})
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to initialize GitHub client: %w", err)
		}
		repos = extractor
	}

	retriever := retrieval.New(embedder, repo)

	return &app{
		repo: repo,
		chat: chat.New(chat.Config{
			ContextLimit:      config.Chat.ContextLimit,
			GreetingSentences: config.Chat.GreetingSentences,
		}, retriever, chatEngine, repo),
		ingest: ingest.New(repo, embedder, &proc, crawler, repos),
	}, nil
}

func providersConfig(c cfgPkg.LLMConfig) llm.ProvidersConfig {
	return llm.ProvidersConfig{
		OpenAI: llm.OpenAIConfig{
			APIKey:         c.OpenAI.APIKey,
			BaseURL:        c.OpenAI.BaseURL,
			EmbeddingModel: c.OpenAI.EmbeddingModel,
			ChatModel:      c.OpenAI.ChatModel,
			Temperature:    c.Temperature,
			MaxTokens:      c.MaxTokens,
		},
		GoogleAI: llm.GoogleAIConfig{
			APIKey:         c.GoogleAI.APIKey,
			EmbeddingModel: c.GoogleAI.EmbeddingModel,
			ChatModel:      c.GoogleAI.ChatModel,
			Temperature:    c.Temperature,
			MaxTokens:      c.MaxTokens,
		},
		Ollama: llm.OllamaConfig{
			BaseURL:        c.Ollama.BaseURL,
			EmbeddingModel: c.Ollama.EmbeddingModel,
			ChatModel:      c.Ollama.ChatModel,
			Temperature:    c.Temperature,
			MaxTokens:      c.MaxTokens,
		},
		OllamaEnabled: c.Ollama.Enabled,
		Timeout:       c.Timeout,
	}
}

func (a *app) Close() {
	a.repo.Close()
}
