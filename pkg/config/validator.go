package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/xhad/ragbot/internal/models"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid setting. Missing provider keys are not an
// error here; calls fail with a configuration error instead.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		errors = append(errors, ValidationError{
			Field:   "server.mode",
			Message: fmt.Sprintf("unknown mode %q", c.Server.Mode),
		})
	}

	// LLM
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 16384 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 16384",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.LLM.OpenAI.BaseURL != "" && !isHTTPURL(c.LLM.OpenAI.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.openai.base_url",
			Message: "invalid OpenAI base URL",
		})
	}

	if c.LLM.Ollama.Enabled && !isHTTPURL(c.LLM.Ollama.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.ollama.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	// Database
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the postgres driver",
			})
		} else if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown driver %q, use postgres or memory", c.Database.Driver),
		})
	}

	if c.Database.VectorDim != models.EmbeddingDim {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: fmt.Sprintf("vector_dim must be %d", models.EmbeddingDim),
		})
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q", c.Log.Level),
		})
	}

	return errors
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
