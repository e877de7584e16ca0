package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/xhad/ragbot/internal/models"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Mode is the gin mode: debug, release or test.
	Mode        string   `yaml:"mode"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

type GoogleAIConfig struct {
	APIKey         string `yaml:"api_key"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

type OllamaConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
	ChatModel      string `yaml:"chat_model"`
}

type LLMConfig struct {
	Timeout     time.Duration  `yaml:"timeout"`
	MaxTokens   int            `yaml:"max_tokens"`
	Temperature float64        `yaml:"temperature"`
	OpenAI      OpenAIConfig   `yaml:"openai"`
	GoogleAI    GoogleAIConfig `yaml:"googleai"`
	Ollama      OllamaConfig   `yaml:"ollama"`
}

type DatabaseConfig struct {
	// Driver is postgres or memory.
	Driver      string `yaml:"driver"`
	URL         string `yaml:"url"`
	VectorDim   int    `yaml:"vector_dim"`
	SearchLimit int    `yaml:"search_limit"`
}

type ScraperConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	RateLimit         float64       `yaml:"rate_limit"`
	Timeout           time.Duration `yaml:"timeout"`
	IgnorePatterns    []string      `yaml:"ignore_patterns"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type ChatConfig struct {
	ContextLimit      int `yaml:"context_limit"`
	GreetingSentences int `yaml:"greeting_sentences"`
}

type GitHubConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Database  DatabaseConfig  `yaml:"database"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Chat      ChatConfig      `yaml:"chat"`
	GitHub    GitHubConfig    `yaml:"github"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads path, or the first config file found in the default
// locations, then applies .env and environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %v", err)
	}

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/ragbot/config.yaml"),
			"/etc/ragbot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	// the file is decoded over the defaults so explicit zero values survive
	config := newConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(config)
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() *Config {
	config := newConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

// newConfig returns the defaults, including those for settings where zero is
// a meaningful value and applyDefaults cannot tell it from unset.
func newConfig() *Config {
	config := &Config{
		LLM:       LLMConfig{Temperature: 0.7},
		Processor: ProcessorConfig{ChunkOverlap: 200},
	}
	applyDefaults(config)
	return config
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.Mode == "" {
		config.Server.Mode = "release"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}

	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 30 * time.Second
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.OpenAI.EmbeddingModel == "" {
		config.LLM.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if config.LLM.OpenAI.ChatModel == "" {
		config.LLM.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if config.LLM.GoogleAI.EmbeddingModel == "" {
		config.LLM.GoogleAI.EmbeddingModel = "text-embedding-004"
	}
	if config.LLM.GoogleAI.ChatModel == "" {
		config.LLM.GoogleAI.ChatModel = "gemini-2.0-flash"
	}
	if config.LLM.Ollama.BaseURL == "" {
		config.LLM.Ollama.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Ollama.EmbeddingModel == "" {
		config.LLM.Ollama.EmbeddingModel = "nomic-embed-text:latest"
	}
	if config.LLM.Ollama.ChatModel == "" {
		config.LLM.Ollama.ChatModel = "mistral"
	}

	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = models.EmbeddingDim
	}
	if config.Database.SearchLimit == 0 {
		config.Database.SearchLimit = 5
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if config.Scraper.Timeout == 0 {
		config.Scraper.Timeout = 10 * time.Second
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}

	if config.Chat.ContextLimit == 0 {
		config.Chat.ContextLimit = 3
	}
	if config.Chat.GreetingSentences == 0 {
		config.Chat.GreetingSentences = 3
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.OpenAI.APIKey = key
	}
	if key := os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY"); key != "" {
		config.LLM.GoogleAI.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.Ollama.BaseURL = baseURL
		config.LLM.Ollama.Enabled = true
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
