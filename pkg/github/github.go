package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/zlog"
)

var (
	ErrInvalidRepo  = errors.New("invalid GitHub repository format, use owner/repository (e.g. microsoft/TypeScript)")
	ErrRepoNotFound = errors.New("GitHub repository not found")
	ErrBadToken     = errors.New("invalid GitHub token")
)

var defaultDocDirs = []string{"docs", "documentation", "doc", "guide", "guides"}

var defaultExtensions = []string{
	"md", "mdx", "txt", "html", "htm", "rst", "adoc", "asciidoc",
	"wiki", "mediawiki", "tex", "latex",
}

var docFilenames = map[string]bool{
	"readme": true, "license": true, "changelog": true, "contributing": true, "authors": true,
}

var contentTypes = map[string]string{
	"md":   "markdown",
	"mdx":  "markdown",
	"html": "web_page",
	"htm":  "web_page",
}

type ExtractorConfig struct {
	Token      string
	BaseURL    string
	DocDirs    []string
	Extensions []string
	HTTPClient *http.Client
}

// Extractor collects documentation files from a repository's root and its
// documentation directories.
type Extractor struct {
	config     ExtractorConfig
	client     *gh.Client
	extensions map[string]bool
	docDirs    map[string]bool
}

func NewWithConfig(config ExtractorConfig) (*Extractor, error) {
	if len(config.DocDirs) == 0 {
		config.DocDirs = defaultDocDirs
	}
	if len(config.Extensions) == 0 {
		config.Extensions = defaultExtensions
	}

	client := gh.NewClient(config.HTTPClient)
	if config.Token != "" {
		client = client.WithAuthToken(config.Token)
	}
	if config.BaseURL != "" {
		base := config.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %v", err)
		}
		client.BaseURL = u
	}

	e := &Extractor{
		config:     config,
		client:     client,
		extensions: make(map[string]bool),
		docDirs:    make(map[string]bool),
	}
	for _, ext := range config.Extensions {
		e.extensions[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	for _, dir := range config.DocDirs {
		e.docDirs[dir] = true
	}
	return e, nil
}

// ParseRepo splits "owner/repo".
func ParseRepo(s string) (owner, repo string, err error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 2 {
		return "", "", ErrInvalidRepo
	}
	owner, repo = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if owner == "" || repo == "" {
		return "", "", ErrInvalidRepo
	}
	return owner, repo, nil
}

// Extract returns every documentation file in the repository root plus the
// documentation directories, walked recursively.
func (e *Extractor) Extract(ctx context.Context, owner, repo string) ([]models.SourceDocument, error) {
	info, _, err := e.client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, e.wrap(err, owner, repo)
	}
	branch := info.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	_, root, _, err := e.client.Repositories.GetContents(ctx, owner, repo, "", nil)
	if err != nil {
		return nil, e.wrap(err, owner, repo)
	}

	var docs []models.SourceDocument
	for _, item := range root {
		switch item.GetType() {
		case "dir":
			if e.docDirs[item.GetName()] {
				docs = e.walk(ctx, owner, repo, branch, item.GetPath(), docs)
			}
		case "file":
			if !e.isDocumentation(item.GetName()) {
				continue
			}
			doc, err := e.fetch(ctx, owner, repo, branch, item.GetPath())
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
	}

	zlog.Info("extracted repository documentation",
		zap.String("repo", owner+"/"+repo),
		zap.Int("files", len(docs)))
	return docs, nil
}

// walk descends into dir. Failures inside documentation directories are
// logged and skipped.
func (e *Extractor) walk(ctx context.Context, owner, repo, branch, dir string, docs []models.SourceDocument) []models.SourceDocument {
	_, entries, _, err := e.client.Repositories.GetContents(ctx, owner, repo, dir, nil)
	if err != nil {
		zlog.Warn("failed to list directory", zap.String("path", dir), zap.Error(err))
		return docs
	}

	for _, item := range entries {
		switch item.GetType() {
		case "dir":
			docs = e.walk(ctx, owner, repo, branch, item.GetPath(), docs)
		case "file":
			if !e.isDocumentation(item.GetName()) {
				continue
			}
			doc, err := e.fetch(ctx, owner, repo, branch, item.GetPath())
			if err != nil {
				zlog.Warn("failed to fetch file", zap.String("path", item.GetPath()), zap.Error(err))
				continue
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

func (e *Extractor) fetch(ctx context.Context, owner, repo, branch, filePath string) (models.SourceDocument, error) {
	file, _, _, err := e.client.Repositories.GetContents(ctx, owner, repo, filePath, nil)
	if err != nil {
		return models.SourceDocument{}, e.wrap(err, owner, repo)
	}
	if file == nil {
		return models.SourceDocument{}, fmt.Errorf("%s is not a file", filePath)
	}

	content, err := file.GetContent()
	if err != nil {
		return models.SourceDocument{}, fmt.Errorf("failed to decode %s: %v", filePath, err)
	}

	ext := extension(filePath)
	return models.SourceDocument{
		URL:         fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, filePath),
		Title:       path.Base(filePath),
		Content:     content,
		ContentType: ContentType(ext),
		Metadata: map[string]interface{}{
			"source": "github",
			"owner":  owner,
			"repo":   repo,
			"path":   filePath,
		},
	}, nil
}

func (e *Extractor) isDocumentation(name string) bool {
	lower := strings.ToLower(name)
	if e.extensions[extension(lower)] {
		return true
	}
	return path.Ext(lower) == "" && docFilenames[lower]
}

func (e *Extractor) wrap(err error, owner, repo string) error {
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		switch respErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s/%s", ErrRepoNotFound, owner, repo)
		case http.StatusUnauthorized:
			return ErrBadToken
		}
	}
	return fmt.Errorf("failed to fetch GitHub repository contents: %w", err)
}

func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// ContentType maps a file extension to the stored document content type.
func ContentType(ext string) string {
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "text"
}
