package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xhad/ragbot/internal/models"
	"github.com/xhad/ragbot/pkg/zlog"
)

type ScraperConfig struct {
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	// MinContentLength drops pages with less extracted text than this.
	MinContentLength int
	UserAgent        string
	OnProgress       func(url string)
}

// Scraper crawls a documentation site breadth first, staying on the start
// URL's host.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 2
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.MinContentLength == 0 {
		config.MinContentLength = 100
	}
	if config.UserAgent == "" {
		config.UserAgent = "Mozilla/5.0 (compatible; ragbot/1.0)"
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

type crawl struct {
	baseHost string
	visited  map[string]bool
}

func (s *Scraper) shouldProcessURL(c *crawl, urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return false
	}
	if parsedURL.Host != c.baseHost {
		return false
	}

	// last path segment without a dot counts as ""
	path := strings.ToLower(parsedURL.Path)
	lastSegment := path[strings.LastIndex(path, "/")+1:]
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" {
			if !strings.Contains(lastSegment, ".") {
				validExt = true
				break
			}
			continue
		}
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(strings.Join(strings.Fields(content), " "))
}

func (s *Scraper) extractMainContent(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, noscript").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	if strings.TrimSpace(content) == "" {
		content = doc.Find("body").Text()
	}

	return s.cleanContent(content)
}

// Scrape fetches startURL and follows same-host links level by level up to
// MaxDepth levels. Pages that fail to load are skipped; an error is returned
// only when nothing could be fetched at all.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.SourceDocument, error) {
	parsed, err := url.Parse(startURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid start URL %q", startURL)
	}

	c := &crawl{
		baseHost: parsed.Host,
		visited:  make(map[string]bool),
	}

	var documents []models.SourceDocument
	var firstErr error
	fetched := 0

	level := []string{normalize(parsed)}
	for depth := 0; depth < s.config.MaxDepth && len(level) > 0; depth++ {
		var next []string

		for _, pageURL := range level {
			if c.visited[pageURL] || !s.shouldProcessURL(c, pageURL) {
				continue
			}
			c.visited[pageURL] = true

			page, links, err := s.fetch(ctx, pageURL, depth)
			if err != nil {
				if ctx.Err() != nil {
					return documents, ctx.Err()
				}
				if firstErr == nil {
					firstErr = err
				}
				zlog.Warn("failed to crawl page", zap.String("url", pageURL), zap.Error(err))
				continue
			}
			fetched++

			if len([]rune(page.Content)) > s.config.MinContentLength {
				documents = append(documents, page)
			}
			if depth < s.config.MaxDepth-1 {
				next = append(next, links...)
			}
		}

		level = next
	}

	if fetched == 0 && firstErr != nil {
		return nil, fmt.Errorf("failed to crawl documentation site: %w", firstErr)
	}

	zlog.Info("crawl finished",
		zap.String("start", startURL),
		zap.Int("pages", fetched),
		zap.Int("documents", len(documents)))
	return documents, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL string, depth int) (models.SourceDocument, []string, error) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(pageURL)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return models.SourceDocument{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return models.SourceDocument{}, nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.SourceDocument{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SourceDocument{}, nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return models.SourceDocument{}, nil, fmt.Errorf("unsupported content type %q for URL: %s", ct, pageURL)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.SourceDocument{}, nil, err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	description, _ := doc.Find(`meta[name="description"]`).Attr("content")
	links := extractLinks(doc, resp.Request.URL)
	content := s.extractMainContent(doc)

	return models.SourceDocument{
		URL:         pageURL,
		Title:       title,
		Content:     content,
		ContentType: "web_page",
		Metadata: map[string]interface{}{
			"source":       "website",
			"title":        title,
			"description":  description,
			"depth":        depth,
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}, links, nil
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		abs := normalize(base.ResolveReference(ref))
		if !seen[abs] {
			seen[abs] = true
			links = append(links, abs)
		}
	})

	return links
}

// normalize drops the fragment so anchors on one page are visited once.
func normalize(u *url.URL) string {
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return clean.String()
}
