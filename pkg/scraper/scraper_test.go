package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var filler = strings.Repeat("Documentation text that is long enough to keep. ", 4)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/": `<html><head><title>Home</title><meta name="description" content="the docs"></head>
			<body>
				<nav><a href="/guide/">Guide</a></nav>
				<main><h1>Welcome</h1><p>` + filler + `</p>
					<a href="/api.html#section">API</a>
					<a href="/api.html">API again</a>
					<a href="/manual.pdf">PDF</a>
					<a href="/private/secret.html">Secret</a>
					<a href="https://elsewhere.example.org/">Elsewhere</a>
					<a href="mailto:docs@example.com">Mail</a>
				</main>
				<script>var tracking = true;</script>
			</body></html>`,
		"/guide/": `<html><head><title>Guide</title></head><body><article>` + filler +
			`<a href="/guide/deep.html">Deeper</a></article></body></html>`,
		"/api.html":           `<html><head><title>API</title></head><body><div id="content">Tiny page.</div></body></html>`,
		"/guide/deep.html":    `<html><head><title>Deep</title></head><body><main>` + filler + `</main></body></html>`,
		"/private/secret.html": `<html><body><main>` + filler + `</main></body></html>`,
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestScrapeBreadthFirst(t *testing.T) {
	server := newSite(t)

	var visited []string
	s := NewWithConfig(ScraperConfig{
		MaxDepth:       2,
		RateLimit:      1000,
		IgnorePatterns: []string{"/private/"},
		OnProgress:     func(u string) { visited = append(visited, u) },
	})

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)

	// depth 2 reaches the start page and its direct links only
	assert.ElementsMatch(t, []string{
		server.URL + "/",
		server.URL + "/guide/",
		server.URL + "/api.html",
	}, visited)

	// api.html is too short to keep
	require.Len(t, docs, 2)
	home := docs[0]
	assert.Equal(t, server.URL+"/", home.URL)
	assert.Equal(t, "Home", home.Title)
	assert.Equal(t, "web_page", home.ContentType)
	assert.Contains(t, home.Content, "Welcome")
	assert.NotContains(t, home.Content, "tracking")
	assert.NotContains(t, home.Content, "Guide")
	assert.Equal(t, "website", home.Metadata["source"])
	assert.Equal(t, "the docs", home.Metadata["description"])
	assert.Equal(t, 0, home.Metadata["depth"])

	assert.Equal(t, "Guide", docs[1].Title)
	assert.Equal(t, 1, docs[1].Metadata["depth"])
}

func TestScrapeSingleLevel(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{MaxDepth: 1, RateLimit: 1000})

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Home", docs[0].Title)
}

func TestScrapeDeeper(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{MaxDepth: 3, RateLimit: 1000, IgnorePatterns: []string{"/private/"}})

	docs, err := s.Scrape(context.Background(), server.URL+"/")
	require.NoError(t, err)

	titles := make([]string, len(docs))
	for i, d := range docs {
		titles[i] = d.Title
	}
	assert.Equal(t, []string{"Home", "Guide", "Deep"}, titles)
}

func TestScrapeUnreachableStart(t *testing.T) {
	server := newSite(t)
	s := NewWithConfig(ScraperConfig{RateLimit: 1000})

	_, err := s.Scrape(context.Background(), server.URL+"/missing/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = s.Scrape(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestShouldProcessURL(t *testing.T) {
	s := NewWithConfig(ScraperConfig{
		IgnorePatterns:    []string{"/ignore/", "private"},
		AllowedExtensions: []string{".html", "/", ""},
	})
	c := &crawl{baseHost: "example.com", visited: map[string]bool{}}

	tests := []struct {
		url      string
		expected bool
	}{
		{"https://example.com/docs/", true},
		{"https://example.com/page.html", true},
		{"https://example.com/docs/intro", true},
		{"https://example.com", true},
		{"https://example.com/ignore/page.html", false},
		{"https://other-domain.com/page.html", false},
		{"https://example.com/file.pdf", false},
		{"mailto:someone@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.shouldProcessURL(c, tt.url))
		})
	}
}

func TestCleanContent(t *testing.T) {
	s := New()
	assert.Equal(t, "Hello world", s.cleanContent("  Hello \n\t world  Accept Cookies "))
}
