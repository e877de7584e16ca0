package llm

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// jsonGuard rejects response bodies that are not JSON (HTML error pages from
// proxies, captive portals or a wrong base URL) before an SDK tries to decode them.
type jsonGuard struct {
	next http.RoundTripper
}

func (g jsonGuard) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := g.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if !looksLikeJSON(resp.Header.Get("Content-Type"), body) {
		return nil, fmt.Errorf("%w: %s %s returned status %d (%s)",
			ErrNonJSONResponse, req.Method, req.URL.Host, resp.StatusCode, snippet(body))
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return false
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return true
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: jsonGuard{next: http.DefaultTransport},
	}
}

// headerTransport sets one header on every outgoing request.
type headerTransport struct {
	key   string
	value string
	next  http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set(t.key, t.value)
	return t.next.RoundTrip(req)
}

// newGoogleAIHTTPClient authenticates with the API key header, since a custom
// client replaces the SDK's own key handling.
func newGoogleAIHTTPClient(apiKey string, timeout time.Duration) *http.Client {
	client := newHTTPClient(timeout)
	client.Transport = headerTransport{key: "x-goog-api-key", value: apiKey, next: client.Transport}
	return client
}
