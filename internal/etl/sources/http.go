package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"collector/internal/document"
	"collector/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches one page from a REST API endpoint. The response body must be JSON.

// DefaultHTTPTimeout bounds a single request.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPClient implements etl.HTTPFetcher over net/http.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient returns a fetcher whose requests time out after timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) FetchHTTP(ctx context.Context, method, url string, headers map[string]string, body string) (string, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", etl.ErrConfiguration, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: http request: %v", etl.ErrConnectivity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: http %d: %s", etl.ErrConnectivity, resp.StatusCode, string(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", etl.ErrConnectivity, err)
	}
	return string(data), nil
}

type httpPipeline struct {
	etl.Base
	fetcher etl.HTTPFetcher
}

// NewHTTP returns the "http" pipeline.
func NewHTTP(fetcher etl.HTTPFetcher, executor etl.DBExecutor) etl.Pipeline {
	return &httpPipeline{Base: etl.Base{Executor: executor}, fetcher: fetcher}
}

func (s *httpPipeline) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "http",
		Label: "HTTP API",
		ConfigFields: []etl.ConfigField{
			{Key: "locator", Label: "URL", Type: "string", Required: true, Help: "Full URL to fetch; may use ${page} and ${expr} placeholders"},
			{Key: "method", Label: "Method", Type: "select", Options: []string{"GET", "POST", "PUT"}, Default: "GET"},
			{Key: "headers", Label: "Headers", Type: "textarea", Help: "Map of request headers"},
			{Key: "body", Label: "Body", Type: "textarea", Help: "Request body template (for POST)"},
		},
	}
}

func (s *httpPipeline) Receive(ctx context.Context, src etl.SourceConfig) (document.Value, error) {
	if src.Locator == "" {
		return document.Value{}, fmt.Errorf("%w: url is required", etl.ErrConfiguration)
	}
	method := strings.ToUpper(src.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := s.fetcher.FetchHTTP(ctx, method, src.Locator, src.Headers, src.Body)
	if err != nil {
		return document.Value{}, err
	}

	doc, err := document.ParseString(body)
	if err != nil {
		if errors.Is(err, document.ErrInvalidJSON) {
			return document.Value{}, fmt.Errorf("%w: response of %s %s: %v", etl.ErrDecode, method, src.Locator, err)
		}
		return document.Value{}, err
	}
	return doc, nil
}
