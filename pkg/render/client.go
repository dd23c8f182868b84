// Package render provides a client for the document rendering web app that
// fills Google Docs templates from structured data.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/resilience"
)

// Batch status values reported by the rendering service.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusSuccess   = "success"
)

// Client defines the rendering service operations.
type Client interface {
	// Render submits a batch of documents and returns per-document results.
	Render(ctx context.Context, req *Request) (*Response, error)
}

// Document is one template to fill.
type Document struct {
	GoogleDocID string         `json:"google_doc_id"`
	DataToFill  map[string]any `json:"data_to_fill"`
}

// Request is the batch body posted to the service.
type Request struct {
	Documents []Document `json:"documents"`
}

// Response is the batch outcome.
type Response struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Results []Result `json:"results"`
}

// Result is the outcome of one document.
type Result struct {
	Status     string `json:"status"`
	FileName   string `json:"fileName,omitempty"`
	DocURL     string `json:"docUrl,omitempty"`
	TemplateID string `json:"templateId,omitempty"`
	Message    string `json:"message,omitempty"`
}

// OK reports whether the document was created.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Option configures the render client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithMaxAttempts sets how many times a transient failure is attempted.
func WithMaxAttempts(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.retry.MaxAttempts = n
		}
	}
}

// WithBackoff sets the initial retry delay.
func WithBackoff(d time.Duration) Option {
	return func(c *httpClient) {
		c.retry.InitialBackoff = d
	}
}

// WithBreaker guards every attempt with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	url     string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a rendering client posting to url.
func NewClient(url string, opts ...Option) Client {
	retry := resilience.DefaultRetryConfig()
	retry.InitialBackoff = time.Second
	c := &httpClient{
		url:   url,
		retry: retry,
		http: &http.Client{
			// Documents are created synchronously; batches can be slow.
			Timeout: 2 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("render", "render")
	}
	return c
}

func (c *httpClient) Render(ctx context.Context, req *Request) (*Response, error) {
	if req == nil || len(req.Documents) == 0 {
		return nil, eris.New("render: no documents")
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "render: marshal request")
	}

	body, err := c.post(ctx, payload)
	if err != nil {
		return nil, eris.Wrap(err, "render: request failed")
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrapf(err, "render: unmarshal response: %s", truncate(body))
	}
	switch resp.Status {
	case StatusCompleted:
		return &resp, nil
	case StatusError:
		return &resp, eris.Errorf("render: service error: %s", resp.Message)
	default:
		return &resp, eris.Errorf("render: unrecognized status %q", resp.Status)
	}
}

// post sends the payload through the breaker, retrying network errors and
// retryable statuses.
func (c *httpClient) post(ctx context.Context, payload []byte) ([]byte, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return resilience.Guard(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.postOnce(ctx, payload)
		})
	})
}

func (c *httpClient) postOnce(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if err := resilience.CheckStatus("render", resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
