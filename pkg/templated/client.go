// Package templated provides a client for the templated.io image-template API.
package templated

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docforge/internal/resilience"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.templated.io/v1"

// Layer types that accept user data.
const (
	LayerText  = "text"
	LayerImage = "image"
)

// Client defines the templated.io operations.
type Client interface {
	// Templates lists the account's templates.
	Templates(ctx context.Context) ([]Template, error)
	// Layers lists the layers of one template.
	Layers(ctx context.Context, templateID string) ([]Layer, error)
	// Render renders a template with the given layer values.
	Render(ctx context.Context, req RenderRequest) (*RenderResponse, error)
	// Download saves the rendered file at fileURL into dir and returns its path.
	Download(ctx context.Context, fileURL, dir, name string) (string, error)
}

// Template is a design in the account.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ShortID returns the last 12 characters of the template id.
func (t Template) ShortID() string {
	if len(t.ID) <= 12 {
		return t.ID
	}
	return t.ID[len(t.ID)-12:]
}

// Layer is one replaceable element of a template.
type Layer struct {
	Layer string `json:"layer"`
	Type  string `json:"type"`
}

// Fillable reports whether the layer takes user data.
func (l Layer) Fillable() bool {
	return l.Type == LayerText || l.Type == LayerImage
}

// LayerValue is the data bound to one layer.
type LayerValue struct {
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Template string                `json:"template"`
	Layers   map[string]LayerValue `json:"layers"`
	Format   string                `json:"format"`
}

// RenderResponse describes an accepted render.
type RenderResponse struct {
	ID           string `json:"id"`
	TemplateName string `json:"templateName"`
	URL          string `json:"url"`
}

// BuildLayers maps data onto the template's fillable layers. Text layers get
// {text}, image layers {image_url}; layers without a non-empty value are left
// out.
func BuildLayers(layers []Layer, data map[string]any) map[string]LayerValue {
	out := make(map[string]LayerValue)
	for _, l := range layers {
		v, ok := data[l.Layer]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprint(v)
		if s == "" {
			continue
		}
		switch l.Type {
		case LayerText:
			out[l.Layer] = LayerValue{Text: s}
		case LayerImage:
			out[l.Layer] = LayerValue{ImageURL: s}
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry sets the retry policy for API calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithBreaker guards every API call with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(c *httpClient) {
		c.breaker = b
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewClient creates a templated.io client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Templates(ctx context.Context) ([]Template, error) {
	var out []Template
	if err := c.doJSON(ctx, http.MethodGet, "/templates", nil, &out); err != nil {
		return nil, eris.Wrap(err, "templated: list templates")
	}
	return out, nil
}

func (c *httpClient) Layers(ctx context.Context, templateID string) ([]Layer, error) {
	var out []Layer
	path := "/template/" + url.PathEscape(templateID) + "/layers"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, eris.Wrapf(err, "templated: layers for %s", templateID)
	}
	return out, nil
}

func (c *httpClient) Render(ctx context.Context, req RenderRequest) (*RenderResponse, error) {
	if req.Format == "" {
		req.Format = "jpg"
	}
	var out RenderResponse
	if err := c.doJSON(ctx, http.MethodPost, "/render", req, &out); err != nil {
		return nil, eris.Wrapf(err, "templated: render %s", req.Template)
	}
	return &out, nil
}

func (c *httpClient) Download(ctx context.Context, fileURL, dir, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "templated: create download request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "templated: download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("templated: download status %d", resp.StatusCode)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "templated: create output dir")
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrap(err, "templated: create output file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return "", eris.Wrap(err, "templated: write output file")
	}
	if err := f.Close(); err != nil {
		return "", eris.Wrap(err, "templated: close output file")
	}
	return path, nil
}

func (c *httpClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return eris.Wrap(err, "marshal request")
		}
	}

	retry := c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("templated", method+" "+path)
	}
	data, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
		return resilience.Guard(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
			return c.send(ctx, method, path, payload)
		})
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

// send performs one API request and returns the body of a 2xx response.
func (c *httpClient) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}
	if err := resilience.CheckStatus("templated", resp.StatusCode, data); err != nil {
		return nil, err
	}
	return data, nil
}
