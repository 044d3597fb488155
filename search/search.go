// Package search queries a grouped web-search API and renders its
// responses into chat-ready Markdown fragments.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

const (
	defaultTimeout = 60 * time.Second

	// LimiterQueue is the rate-limiter queue all searches pass through.
	LimiterQueue = "search"
)

// Response is a grouped search result.
type Response struct {
	Found     int     `json:"found"`
	RequestID string  `json:"request_id,omitempty"`
	Error     string  `json:"error,omitempty"`
	Groups    []Group `json:"groups,omitempty"`
}

// Group is one cluster of related documents, typically a single site.
type Group struct {
	Documents []Document `json:"documents,omitempty"`
}

// Document is a single search hit. Passages carry **word** highlight
// markers around the query terms.
type Document struct {
	URL          string   `json:"url"`
	Domain       string   `json:"domain,omitempty"`
	Title        string   `json:"title"`
	Passages     []string `json:"passages,omitempty"`
	SavedCopyURL string   `json:"saved_copy_url,omitempty"`
	ExtendedText string   `json:"extended_text,omitempty"`
	Lang         string   `json:"lang,omitempty"`
	MimeType     string   `json:"mime_type,omitempty"`
	Size         int64    `json:"size,omitempty"`
	Modtime      string   `json:"modtime,omitempty"`
}

// Client is a thin HTTP client for the grouped-search API. Results are
// cached by query text.
type Client struct {
	endpoint  string
	apiKey    string
	client    *http.Client
	cache     gromozeka.Cache
	limiters  *gromozeka.Limiters
	logger    *slog.Logger
	tracer    gromozeka.Tracer
	requestID func() string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport injects the HTTP transport, e.g. an httprec Recorder or
// Replayer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.client.Transport = rt }
}

// WithCache enables query-level result caching.
func WithCache(cache gromozeka.Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLimiters routes searches through the named rate-limiter registry.
func WithLimiters(l *gromozeka.Limiters) Option {
	return func(c *Client) { c.limiters = l }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracer enables span creation around searches.
func WithTracer(t gromozeka.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRequestID overrides the request-id source, for tests.
func WithRequestID(fn func() string) Option {
	return func(c *Client) { c.requestID = fn }
}

// NewClient creates a search client for the given API endpoint. apiKey
// may be empty for unauthenticated endpoints.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: defaultTimeout},
		logger:    slog.New(slog.DiscardHandler),
		requestID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Search runs the query and returns the grouped response. A response
// carrying an API-level error is still returned without a Go error, so
// callers can render the error line.
func (c *Client) Search(ctx context.Context, query string) (Response, error) {
	if c.tracer != nil {
		var span gromozeka.Span
		ctx, span = c.tracer.Start(ctx, "search.query",
			gromozeka.StringAttr("query", query))
		defer span.End()
	}

	if c.cache != nil {
		if v, ok := c.cache.Get(ctx, query); ok {
			if resp, ok := decodeCached(v); ok {
				return resp, nil
			}
		}
	}

	if c.limiters != nil {
		if err := c.limiters.Apply(ctx, LimiterQueue); err != nil {
			return Response{}, err
		}
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Response{}, fmt.Errorf("search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Response{}, err
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("search: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("search: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Response{}, &gromozeka.ErrHTTP{Status: httpResp.StatusCode, Body: string(body)}
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, fmt.Errorf("search: decode response: %w", err)
	}
	if resp.RequestID == "" {
		resp.RequestID = c.requestID()
	}

	if c.cache != nil {
		c.cache.Set(ctx, query, resp)
	}
	return resp, nil
}

// decodeCached tolerates both the in-memory case (a Response stored
// as-is) and persistent backends that round-trip through JSON maps.
func decodeCached(v any) (Response, bool) {
	switch t := v.(type) {
	case Response:
		return t, true
	case map[string]any:
		data, err := json.Marshal(t)
		if err != nil {
			return Response{}, false
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Response{}, false
		}
		return resp, true
	}
	return Response{}, false
}
