package webfetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/cache"
)

// cannedTransport answers every request with a fixed response and counts
// round trips.
type cannedTransport struct {
	status      int
	contentType string
	body        string
	calls       int
}

func (t *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{
		StatusCode: t.status,
		Header:     http.Header{"Content-Type": []string{t.contentType}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

// cannedProvider returns a fixed condensation.
type cannedProvider struct {
	content string
	err     error
	calls   int
}

func (p *cannedProvider) Name() string { return "canned" }

func (p *cannedProvider) Chat(context.Context, gromozeka.ChatRequest) (gromozeka.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return gromozeka.ChatResponse{}, p.err
	}
	return gromozeka.ChatResponse{Content: p.content, Model: "canned"}, nil
}

func newFetcher(t *testing.T, rt http.RoundTripper, opts ...Option) *Fetcher {
	t.Helper()
	condensed := cache.NewMemory(0, time.Hour)
	raw := cache.NewMemory(0, time.Hour)
	return New(condensed, raw, append([]Option{WithTransport(rt)}, opts...)...)
}

func TestPlainTextPassthrough(t *testing.T) {
	rt := &cannedTransport{status: 200, contentType: "text/plain; charset=utf-8", body: "hello world"}
	f := newFetcher(t, rt)

	got, err := f.Content(context.Background(), "https://example.com/a.txt", 1, DefaultContentConfig())
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got != "hello world" {
		t.Errorf("got %q", got)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	html := `<html><body><h1>Title</h1><svg><circle/></svg><p>Some <b>bold</b> text.</p><img src="x.png"></body></html>`
	rt := &cannedTransport{status: 200, contentType: "text/html", body: html}
	f := newFetcher(t, rt)

	got, err := f.Content(context.Background(), "https://example.com/page", 1, DefaultContentConfig())
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if !strings.Contains(got, "# Title") {
		t.Errorf("heading not converted: %q", got)
	}
	if !strings.Contains(got, "**bold**") {
		t.Errorf("bold not converted: %q", got)
	}
	if strings.Contains(got, "svg") || strings.Contains(got, "x.png") {
		t.Errorf("media survived: %q", got)
	}
}

func TestRawCacheHitSkipsNetwork(t *testing.T) {
	rt := &cannedTransport{status: 200, contentType: "text/plain", body: "cached body"}
	f := newFetcher(t, rt)
	ctx := context.Background()

	for range 3 {
		if _, err := f.Content(ctx, "https://example.com/a", 1, DefaultContentConfig()); err != nil {
			t.Fatalf("content: %v", err)
		}
	}
	if rt.calls != 1 {
		t.Errorf("network calls = %d, want 1", rt.calls)
	}
}

func TestNonSuccessStatus(t *testing.T) {
	rt := &cannedTransport{status: 503, contentType: "text/html", body: "oops"}
	f := newFetcher(t, rt)

	_, err := f.Content(context.Background(), "https://example.com/down", 1, DefaultContentConfig())
	if err == nil {
		t.Fatal("non-2xx must fail")
	}
	var httpErr *gromozeka.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 503 {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(err.Error(), "Request failed with status 503") {
		t.Errorf("message = %q", err)
	}
}

func TestNonTextContent(t *testing.T) {
	rt := &cannedTransport{status: 200, contentType: "image/png", body: "\x89PNG"}
	f := newFetcher(t, rt)

	_, err := f.Content(context.Background(), "https://example.com/pic.png", 1, DefaultContentConfig())
	if err == nil || !strings.Contains(err.Error(), "Content is not text") {
		t.Errorf("err = %v", err)
	}
}

func TestCondensation(t *testing.T) {
	long := strings.Repeat("word ", 100)
	rt := &cannedTransport{status: 200, contentType: "text/plain", body: long}
	p := &cannedProvider{content: "short retelling"}
	f := newFetcher(t, rt, WithProvider(p), WithFallbackModel("fallback-model"))
	ctx := context.Background()

	cfg := ContentConfig{ParseMarkdown: true, MaxSize: 100}
	got, err := f.Content(ctx, "https://example.com/long", 1, cfg)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got != "short retelling" {
		t.Errorf("got %q", got)
	}

	// Second call hits the condensed cache: neither network nor model.
	got, err = f.Content(ctx, "https://example.com/long", 1, cfg)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got != "short retelling" {
		t.Errorf("got %q", got)
	}
	if rt.calls != 1 || p.calls != 1 {
		t.Errorf("calls = net %d, model %d, want 1 each", rt.calls, p.calls)
	}

	// A different maxSize is a different condensed entry.
	if _, err := f.Content(ctx, "https://example.com/long", 1, ContentConfig{ParseMarkdown: true, MaxSize: 50}); err != nil {
		t.Fatalf("content: %v", err)
	}
	if p.calls != 2 {
		t.Errorf("model calls = %d, want 2", p.calls)
	}
}

func TestCondensationFailureReturnsOriginal(t *testing.T) {
	long := strings.Repeat("word ", 100)
	rt := &cannedTransport{status: 200, contentType: "text/plain", body: long}
	p := &cannedProvider{err: errors.New("model down")}
	f := newFetcher(t, rt, WithProvider(p))

	got, err := f.Content(context.Background(), "https://example.com/long", 1,
		ContentConfig{ParseMarkdown: true, MaxSize: 100})
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got != long {
		t.Errorf("original text not returned on model failure")
	}
}

func TestShortContentSkipsModel(t *testing.T) {
	rt := &cannedTransport{status: 200, contentType: "text/plain", body: "tiny"}
	p := &cannedProvider{content: "never used"}
	f := newFetcher(t, rt, WithProvider(p))

	got, err := f.Content(context.Background(), "https://example.com/tiny", 1, DefaultContentConfig())
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if got != "tiny" || p.calls != 0 {
		t.Errorf("got %q, model calls %d", got, p.calls)
	}
}
