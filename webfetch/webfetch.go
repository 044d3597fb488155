// Package webfetch downloads page content, converts it to Markdown, and
// condenses oversize pages through an LLM. Results flow through two cache
// layers so repeated fetches of the same page cost nothing.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	readability "github.com/go-shiori/go-readability"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxSize   = 10240
	maxRedirects     = 5
	defaultUserAgent = "Mozilla/5.0 (compatible; GromozekaBot/1.0)"

	// LimiterQueue is the rate-limiter queue all fetches pass through.
	LimiterQueue = "webfetch"
)

// condensePrompt instructs the model to shrink a page without losing
// substance.
const condensePrompt = "Produce a maximally detailed retelling of the " +
	"following text in its original language, preserving its structure " +
	"and all ideas, arguments, and facts."

// mediaRe drops svg and img subtrees before Markdown conversion; image
// noise never helps a chat reply.
var mediaRe = regexp.MustCompile(`(?is)<svg\b.*?</svg>|<img\b[^>]*/?>`)

// condensedKey keys the condensed cache on what was asked for, not just
// the page.
type condensedKey struct {
	URL     string `json:"url"`
	MaxSize int    `json:"max_size"`
}

// Fetcher is the URL fetcher + condenser.
type Fetcher struct {
	client    *http.Client
	condensed gromozeka.Cache
	raw       gromozeka.Cache
	provider  gromozeka.Provider
	settings  gromozeka.Settings
	limiters  *gromozeka.Limiters
	logger    *slog.Logger
	tracer    gromozeka.Tracer

	fallbackModel string
	userAgent     string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTransport injects the HTTP transport, e.g. an httprec Recorder or
// Replayer.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.client.Transport = rt }
}

// WithProvider enables LLM condensation of oversize pages.
func WithProvider(p gromozeka.Provider) Option {
	return func(f *Fetcher) { f.provider = p }
}

// WithSettings resolves the per-chat condensation model.
func WithSettings(s gromozeka.Settings) Option {
	return func(f *Fetcher) { f.settings = s }
}

// WithLimiters routes fetches through the named rate-limiter registry.
func WithLimiters(l *gromozeka.Limiters) Option {
	return func(f *Fetcher) { f.limiters = l }
}

// WithFallbackModel sets the model used when the chat has none configured.
func WithFallbackModel(model string) Option {
	return func(f *Fetcher) { f.fallbackModel = model }
}

// WithUserAgent overrides the outbound User-Agent string.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithTracer enables span creation around fetches.
func WithTracer(t gromozeka.Tracer) Option {
	return func(f *Fetcher) { f.tracer = t }
}

// New creates a Fetcher with the given cache layers: condensed results
// keyed on (url, maxSize) and raw page content keyed on url.
func New(condensed, raw gromozeka.Cache, opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		condensed: condensed,
		raw:       raw,
		logger:    slog.New(slog.DiscardHandler),
		userAgent: defaultUserAgent,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ContentConfig tunes one Content call.
type ContentConfig struct {
	// ParseMarkdown converts HTML pages to Markdown; when false, HTML is
	// reduced to readable plain text instead.
	ParseMarkdown bool
	// MaxSize is the length at which condensation kicks in.
	MaxSize int
}

// DefaultContentConfig returns the standard fetch configuration.
func DefaultContentConfig() ContentConfig {
	return ContentConfig{ParseMarkdown: true, MaxSize: defaultMaxSize}
}

// Content returns the page at rawURL as display-ready text, condensed to
// roughly cfg.MaxSize when necessary. chatID selects the chat's
// condensation model.
func (f *Fetcher) Content(ctx context.Context, rawURL string, chatID int64, cfg ContentConfig) (string, error) {
	if f.tracer != nil {
		var span gromozeka.Span
		ctx, span = f.tracer.Start(ctx, "webfetch.content",
			gromozeka.StringAttr("url", rawURL))
		defer span.End()
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaultMaxSize
	}

	ck := condensedKey{URL: rawURL, MaxSize: cfg.MaxSize}
	if v, ok := f.condensed.Get(ctx, ck); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}

	content, contentType, err := f.rawContent(ctx, rawURL)
	if err != nil {
		return "", err
	}

	text := content
	if strings.Contains(contentType, "html") {
		if cfg.ParseMarkdown {
			md, err := htmltomarkdown.ConvertString(mediaRe.ReplaceAllString(content, ""))
			if err != nil {
				f.logger.Warn("markdown conversion failed", "url", rawURL, "err", err)
			} else {
				text = md
			}
		} else {
			text = readableText(rawURL, content)
		}
	}

	if len(text) >= cfg.MaxSize {
		if condensed, ok := f.condense(ctx, chatID, text); ok {
			f.condensed.Set(ctx, ck, condensed)
			return condensed, nil
		}
	}
	return text, nil
}

// rawContent returns page body and content type, consulting the raw cache
// before the network.
func (f *Fetcher) rawContent(ctx context.Context, rawURL string) (string, string, error) {
	if v, ok := f.raw.Get(ctx, rawURL); ok {
		if m, ok := v.(map[string]any); ok {
			content, _ := m["content"].(string)
			contentType, _ := m["type"].(string)
			return content, contentType, nil
		}
	}

	if f.limiters != nil {
		if err := f.limiters.Apply(ctx, LimiterQueue); err != nil {
			return "", "", err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", &gromozeka.ErrHTTP{
			Status: resp.StatusCode,
			Body:   fmt.Sprintf("Request failed with status %d", resp.StatusCode),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/") {
		return "", "", fmt.Errorf("Content is not text: %s", contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	content := string(body)
	f.raw.Set(ctx, rawURL, map[string]any{"content": content, "type": contentType})
	return content, contentType, nil
}

// condense asks the chat's model for a retelling. A failed or empty
// response leaves the original text in place.
func (f *Fetcher) condense(ctx context.Context, chatID int64, text string) (string, bool) {
	if f.provider == nil {
		return "", false
	}
	model := f.fallbackModel
	if f.settings != nil {
		if m := f.settings.String(ctx, chatID, gromozeka.KeyChatModel); m != "" {
			model = m
		}
	}

	resp, err := f.provider.Chat(ctx, gromozeka.ChatRequest{
		Model: model,
		Messages: []gromozeka.ChatMessage{
			gromozeka.SystemMessage(condensePrompt),
			gromozeka.UserMessage(text),
		},
	})
	if err != nil {
		f.logger.Warn("condensation failed", "model", model, "err", err)
		return "", false
	}
	if resp.Content == "" {
		return "", false
	}
	return resp.Content, true
}

// readableText extracts article text from an HTML page, falling back to a
// crude tag strip when extraction finds nothing.
func readableText(rawURL, html string) string {
	pageURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(html), pageURL)
	if err == nil && article.TextContent != "" {
		return strings.TrimSpace(article.TextContent)
	}
	return strings.TrimSpace(tagRe.ReplaceAllString(html, " "))
}

var tagRe = regexp.MustCompile(`<[^>]*>`)
