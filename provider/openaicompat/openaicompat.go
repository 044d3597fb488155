// Package openaicompat implements gromozeka.Provider for any
// OpenAI-compatible chat completions API: OpenAI, OpenRouter, Groq,
// Together, DeepSeek, Mistral, Ollama, vLLM, LM Studio, and the rest.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// Provider is an OpenAI-compatible chat provider.
type Provider struct {
	apiKey       string
	defaultModel string
	baseURL      string
	client       *http.Client
	name         string
	temperature  *float64
	logger       *slog.Logger
}

var _ gromozeka.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithName overrides the provider name reported by Name.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithTransport injects the HTTP transport, e.g. an httprec Recorder or
// Replayer.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.client.Transport = rt }
}

// WithTemperature sets the sampling temperature on every request.
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = &t }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// New creates a provider. baseURL is the API base (e.g.
// "https://api.openai.com/v1", "http://localhost:11434/v1"); the
// /chat/completions path is appended automatically. defaultModel is used
// when a request names none.
func New(apiKey, defaultModel, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		baseURL:      baseURL,
		client:       &http.Client{},
		name:         "openai",
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name returns the provider name (default "openai").
func (p *Provider) Name() string { return p.name }

// wire format for the chat completions endpoint

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat sends a non-streaming chat request and returns the first choice.
func (p *Provider) Chat(ctx context.Context, req gromozeka.ChatRequest) (gromozeka.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	body := wireRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: p.temperature,
		Messages:    make([]wireMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("%s: create request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return gromozeka.ChatResponse{}, &gromozeka.ErrHTTP{Status: resp.StatusCode, Body: string(data)}
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("%s: decode response: %w", p.name, err)
	}
	out := gromozeka.ChatResponse{Model: wire.Model}
	if out.Model == "" {
		out.Model = model
	}
	if len(wire.Choices) > 0 {
		out.Content = wire.Choices[0].Message.Content
	}
	return out, nil
}
