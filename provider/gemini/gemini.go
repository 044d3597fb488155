// Package gemini implements the Google Gemini chat provider over the
// generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini implements gromozeka.Provider for Google Gemini models.
type Gemini struct {
	apiKey       string
	defaultModel string
	baseURL      string
	client       *http.Client
	temperature  *float64
	logger       *slog.Logger
}

var _ gromozeka.Provider = (*Gemini)(nil)

// Option configures a Gemini provider.
type Option func(*Gemini)

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gemini) { g.client.Transport = rt }
}

// WithBaseURL points the provider at a non-default API host.
func WithBaseURL(u string) Option {
	return func(g *Gemini) { g.baseURL = u }
}

// WithTemperature sets the sampling temperature for every request.
func WithTemperature(t float64) Option {
	return func(g *Gemini) { g.temperature = &t }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) { g.logger = l }
}

// New creates a Gemini provider. defaultModel is used for requests that
// do not name a model.
func New(apiKey, defaultModel string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		baseURL:      defaultBaseURL,
		client:       &http.Client{Timeout: 120 * time.Second},
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Name returns "gemini".
func (g *Gemini) Name() string { return "gemini" }

type wirePart struct {
	Text string `json:"text"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

// Chat sends a non-streaming generateContent request. System messages
// become the systemInstruction; assistant turns map to the "model" role.
func (g *Gemini) Chat(ctx context.Context, req gromozeka.ChatRequest) (gromozeka.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.defaultModel
	}

	wire := wireRequest{}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			if wire.SystemInstruction == nil {
				wire.SystemInstruction = &wireContent{}
			}
			wire.SystemInstruction.Parts = append(wire.SystemInstruction.Parts,
				wirePart{Text: m.Content})
		case "assistant":
			wire.Contents = append(wire.Contents, wireContent{
				Role: "model", Parts: []wirePart{{Text: m.Content}},
			})
		default:
			wire.Contents = append(wire.Contents, wireContent{
				Role: "user", Parts: []wirePart{{Text: m.Content}},
			})
		}
	}
	if g.temperature != nil || req.MaxTokens > 0 {
		wire.GenerationConfig = &wireGenerationConfig{
			Temperature:     g.temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("gemini: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, model, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return gromozeka.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("gemini: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("gemini: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return gromozeka.ChatResponse{}, &gromozeka.ErrHTTP{
			Status: httpResp.StatusCode, Body: string(body),
		}
	}

	var resp wireResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return gromozeka.ChatResponse{}, fmt.Errorf("gemini: decode response: %w", err)
	}

	out := gromozeka.ChatResponse{Model: resp.ModelVersion}
	if out.Model == "" {
		out.Model = model
	}
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			out.Content += p.Text
		}
	}
	return out, nil
}
