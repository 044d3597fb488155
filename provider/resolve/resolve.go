// Package resolve creates chat providers from provider-agnostic
// configuration, filling in the base URL for well-known OpenAI-compatible
// hosts.
package resolve

import (
	"fmt"
	"log/slog"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/provider/gemini"
	"github.com/NotA-Company/gromozeka-sub003/provider/openaicompat"
)

// Config selects and configures a chat provider.
type Config struct {
	Provider string // "gemini", "openai", "groq", "deepseek", "together", "mistral", "ollama"
	APIKey   string
	Model    string
	BaseURL  string // required for unknown OpenAI-compatible hosts

	Temperature *float64
	Logger      *slog.Logger
}

// Provider creates a gromozeka.Provider from cfg.
func Provider(cfg Config) (gromozeka.Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return geminiProvider(cfg), nil
	case "openai", "groq", "deepseek", "together", "mistral", "ollama":
		return openaiCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("resolve: unknown provider %q", cfg.Provider)
	}
}

func geminiProvider(cfg Config) *gemini.Gemini {
	var opts []gemini.Option
	if cfg.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Temperature != nil {
		opts = append(opts, gemini.WithTemperature(*cfg.Temperature))
	}
	if cfg.Logger != nil {
		opts = append(opts, gemini.WithLogger(cfg.Logger))
	}
	return gemini.New(cfg.APIKey, cfg.Model, opts...)
}

func openaiCompatProvider(cfg Config) *openaicompat.Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Provider)
	}
	opts := []openaicompat.Option{openaicompat.WithName(cfg.Provider)}
	if cfg.Temperature != nil {
		opts = append(opts, openaicompat.WithTemperature(*cfg.Temperature))
	}
	if cfg.Logger != nil {
		opts = append(opts, openaicompat.WithLogger(cfg.Logger))
	}
	return openaicompat.New(cfg.APIKey, cfg.Model, baseURL, opts...)
}

func defaultBaseURL(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "groq":
		return "https://api.groq.com/openai/v1"
	case "deepseek":
		return "https://api.deepseek.com/v1"
	case "together":
		return "https://api.together.xyz/v1"
	case "mistral":
		return "https://api.mistral.ai/v1"
	case "ollama":
		return "http://localhost:11434/v1"
	default:
		return ""
	}
}
