package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

type Config struct {
	Telegram Telegram             `toml:"telegram"`
	LLM      LLM                  `toml:"llm"`
	Database Database             `toml:"database"`
	Search   Search               `toml:"search"`
	Weather  Weather              `toml:"weather"`
	Fetch    Fetch                `toml:"fetch"`
	Limits   map[string]LimitRule `toml:"limits"`
	Observer Observer             `toml:"observer"`
}

type Telegram struct {
	// Token comes from the environment only; the TOML field exists for
	// local development and should stay empty in committed files.
	Token       string `toml:"token"`
	PollTimeout int    `toml:"poll_timeout"`
	AdminChatID int64  `toml:"admin_chat_id"`
}

type LLM struct {
	// Provider is a name the resolve package knows: "gemini" or an
	// OpenAI-compatible host ("openai", "groq", "ollama", ...).
	Provider string `toml:"provider"`
	BaseURL  string `toml:"base_url"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
}

type Database struct {
	// Path is the sqlite file; PostgresURL switches the store backend
	// when non-empty.
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type Search struct {
	Endpoint string `toml:"endpoint"`
	APIKey   string `toml:"api_key"`
}

type Weather struct {
	GeocodeEndpoint string `toml:"geocode_endpoint"`
	WeatherEndpoint string `toml:"weather_endpoint"`
	APIKey          string `toml:"api_key"`
}

type Fetch struct {
	FallbackModel string `toml:"fallback_model"`
	UserAgent     string `toml:"user_agent"`
}

type LimitRule struct {
	MaxRequests   int `toml:"max_requests"`
	WindowSeconds int `toml:"window_seconds"`
}

type Observer struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Telegram: Telegram{PollTimeout: 30},
		LLM:      LLM{Provider: "openai", Model: "gpt-4o-mini"},
		Database: Database{Path: "gromozeka.db"},
		Fetch:    Fetch{FallbackModel: "gpt-4o-mini"},
		Limits: map[string]LimitRule{
			"webfetch": {MaxRequests: 10, WindowSeconds: 60},
			"search":   {MaxRequests: 10, WindowSeconds: 60},
			"weather":  {MaxRequests: 30, WindowSeconds: 60},
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
// Secrets are expected from the environment; the TOML fields for them
// exist for local development only.
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "gromozeka.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("GROMOZEKA_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("GROMOZEKA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GROMOZEKA_SEARCH_API_KEY"); v != "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("GROMOZEKA_WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("GROMOZEKA_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("GROMOZEKA_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}

// LimitRules converts the configured limits into limiter registry rules.
func (c Config) LimitRules() map[string]gromozeka.LimitRule {
	out := make(map[string]gromozeka.LimitRule, len(c.Limits))
	for name, r := range c.Limits {
		out[name] = gromozeka.LimitRule{
			MaxRequests: r.MaxRequests,
			Window:      time.Duration(r.WindowSeconds) * time.Second,
		}
	}
	return out
}

// Validate reports required settings missing from every source.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return &gromozeka.ConfigError{Key: "telegram.token", Message: "required (set GROMOZEKA_TELEGRAM_TOKEN)"}
	}
	return nil
}
