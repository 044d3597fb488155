package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
	"github.com/NotA-Company/gromozeka-sub003/cache"
	"github.com/NotA-Company/gromozeka-sub003/httprec"
	"github.com/NotA-Company/gromozeka-sub003/provider/openaicompat"
	"github.com/NotA-Company/gromozeka-sub003/search"
	"github.com/NotA-Company/gromozeka-sub003/weather"
	"github.com/NotA-Company/gromozeka-sub003/webfetch"
)

// Scenario is one scripted capture: which client to build, how to build
// it, and the operation to run through the recording transport.
type Scenario struct {
	Description string            `json:"description"`
	Module      string            `json:"module"`
	Function    string            `json:"function"`
	Params      map[string]string `json:"params"`
	Init        map[string]string `json:"init,omitempty"`
}

func loadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var scenarios []Scenario
	if err := json.Unmarshal(data, &scenarios); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return scenarios, nil
}

// resolveInit substitutes "${VAR}" strings with the environment variable
// VAR. Substituted values are returned as secrets so they can never reach
// a scenario file unmasked.
func resolveInit(init map[string]string) (map[string]string, []string) {
	resolved := make(map[string]string, len(init))
	var secrets []string
	for k, v := range init {
		if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
			value := os.Getenv(v[2 : len(v)-1])
			resolved[k] = value
			if value != "" {
				secrets = append(secrets, value)
			}
			continue
		}
		resolved[k] = v
	}
	return resolved, secrets
}

// slug derives a filesystem-safe file stem from a scenario description.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// runScenario executes one scenario with a recording transport and saves
// the masked capture to path.
func runScenario(ctx context.Context, sc Scenario, path string, secrets []string) error {
	init, initSecrets := resolveInit(sc.Init)
	masker := httprec.NewMasker(append(initSecrets, secrets...))
	rec := httprec.NewRecorder(http.DefaultTransport, masker)

	if err := invoke(ctx, sc, init, rec); err != nil {
		return err
	}
	return rec.Save(path, map[string]any{
		"description": sc.Description,
		"module":      sc.Module,
		"function":    sc.Function,
	})
}

func invoke(ctx context.Context, sc Scenario, init map[string]string, rec *httprec.Recorder) error {
	target := sc.Module + "." + sc.Function
	switch target {
	case "search.search":
		c := search.NewClient(init["endpoint"], init["api_key"],
			search.WithTransport(rec))
		_, err := c.Search(ctx, sc.Params["query"])
		return err

	case "weather.report":
		c := weather.NewClient(init["geocode_endpoint"], init["weather_endpoint"],
			init["api_key"], weather.WithTransport(rec))
		_, err := c.Report(ctx, sc.Params["location"])
		return err

	case "webfetch.content":
		f := webfetch.New(
			cache.NewMemory(0, time.Hour),
			cache.NewMemory(0, time.Hour),
			webfetch.WithTransport(rec))
		_, err := f.Content(ctx, sc.Params["url"], 0, webfetch.DefaultContentConfig())
		return err

	case "llm.chat":
		p := openaicompat.New(init["api_key"], init["model"], init["base_url"],
			openaicompat.WithTransport(rec))
		_, err := p.Chat(ctx, gromozeka.ChatRequest{
			Model:    sc.Params["model"],
			Messages: []gromozeka.ChatMessage{gromozeka.UserMessage(sc.Params["prompt"])},
		})
		return err
	}
	return fmt.Errorf("unknown target %q", target)
}
