package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/NotA-Company/gromozeka-sub003/httprec"
)

func TestResolveInit(t *testing.T) {
	t.Setenv("COLLECTOR_TEST_KEY", "s3cret")
	init, secrets := resolveInit(map[string]string{
		"endpoint": "https://api.example/search",
		"api_key":  "${COLLECTOR_TEST_KEY}",
		"missing":  "${COLLECTOR_TEST_UNSET}",
	})

	if init["endpoint"] != "https://api.example/search" {
		t.Errorf("plain value changed: %q", init["endpoint"])
	}
	if init["api_key"] != "s3cret" {
		t.Errorf("api_key = %q", init["api_key"])
	}
	if init["missing"] != "" {
		t.Errorf("unset var = %q", init["missing"])
	}
	if len(secrets) != 1 || secrets[0] != "s3cret" {
		t.Errorf("secrets = %v", secrets)
	}
}

func TestSlug(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Search: one query", "search-one-query"},
		{"  spaced  out  ", "spaced-out"},
		{"Weather (Tbilisi)", "weather-tbilisi"},
		{"already-fine", "already-fine"},
	}
	for _, c := range cases {
		if got := slug(c.in); got != c.want {
			t.Errorf("slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestLoadScenarios(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.json")
	data := `[
  {
    "description": "search one query",
    "module": "search",
    "function": "search",
    "params": {"query": "golang"},
    "init": {"endpoint": "https://api.example", "api_key": "${KEY}"}
  }
]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	scenarios, err := loadScenarios(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(scenarios) != 1 {
		t.Fatalf("scenarios = %d", len(scenarios))
	}
	sc := scenarios[0]
	if sc.Module != "search" || sc.Function != "search" || sc.Params["query"] != "golang" {
		t.Errorf("scenario = %+v", sc)
	}
	if sc.Init["api_key"] != "${KEY}" {
		t.Errorf("substitution must happen at run time, got %q", sc.Init["api_key"])
	}
}

// cannedTransport answers every request with a fixed JSON body.
type cannedTransport struct {
	body  string
	calls int
}

func (t *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

func TestInvokeMasksAPIKey(t *testing.T) {
	inner := &cannedTransport{body: `{"found": 0, "groups": []}`}
	masker := httprec.NewMasker([]string{"s3cret"})
	rec := httprec.NewRecorder(inner, masker)

	sc := Scenario{
		Description: "masked search",
		Module:      "search",
		Function:    "search",
		Params:      map[string]string{"query": "golang"},
	}
	init := map[string]string{"endpoint": "https://api.example/search", "api_key": "s3cret"}
	if err := invoke(context.Background(), sc, init, rec); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if inner.calls != 1 {
		t.Fatalf("calls = %d", inner.calls)
	}
	recs := rec.Recordings()
	if len(recs) != 1 {
		t.Fatalf("recordings = %d", len(recs))
	}
	if strings.Contains(recs[0].Request.URL, "s3cret") {
		t.Errorf("secret leaked into URL: %s", recs[0].Request.URL)
	}
	for k, v := range recs[0].Request.Params {
		if strings.Contains(v, "s3cret") {
			t.Errorf("secret leaked into param %s", k)
		}
	}
}

func TestInvokeUnknownTarget(t *testing.T) {
	rec := httprec.NewRecorder(&cannedTransport{body: "{}"}, httprec.NewMasker(nil))
	sc := Scenario{Module: "nope", Function: "nothing"}
	if err := invoke(context.Background(), sc, nil, rec); err == nil {
		t.Fatal("unknown target must fail")
	}
}
