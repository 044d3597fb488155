package httprec

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// cannedTransport answers every request with a fixed response.
type cannedTransport struct {
	status int
	body   string
	header http.Header
	seen   []*http.Request
}

func (t *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.seen = append(t.seen, req)
	h := t.header
	if h == nil {
		h = http.Header{"Content-Type": []string{"application/json"}}
	}
	return &http.Response{
		StatusCode: t.status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

func TestMaskerExplicitSecrets(t *testing.T) {
	m := NewMasker([]string{"s3cr3t-value"})

	got := m.MaskString("Bearer s3cr3t-value trailing")
	if got != "Bearer "+Masked+" trailing" {
		t.Errorf("got %q", got)
	}
	if strings.Contains(got, "s3cr3t-value") {
		t.Error("secret survived masking")
	}
}

func TestMaskerKeyPatterns(t *testing.T) {
	m := NewMasker(nil)
	in := map[string]string{
		"Api-Key":       "abc",
		"X-Auth-Token":  "def",
		"authorization": "Bearer xyz",
		"PASSWORD":      "hunter2",
		"client_secret": "shh",
		"Content-Type":  "application/json",
	}
	out := m.MaskStringMap(in)
	for k, v := range out {
		if k == "Content-Type" {
			if v != "application/json" {
				t.Errorf("innocent header masked: %q", v)
			}
			continue
		}
		if v != Masked {
			t.Errorf("%s = %q, want masked", k, v)
		}
	}
}

func TestMaskerRecursesJSON(t *testing.T) {
	m := NewMasker([]string{"real-secret"})
	body := `{"data":{"api_key":"abc","items":["real-secret","fine"]},"note":"has real-secret inside"}`
	got := m.maskBody(body)

	if strings.Contains(got, "abc") || strings.Contains(got, "real-secret") {
		t.Errorf("secrets survived: %s", got)
	}
	if !strings.Contains(got, "fine") {
		t.Errorf("innocent value lost: %s", got)
	}
}

func TestRecorderCapturesAndMasks(t *testing.T) {
	inner := &cannedTransport{status: 200, body: `{"ok":true}`}
	rec := NewRecorder(inner, NewMasker([]string{"tok-123"}),
		WithRecorderClock(func() time.Time { return time.Unix(1_700_000_000, 0) }))

	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/data?token=tok-123&q=hello", nil)
	req.Header.Set("Authorization", "Bearer tok-123")
	resp, err := rec.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("caller saw altered body: %s", body)
	}

	calls := rec.Recordings()
	if len(calls) != 1 {
		t.Fatalf("recordings = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.Request.Method != http.MethodGet {
		t.Errorf("method = %q", c.Request.Method)
	}
	if strings.Contains(c.Request.URL, "tok-123") {
		t.Errorf("secret in url: %s", c.Request.URL)
	}
	if c.Request.Headers["Authorization"] != Masked {
		t.Errorf("auth header = %q", c.Request.Headers["Authorization"])
	}
	if c.Request.Params["token"] != Masked {
		t.Errorf("token param = %q", c.Request.Params["token"])
	}
	if c.Request.Params["q"] != "hello" {
		t.Errorf("q param = %q", c.Request.Params["q"])
	}
	if c.Request.Body != nil {
		t.Error("bodiless request recorded a body")
	}
	if c.Response.StatusCode != 200 || c.Response.Content != `{"ok":true}` {
		t.Errorf("response = %+v", c.Response)
	}
	if c.Timestamp == "" {
		t.Error("timestamp missing")
	}
}

func TestGoldenRoundTrip(t *testing.T) {
	inner := &cannedTransport{status: 201, body: "created"}
	rec := NewRecorder(inner, NewMasker(nil))
	req, _ := http.NewRequest(http.MethodPost, "https://api.example.com/v1/items",
		strings.NewReader(`{"name":"x"}`))
	if _, err := rec.RoundTrip(req); err != nil {
		t.Fatalf("round trip: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "dir", "scenario.json")
	meta := map[string]any{"name": "create item", "method": "POST"}
	if err := rec.Save(path, meta); err != nil {
		t.Fatalf("save: %v", err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Metadata["name"] != "create item" {
		t.Errorf("metadata = %v", s.Metadata)
	}
	if len(s.Recordings) != 1 || s.Recordings[0].Response.StatusCode != 201 {
		t.Errorf("recordings = %+v", s.Recordings)
	}
	if s.Recordings[0].Request.Body == nil || *s.Recordings[0].Request.Body != `{"name":"x"}` {
		t.Errorf("body = %v", s.Recordings[0].Request.Body)
	}
}

func TestLoadLegacyFormat(t *testing.T) {
	legacy := `[
		{"request":{"method":"GET","url":"https://a.example/x","body":null},
		 "response":{"status_code":200,"content":"one"}},
		{"call":{"request":{"method":"GET","url":"https://a.example/y","body":null},
		 "response":{"status_code":404,"content":"two"}}}
	]`
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(s.Recordings) != 2 {
		t.Fatalf("recordings = %d, want 2", len(s.Recordings))
	}
	if s.Recordings[0].Response.Content != "one" || s.Recordings[1].Response.StatusCode != 404 {
		t.Errorf("recordings = %+v", s.Recordings)
	}
}

func TestReplayerExactMatch(t *testing.T) {
	s := Scenario{Recordings: []Call{{
		Request:  Request{Method: http.MethodGet, URL: "https://a.example/x?q=1"},
		Response: Response{StatusCode: 200, Headers: map[string]string{"Content-Type": "text/plain"}, Content: "payload"},
	}}}
	rp := NewReplayer(s)

	req, _ := http.NewRequest(http.MethodGet, "https://a.example/x?q=1", nil)
	for range 2 {
		resp, err := rp.RoundTrip(req)
		if err != nil {
			t.Fatalf("round trip: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != 200 || string(body) != "payload" {
			t.Errorf("resp = %d %q", resp.StatusCode, body)
		}
		if resp.Header.Get("Content-Type") != "text/plain" {
			t.Errorf("header = %v", resp.Header)
		}
	}

	if err := rp.VerifyAllCallsUsed(); err != nil {
		t.Errorf("verify: %v", err)
	}
}

func TestReplayerMiss(t *testing.T) {
	rp := NewReplayer(Scenario{Recordings: []Call{{
		Request: Request{Method: http.MethodGet, URL: "https://a.example/x"},
	}}})

	req, _ := http.NewRequest(http.MethodPost, "https://a.example/x", nil)
	if _, err := rp.RoundTrip(req); !errors.Is(err, gromozeka.ErrReplayMiss) {
		t.Errorf("err = %v, want ErrReplayMiss", err)
	}
	if err := rp.VerifyAllCallsUsed(); err == nil {
		t.Error("verify must flag the unused recording")
	}
}

func TestReplayerMaskedSecrets(t *testing.T) {
	body := `{"key":"` + Masked + `"}`
	s := Scenario{Recordings: []Call{{
		Request: Request{
			Method: http.MethodPost,
			URL:    "https://a.example/auth?token=" + Masked + "&q=1",
			Params: map[string]string{"token": Masked, "q": "1"},
			Body:   &body,
		},
		Response: Response{StatusCode: 200, Content: "ok"},
	}}}
	rp := NewReplayer(s)

	req, _ := http.NewRequest(http.MethodPost, "https://a.example/auth?token=real-live-secret&q=1",
		strings.NewReader(`{"key":"another-real-secret"}`))
	resp, err := rp.RoundTrip(req)
	if err != nil {
		t.Fatalf("masked replay failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}

	// The masked run must not cross a & separator.
	req2, _ := http.NewRequest(http.MethodPost, "https://a.example/auth?token=a&b=c&q=1",
		strings.NewReader(`{"key":"x"}`))
	if _, err := rp.RoundTrip(req2); !errors.Is(err, gromozeka.ErrReplayMiss) {
		t.Errorf("separator-crossing request matched: %v", err)
	}
}

func TestReplayerFirstMatchWins(t *testing.T) {
	s := Scenario{Recordings: []Call{
		{
			Request:  Request{Method: http.MethodGet, URL: "https://a.example/x"},
			Response: Response{StatusCode: 200, Content: "first"},
		},
		{
			Request:  Request{Method: http.MethodGet, URL: "https://a.example/x"},
			Response: Response{StatusCode: 200, Content: "second"},
		},
	}}
	rp := NewReplayer(s)

	req, _ := http.NewRequest(http.MethodGet, "https://a.example/x", nil)
	resp, err := rp.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	if string(got) != "first" {
		t.Errorf("body = %q, want first recording", got)
	}
}
