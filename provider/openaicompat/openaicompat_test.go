package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

type cannedTransport struct {
	status   int
	body     string
	lastReq  *http.Request
	lastBody []byte
}

func (t *cannedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.lastReq = req
	if req.Body != nil {
		t.lastBody, _ = io.ReadAll(req.Body)
	}
	return &http.Response{
		StatusCode: t.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

const okBody = `{"model":"gpt-test","choices":[{"message":{"role":"assistant","content":"hi there"}}]}`

func TestChat(t *testing.T) {
	rt := &cannedTransport{status: 200, body: okBody}
	p := New("sk-test", "gpt-test", "https://api.example/v1", WithTransport(rt))

	resp, err := p.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{
			gromozeka.SystemMessage("be brief"),
			gromozeka.UserMessage("hello"),
		},
		MaxTokens: 64,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "hi there" || resp.Model != "gpt-test" {
		t.Errorf("resp = %+v", resp)
	}

	if rt.lastReq.URL.String() != "https://api.example/v1/chat/completions" {
		t.Errorf("url = %s", rt.lastReq.URL)
	}
	if got := rt.lastReq.Header.Get("Authorization"); got != "Bearer sk-test" {
		t.Errorf("auth = %q", got)
	}

	var sent wireRequest
	if err := json.Unmarshal(rt.lastBody, &sent); err != nil {
		t.Fatalf("unmarshal sent body: %v", err)
	}
	if sent.Model != "gpt-test" || sent.MaxTokens != 64 {
		t.Errorf("sent = %+v", sent)
	}
	if len(sent.Messages) != 2 || sent.Messages[0].Role != "system" || sent.Messages[1].Content != "hello" {
		t.Errorf("messages = %+v", sent.Messages)
	}
}

func TestChatModelOverride(t *testing.T) {
	rt := &cannedTransport{status: 200, body: okBody}
	p := New("", "default-model", "https://api.example/v1", WithTransport(rt))

	if _, err := p.Chat(context.Background(), gromozeka.ChatRequest{
		Model:    "per-request-model",
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("x")},
	}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	var sent wireRequest
	if err := json.Unmarshal(rt.lastBody, &sent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sent.Model != "per-request-model" {
		t.Errorf("model = %q", sent.Model)
	}
	if rt.lastReq.Header.Get("Authorization") != "" {
		t.Error("auth header set without api key")
	}
}

func TestChatTemperature(t *testing.T) {
	rt := &cannedTransport{status: 200, body: okBody}
	p := New("", "m", "https://api.example/v1", WithTransport(rt), WithTemperature(0.2))

	if _, err := p.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("x")},
	}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	var sent wireRequest
	if err := json.Unmarshal(rt.lastBody, &sent); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if sent.Temperature == nil || *sent.Temperature != 0.2 {
		t.Errorf("temperature = %v", sent.Temperature)
	}
}

func TestChatHTTPError(t *testing.T) {
	rt := &cannedTransport{status: 429, body: `{"error":"rate limited"}`}
	p := New("k", "m", "https://api.example/v1", WithTransport(rt))

	_, err := p.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("x")},
	})
	var httpErr *gromozeka.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 429 {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(httpErr.Body, "rate limited") {
		t.Errorf("body = %q", httpErr.Body)
	}
}

func TestChatEmptyChoices(t *testing.T) {
	rt := &cannedTransport{status: 200, body: `{"choices":[]}`}
	p := New("k", "m", "https://api.example/v1", WithTransport(rt))

	resp, err := p.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("x")},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "" || resp.Model != "m" {
		t.Errorf("resp = %+v", resp)
	}
}
