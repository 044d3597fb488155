package gemini

import (
	"context"
	"encoding/json"
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
	status := t.status
	if status == 0 {
		status = 200
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(t.body)),
		Request:    req,
	}, nil
}

const sampleResponse = `{
  "candidates": [
    {"content": {"role": "model", "parts": [{"text": "short "}, {"text": "answer"}]}}
  ],
  "modelVersion": "gemini-2.0-flash-001"
}`

func TestChat(t *testing.T) {
	rt := &cannedTransport{body: sampleResponse}
	g := New("key-1", "gemini-2.0-flash", WithTransport(rt))

	resp, err := g.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{
			gromozeka.SystemMessage("condense pages"),
			gromozeka.UserMessage("long page text"),
		},
		MaxTokens: 512,
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "short answer" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Model != "gemini-2.0-flash-001" {
		t.Errorf("model = %q", resp.Model)
	}

	url := rt.lastReq.URL.String()
	if !strings.Contains(url, "models/gemini-2.0-flash:generateContent") {
		t.Errorf("url = %s", url)
	}
	if !strings.Contains(url, "key=key-1") {
		t.Errorf("api key missing from url: %s", url)
	}

	var wire wireRequest
	if err := json.Unmarshal(rt.lastBody, &wire); err != nil {
		t.Fatalf("sent body: %v", err)
	}
	if wire.SystemInstruction == nil || wire.SystemInstruction.Parts[0].Text != "condense pages" {
		t.Errorf("system instruction = %+v", wire.SystemInstruction)
	}
	if len(wire.Contents) != 1 || wire.Contents[0].Role != "user" {
		t.Errorf("contents = %+v", wire.Contents)
	}
	if wire.GenerationConfig == nil || wire.GenerationConfig.MaxOutputTokens != 512 {
		t.Errorf("generation config = %+v", wire.GenerationConfig)
	}
}

func TestChatAssistantRole(t *testing.T) {
	rt := &cannedTransport{body: sampleResponse}
	g := New("k", "m", WithTransport(rt))

	_, err := g.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{
			gromozeka.UserMessage("hi"),
			{Role: "assistant", Content: "hello"},
			gromozeka.UserMessage("again"),
		},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	var wire wireRequest
	if err := json.Unmarshal(rt.lastBody, &wire); err != nil {
		t.Fatal(err)
	}
	if len(wire.Contents) != 3 || wire.Contents[1].Role != "model" {
		t.Errorf("contents = %+v", wire.Contents)
	}
}

func TestChatHTTPError(t *testing.T) {
	rt := &cannedTransport{status: 429, body: `{"error": {"message": "quota"}}`}
	g := New("k", "m", WithTransport(rt))

	_, err := g.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("hi")},
	})
	httpErr, ok := err.(*gromozeka.ErrHTTP)
	if !ok || httpErr.Status != 429 {
		t.Errorf("err = %v", err)
	}
}

func TestChatEmptyCandidates(t *testing.T) {
	rt := &cannedTransport{body: `{"candidates": []}`}
	g := New("k", "gemini-2.0-flash", WithTransport(rt))

	resp, err := g.Chat(context.Background(), gromozeka.ChatRequest{
		Messages: []gromozeka.ChatMessage{gromozeka.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Content != "" || resp.Model != "gemini-2.0-flash" {
		t.Errorf("resp = %+v", resp)
	}
}
