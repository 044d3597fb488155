package gromozeka

import "context"

// ChatMessage is one turn of an LLM conversation.
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// UserMessage builds a user-role message.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

// SystemMessage builds a system-role message.
func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

// ChatRequest is a provider-agnostic LLM request.
type ChatRequest struct {
	Model     string
	Messages  []ChatMessage
	MaxTokens int
}

// ChatResponse is a provider-agnostic LLM response.
type ChatResponse struct {
	Content string
	Model   string
}

// Provider is an LLM backend. The core uses it only for oversize-page
// condensation; drivers live under provider/.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}
