// Package telegram implements the chat-platform adapter over the
// Telegram Bot API: long-poll ingress mapped to envelopes, and the
// outbound moderation calls the core depends on.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

const (
	maxMessageLength = 4096
	apiBaseURL       = "https://api.telegram.org/bot"

	// maxCallbackPayload caps button payloads; the Bot API rejects longer
	// callback_data.
	maxCallbackPayload = 64
)

// Event is one inbound update: either a message envelope or a button
// press. Exactly one field is set.
type Event struct {
	Message  *gromozeka.Envelope
	Callback *CallbackQuery
}

// Bot implements gromozeka.Platform for Telegram.
type Bot struct {
	token       string
	httpClient  *http.Client
	logger      *slog.Logger
	pollTimeout int
}

var _ gromozeka.Platform = (*Bot)(nil)

// Option configures a Bot.
type Option func(*Bot)

// WithTransport injects the HTTP transport, e.g. an httprec Recorder or
// Replayer.
func WithTransport(rt http.RoundTripper) Option {
	return func(b *Bot) { b.httpClient.Transport = rt }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// WithPollTimeout sets the long-poll timeout in seconds (default 30).
func WithPollTimeout(seconds int) Option {
	return func(b *Bot) { b.pollTimeout = seconds }
}

// NewBot creates a Telegram bot with the given token.
func NewBot(token string, opts ...Option) *Bot {
	b := &Bot{
		token:       token,
		httpClient:  &http.Client{},
		logger:      slog.New(slog.DiscardHandler),
		pollTimeout: 30,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Poll starts long-polling for updates and returns a channel of events.
// The channel closes when ctx is cancelled.
func (b *Bot) Poll(ctx context.Context) (<-chan Event, error) {
	ch := make(chan Event)
	go b.pollLoop(ctx, ch)
	return ch, nil
}

func (b *Bot) pollLoop(ctx context.Context, ch chan<- Event) {
	defer close(ch)
	var offset int64

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("poll failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			var ev Event
			switch {
			case u.Message != nil:
				ev.Message = MapEnvelope(u.Message)
			case u.CallbackQuery != nil:
				ev.Callback = u.CallbackQuery
			default:
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         b.pollTimeout,
		"allowed_updates": []string{"message", "callback_query"},
	}
	var result []Update
	if err := b.callAPI(ctx, "getUpdates", body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendMessage sends text with HTML formatting, splitting messages over
// Telegram's 4096-char limit. Returns the id of the last sent message.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts ...gromozeka.SendOption) (int64, error) {
	var o gromozeka.SendOptions
	for _, opt := range opts {
		opt(&o)
	}

	chunks := splitMessage(text)
	var lastID int64
	for i, chunk := range chunks {
		body := map[string]any{
			"chat_id":    chatID,
			"text":       MarkdownToHTML(chunk),
			"parse_mode": "HTML",
		}
		if o.ReplyTo != 0 && i == 0 {
			body["reply_to_message_id"] = o.ReplyTo
		}
		if len(o.Buttons) > 0 && i == len(chunks)-1 {
			body["reply_markup"] = buildKeyboard(o.Buttons)
		}
		var result Message
		if err := b.callAPI(ctx, "sendMessage", body, &result); err != nil {
			return 0, err
		}
		lastID = result.MessageID
	}
	return lastID, nil
}

// EditMessage replaces the text of an existing message. "message is not
// modified" responses are ignored.
func (b *Bot) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	body := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       MarkdownToHTML(text),
		"parse_mode": "HTML",
	}
	err := b.callAPI(ctx, "editMessageText", body, nil)
	if err != nil && isNotModifiedError(err) {
		return nil
	}
	return err
}

// DeleteMessage removes one message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return b.callAPI(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// DeleteMessages removes several messages in one call.
func (b *Bot) DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return b.callAPI(ctx, "deleteMessages", map[string]any{
		"chat_id":     chatID,
		"message_ids": messageIDs,
	}, nil)
}

// BanChatMember bans a user, revoking their messages when asked.
func (b *Bot) BanChatMember(ctx context.Context, chatID, userID int64, revokeMessages bool) error {
	return b.callAPI(ctx, "banChatMember", map[string]any{
		"chat_id":         chatID,
		"user_id":         userID,
		"revoke_messages": revokeMessages,
	}, nil)
}

// BanChatSenderChat bans a sender chat (channel posting as itself).
func (b *Bot) BanChatSenderChat(ctx context.Context, chatID, senderChatID int64) error {
	return b.callAPI(ctx, "banChatSenderChat", map[string]any{
		"chat_id":        chatID,
		"sender_chat_id": senderChatID,
	}, nil)
}

// UnbanChatMember lifts a ban.
func (b *Bot) UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error {
	return b.callAPI(ctx, "unbanChatMember", map[string]any{
		"chat_id":        chatID,
		"user_id":        userID,
		"only_if_banned": onlyIfBanned,
	}, nil)
}

// IsAdmin reports whether the user administers the chat.
func (b *Bot) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	var member ChatMember
	err := b.callAPI(ctx, "getChatMember", map[string]any{
		"chat_id": chatID,
		"user_id": userID,
	}, &member)
	if err != nil {
		return false, err
	}
	return member.Status == "creator" || member.Status == "administrator", nil
}

// AnswerCallback acknowledges a button press, optionally flashing text.
func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return b.callAPI(ctx, "answerCallbackQuery", body, nil)
}

// callAPI posts JSON to a Bot API method and decodes the result envelope.
func (b *Bot) callAPI(ctx context.Context, method string, reqBody any, result any) error {
	url := apiBaseURL + b.token + "/" + method

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("telegram: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: read response: %w", err)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description,omitempty"`
		ErrorCode   int             `json:"error_code,omitempty"`
		Result      json.RawMessage `json:"result,omitempty"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("telegram: decode response: %w (body: %s)", err, string(respBody))
	}
	if !envelope.OK {
		return &apiError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("telegram: decode result: %w", err)
		}
	}
	return nil
}

// apiError is a Telegram API error response.
type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// isNotModifiedError matches Telegram's "message is not modified" reply
// to an edit carrying identical text.
func isNotModifiedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "message is not modified")
}

// MapEnvelope converts a Telegram message to the core envelope.
func MapEnvelope(m *Message) *gromozeka.Envelope {
	env := &gromozeka.Envelope{
		Chat: gromozeka.Chat{
			ID:    m.Chat.ID,
			Type:  m.Chat.Type,
			Title: m.Chat.Title,
		},
		MessageID:   m.MessageID,
		Time:        time.Unix(m.Date, 0),
		ThreadID:    m.MessageThreadID,
		Text:        m.Text,
		Type:        gromozeka.TextMessage,
		AutoForward: m.IsAutomaticForward,
	}

	if m.From != nil {
		env.User = gromozeka.User{
			ID:          m.From.ID,
			Username:    m.From.Username,
			DisplayName: displayName(m.From),
		}
	}
	if m.SenderChat != nil {
		env.SenderChatID = m.SenderChat.ID
	}

	entities := m.Entities
	if env.Text == "" && m.Caption != "" {
		env.Text = m.Caption
		entities = m.CaptionEntities
	}
	if env.Text == "" {
		env.Type = gromozeka.UnknownMessage
	}
	for _, e := range entities {
		env.Entities = append(env.Entities, gromozeka.Entity{
			Type:   e.Type,
			Offset: e.Offset,
			Length: e.Length,
			URL:    e.URL,
		})
	}

	if m.ReplyToMessage != nil {
		env.ReplyToID = m.ReplyToMessage.MessageID
		env.ReplyText = m.ReplyToMessage.Text
		if from := m.ReplyToMessage.From; from != nil {
			env.ReplyUser = gromozeka.User{
				ID:          from.ID,
				Username:    from.Username,
				DisplayName: displayName(from),
			}
		}
	}
	return env
}

func displayName(u *User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// buildKeyboard converts core button rows into Telegram reply markup,
// truncating oversize payloads.
func buildKeyboard(rows [][]gromozeka.Button) InlineKeyboardMarkup {
	markup := InlineKeyboardMarkup{InlineKeyboard: make([][]InlineKeyboardButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			payload := btn.Payload
			if len(payload) > maxCallbackPayload {
				payload = payload[:maxCallbackPayload]
			}
			out = append(out, InlineKeyboardButton{Text: btn.Text, CallbackData: payload})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, out)
	}
	return markup
}

// splitMessage splits text into chunks that fit within Telegram's
// 4096-char limit, preferring newline boundaries.
func splitMessage(text string) []string {
	if len(text) <= maxMessageLength {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxMessageLength {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := remaining[:maxMessageLength]
		splitPos := strings.LastIndex(splitAt, "\n")
		if splitPos == -1 {
			splitPos = maxMessageLength
		} else {
			splitPos++
		}
		chunks = append(chunks, remaining[:splitPos])
		remaining = remaining[splitPos:]
	}
	return chunks
}
