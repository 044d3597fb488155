package gromozeka

import "context"

// Button is an inline keyboard button. Payload is an opaque string of at
// most 64 bytes delivered back on press.
type Button struct {
	Text    string
	Payload string
}

// CategoryBotError tags bot-authored error replies so later components can
// recognize them.
const CategoryBotError = "bot-error"

// SendOptions control an outbound message.
type SendOptions struct {
	ReplyTo  int64
	Buttons  [][]Button
	Category string
}

// SendOption mutates SendOptions.
type SendOption func(*SendOptions)

// WithReplyTo makes the message a reply to messageID.
func WithReplyTo(messageID int64) SendOption {
	return func(o *SendOptions) { o.ReplyTo = messageID }
}

// WithButtons attaches an inline keyboard.
func WithButtons(rows [][]Button) SendOption {
	return func(o *SendOptions) { o.Buttons = rows }
}

// WithCategory tags the message with a taxonomy value such as
// [CategoryBotError].
func WithCategory(category string) SendOption {
	return func(o *SendOptions) { o.Category = category }
}

// Platform is the messaging-platform adapter consumed by the core. The
// Telegram implementation lives in frontend/telegram; tests use fakes.
type Platform interface {
	// SendMessage sends text to a chat and returns the new message id.
	SendMessage(ctx context.Context, chatID int64, text string, opts ...SendOption) (int64, error)
	// EditMessage replaces the text of an existing message.
	EditMessage(ctx context.Context, chatID, messageID int64, text string) error
	// DeleteMessage removes one message.
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	// DeleteMessages removes several messages in one call.
	DeleteMessages(ctx context.Context, chatID int64, messageIDs []int64) error
	// BanChatMember bans a user, revoking their messages when asked.
	BanChatMember(ctx context.Context, chatID, userID int64, revokeMessages bool) error
	// BanChatSenderChat bans a sender chat (channel posting as itself).
	BanChatSenderChat(ctx context.Context, chatID, senderChatID int64) error
	// UnbanChatMember lifts a ban. With onlyIfBanned the call is a no-op
	// for users who are not currently banned.
	UnbanChatMember(ctx context.Context, chatID, userID int64, onlyIfBanned bool) error
	// IsAdmin reports whether the user administers the chat.
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
