package gromozeka

import "time"

// MessageType distinguishes plain text messages from everything else
// (stickers, media, service messages). Only text messages are classified.
type MessageType int

const (
	TextMessage MessageType = iota
	UnknownMessage
)

// User identifies a message sender.
type User struct {
	ID          int64
	Username    string
	DisplayName string
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID    int64
	Type  string // "private", "group", "supergroup", "channel"
	Title string
}

// IsPrivate reports whether the chat is a one-on-one conversation.
func (c Chat) IsPrivate() bool { return c.Type == "private" }

// Entity is a platform annotation over a span of message text:
// a URL, a text link, or an @-mention.
type Entity struct {
	Type   string // "url", "text_link", "mention"
	Offset int
	Length int
	URL    string // set for text_link entities
}

// Envelope is the validated, immutable form of an inbound message.
// It is created on receive and lives for one pipeline invocation.
type Envelope struct {
	User         User
	Chat         Chat
	MessageID    int64
	Time         time.Time
	ReplyToID    int64
	ReplyText    string
	ReplyUser    User // author of the replied-to message, when known
	ThreadID     int64
	Text         string
	Type         MessageType
	Entities     []Entity
	SenderChatID int64
	AutoForward  bool // automatic forward from a linked channel
}

// Validate checks that the envelope carries the fields the pipeline
// requires. Messages without a user or chat are dropped.
func (e *Envelope) Validate() error {
	if e.User.ID == 0 {
		return &ValidationError{Field: "user"}
	}
	if e.Chat.ID == 0 {
		return &ValidationError{Field: "chat"}
	}
	return nil
}

// ChatUser is the per-(chat, user) record tracked by the moderation engine.
type ChatUser struct {
	ChatID       int64
	UserID       int64
	Username     string
	DisplayName  string
	MessageCount int64
	IsSpammer    bool
	Metadata     map[string]string
}

// MetaNotSpammer is the metadata key set on unban; users carrying it skip
// all future spam checks.
const MetaNotSpammer = "notSpammer"

// MarkReason records who or what classified a message as spam or ham.
type MarkReason string

const (
	ReasonAuto  MarkReason = "auto"
	ReasonAdmin MarkReason = "admin"
	ReasonUser  MarkReason = "user"
	ReasonUnban MarkReason = "unban"
)

// StoredMessage is a persisted message exemplar: an entry in the rolling
// per-user history or in the spam/ham corpora.
type StoredMessage struct {
	ChatID    int64
	UserID    int64
	MessageID int64
	Text      string
	Reason    MarkReason
	Score     float64
	CreatedAt int64
}

// Scope targets Bayes statistics and cache partitions at either the global
// corpus or one specific chat. The zero value is the global scope.
type Scope struct {
	ChatID int64
}

// Global is the process-wide scope shared by all chats.
var Global = Scope{}

// ChatScope returns the scope of one specific chat.
func ChatScope(chatID int64) Scope { return Scope{ChatID: chatID} }

// IsGlobal reports whether s targets the global corpus.
func (s Scope) IsGlobal() bool { return s.ChatID == 0 }

// TokenStats holds per-token counters within one scope.
// Total is always Spam + Ham.
type TokenStats struct {
	Token string
	Spam  int64
	Ham   int64
	Total int64
}

// ClassStats holds per-class counters within one scope.
type ClassStats struct {
	Messages int64
	Tokens   int64
}

// ModelStats summarizes the trained model within one scope.
type ModelStats struct {
	SpamMessages int64
	HamMessages  int64
	TotalTokens  int64
	VocabSize    int64
}

// TokenUpdate is one element of a batched counter update.
type TokenUpdate struct {
	Token string
	Spam  bool
	Inc   int64
}
