package gromozeka

import "context"

// BayesStore persists token and class counters per scope. The global scope
// and every chat scope maintain independent counter sets.
type BayesStore interface {
	// GetTokenStats returns counters for one token, reporting false when
	// the token has never been seen in this scope.
	GetTokenStats(ctx context.Context, token string, scope Scope) (TokenStats, bool, error)
	// GetClassStats returns per-class counters, zero-valued when missing.
	GetClassStats(ctx context.Context, spam bool, scope Scope) (ClassStats, error)
	// UpdateTokenStats increments one token's class counter.
	UpdateTokenStats(ctx context.Context, token string, spam bool, inc int64, scope Scope) error
	// UpdateClassStats increments a class's message and token counters.
	UpdateClassStats(ctx context.Context, spam bool, msgInc, tokInc int64, scope Scope) error
	// BatchUpdateTokens applies all updates in a single transaction when
	// the backend is transactional.
	BatchUpdateTokens(ctx context.Context, updates []TokenUpdate, scope Scope) error
	// VocabularySize returns the number of distinct tokens in scope.
	VocabularySize(ctx context.Context, scope Scope) (int64, error)
	// GetModelStats summarizes the trained model in scope.
	GetModelStats(ctx context.Context, scope Scope) (ModelStats, error)
	// ClearStats drops all counters in scope.
	ClearStats(ctx context.Context, scope Scope) error
	// ClearAllStats drops counters in every scope.
	ClearAllStats(ctx context.Context) error
	// TopSpamTokens returns tokens ordered by spam/total descending,
	// considering only tokens with total count of at least 2.
	TopSpamTokens(ctx context.Context, limit int, scope Scope) ([]TokenStats, error)
	// TopHamTokens is the ham-side counterpart of TopSpamTokens.
	TopHamTokens(ctx context.Context, limit int, scope Scope) ([]TokenStats, error)
	// CleanupRareTokens deletes tokens with total count below minCount and
	// returns the number removed.
	CleanupRareTokens(ctx context.Context, minCount int64, scope Scope) (int64, error)
}

// UserStore persists per-(chat, user) moderation records.
type UserStore interface {
	// GetChatUser returns the record for (chatID, userID), reporting false
	// when the user has never been seen in the chat.
	GetChatUser(ctx context.Context, chatID, userID int64) (ChatUser, bool, error)
	// UpsertChatUser inserts or refreshes the record, incrementing the
	// observed message count.
	UpsertChatUser(ctx context.Context, u User, chatID int64) error
	// SetSpammer flips the spammer flag.
	SetSpammer(ctx context.Context, chatID, userID int64, spammer bool) error
	// SetUserMeta writes one metadata key.
	SetUserMeta(ctx context.Context, chatID, userID int64, key, value string) error
	// IsKnownMember reports whether username has posted in the chat before.
	IsKnownMember(ctx context.Context, chatID int64, username string) (bool, error)
}

// MessageStore persists the rolling message history plus the spam and ham
// exemplar corpora.
type MessageStore interface {
	// RecordMessage appends a message to the rolling per-user history.
	RecordMessage(ctx context.Context, m StoredMessage) error
	// RecentMessages returns up to limit of the user's messages ordered by
	// message id descending.
	RecentMessages(ctx context.Context, chatID, userID int64, limit int) ([]StoredMessage, error)
	// AddSpam appends an exemplar to the spam corpus.
	AddSpam(ctx context.Context, m StoredMessage) error
	// AddHam appends an exemplar to the ham corpus.
	AddHam(ctx context.Context, m StoredMessage) error
	// SpamTextExists reports whether the spam corpus holds a message with
	// exactly this text in the chat.
	SpamTextExists(ctx context.Context, chatID int64, text string) (bool, error)
	// SpamByUser returns all of the user's spam-corpus entries in the chat.
	SpamByUser(ctx context.Context, chatID, userID int64) ([]StoredMessage, error)
	// DeleteSpamByUser drops the user's spam-corpus entries in the chat.
	DeleteSpamByUser(ctx context.Context, chatID, userID int64) error
}

// SettingsStore persists raw per-chat setting overrides. Typed access and
// defaults live in the settings package.
type SettingsStore interface {
	GetSetting(ctx context.Context, chatID int64, key string) (string, bool, error)
	SetSetting(ctx context.Context, chatID int64, key, value string) error
	DeleteSetting(ctx context.Context, chatID int64, key string) error
	ChatSettings(ctx context.Context, chatID int64) (map[string]string, error)
}
