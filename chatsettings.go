package gromozeka

import "context"

// Recognized chat-setting keys. The set is closed: the settings package
// rejects writes to unknown keys. Default values live in the settings
// package; per-chat overrides in storage.
const (
	KeyDetectSpam             = "detect-spam"
	KeyAutoSpamMaxMessages    = "auto-spam-max-messages"
	KeySpamWarnThreshold      = "spam-warn-threshold"
	KeySpamBanThreshold       = "spam-ban-threshold"
	KeyBayesEnabled           = "bayes-enabled"
	KeyBayesAutoLearn         = "bayes-auto-learn"
	KeyBayesMinConfidence     = "bayes-min-confidence"
	KeySpamDeleteAllMessages  = "spam-delete-all-user-messages"
	KeyAllowMarkSpamOldUsers  = "allow-mark-spam-old-users"
	KeyAllowUserSpamCommand   = "allow-user-spam-command"
	KeyAdminCanChangeSettings = "admin-can-change-settings"
	KeyChatModel              = "chat-model"
	KeySummaryModel           = "summary-model"
	KeyIgnoreCommands         = "ignore-commands"
)

// Settings resolves typed per-chat configuration: per-chat override first,
// then the key's default. Readers see a consistent snapshot per pipeline
// invocation; writes become visible to subsequent invocations.
type Settings interface {
	String(ctx context.Context, chatID int64, key string) string
	Int(ctx context.Context, chatID int64, key string) int
	Float(ctx context.Context, chatID int64, key string) float64
	Bool(ctx context.Context, chatID int64, key string) bool
	List(ctx context.Context, chatID int64, key string) []string
}
