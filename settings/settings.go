// Package settings resolves typed per-chat configuration over a closed
// key registry: per-chat override first, then the key's coded default.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// Type is the semantic type of a setting value.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeList   Type = "strlist"
)

// Definition describes one recognized setting key.
type Definition struct {
	Key         string
	Type        Type
	Label       string
	Description string
	Default     string
}

// definitions is the closed registry. Writes to keys outside it are
// rejected; reads of unknown keys yield zero values.
var definitions = map[string]Definition{
	gromozeka.KeyDetectSpam: {
		Key: gromozeka.KeyDetectSpam, Type: TypeBool,
		Label:       "Spam detection",
		Description: "Run the spam check on messages in group chats",
		Default:     "true",
	},
	gromozeka.KeyAutoSpamMaxMessages: {
		Key: gromozeka.KeyAutoSpamMaxMessages, Type: TypeInt,
		Label:       "Max messages for auto-check",
		Description: "Skip the spam check for users with more messages than this; 0 disables the ceiling",
		Default:     "10",
	},
	gromozeka.KeySpamWarnThreshold: {
		Key: gromozeka.KeySpamWarnThreshold, Type: TypeFloat,
		Label:       "Warn threshold",
		Description: "Score at which a message gets a warning",
		Default:     "50",
	},
	gromozeka.KeySpamBanThreshold: {
		Key: gromozeka.KeySpamBanThreshold, Type: TypeFloat,
		Label:       "Ban threshold",
		Description: "Score above which the sender is banned",
		Default:     "80",
	},
	gromozeka.KeyBayesEnabled: {
		Key: gromozeka.KeyBayesEnabled, Type: TypeBool,
		Label:       "Bayes classifier",
		Description: "Let the trained classifier contribute to the spam score",
		Default:     "true",
	},
	gromozeka.KeyBayesAutoLearn: {
		Key: gromozeka.KeyBayesAutoLearn, Type: TypeBool,
		Label:       "Auto-learn on mark",
		Description: "Train the classifier when a message is marked as spam",
		Default:     "true",
	},
	gromozeka.KeyBayesMinConfidence: {
		Key: gromozeka.KeyBayesMinConfidence, Type: TypeFloat,
		Label:       "Min Bayes confidence",
		Description: "Minimum classifier confidence to trust its score",
		Default:     "0.1",
	},
	gromozeka.KeySpamDeleteAllMessages: {
		Key: gromozeka.KeySpamDeleteAllMessages, Type: TypeBool,
		Label:       "Delete all messages on ban",
		Description: "Bulk-delete the user's recent messages when banned",
		Default:     "false",
	},
	gromozeka.KeyAllowMarkSpamOldUsers: {
		Key: gromozeka.KeyAllowMarkSpamOldUsers, Type: TypeBool,
		Label:       "Mark established users",
		Description: "Permit admins to mark users above the message ceiling as spammers",
		Default:     "false",
	},
	gromozeka.KeyAllowUserSpamCommand: {
		Key: gromozeka.KeyAllowUserSpamCommand, Type: TypeBool,
		Label:       "User /spam command",
		Description: "Permit non-admins to report spam with /spam",
		Default:     "false",
	},
	gromozeka.KeyAdminCanChangeSettings: {
		Key: gromozeka.KeyAdminCanChangeSettings, Type: TypeBool,
		Label:       "Admins change settings",
		Description: "Permit chat admins to change these settings",
		Default:     "true",
	},
	gromozeka.KeyChatModel: {
		Key: gromozeka.KeyChatModel, Type: TypeString,
		Label:       "Chat model",
		Description: "Model identifier used for chat completions",
		Default:     "",
	},
	gromozeka.KeySummaryModel: {
		Key: gromozeka.KeySummaryModel, Type: TypeString,
		Label:       "Summary model",
		Description: "Model identifier used for summarization",
		Default:     "",
	},
	gromozeka.KeyIgnoreCommands: {
		Key: gromozeka.KeyIgnoreCommands, Type: TypeList,
		Label:       "Ignored commands",
		Description: "Comma-separated commands the pipeline drops without handling",
		Default:     "",
	},
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	d, ok := definitions[key]
	return d, ok
}

// All returns every definition, for settings UIs.
func All() []Definition {
	out := make([]Definition, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d)
	}
	return out
}

// Resolver implements gromozeka.Settings over a SettingsStore. Store
// failures fall back to defaults so a flaky database never stalls the
// message pipeline.
type Resolver struct {
	store  gromozeka.SettingsStore
	logger *slog.Logger
}

var _ gromozeka.Settings = (*Resolver)(nil)

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a Resolver over store.
func NewResolver(store gromozeka.SettingsStore, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// raw returns the effective string value: override first, then default.
func (r *Resolver) raw(ctx context.Context, chatID int64, key string) string {
	def, known := definitions[key]
	v, ok, err := r.store.GetSetting(ctx, chatID, key)
	if err != nil {
		r.logger.Warn("settings read failed", "chat", chatID, "key", key, "err", err)
	}
	if err == nil && ok {
		return v
	}
	if known {
		return def.Default
	}
	return ""
}

func (r *Resolver) String(ctx context.Context, chatID int64, key string) string {
	return r.raw(ctx, chatID, key)
}

func (r *Resolver) Int(ctx context.Context, chatID int64, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.raw(ctx, chatID, key)))
	if err != nil {
		return 0
	}
	return n
}

func (r *Resolver) Float(ctx context.Context, chatID int64, key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.raw(ctx, chatID, key)), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r *Resolver) Bool(ctx context.Context, chatID int64, key string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(r.raw(ctx, chatID, key)))
	if err != nil {
		return false
	}
	return b
}

func (r *Resolver) List(ctx context.Context, chatID int64, key string) []string {
	raw := r.raw(ctx, chatID, key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Set validates value against the key's definition and persists it.
func (r *Resolver) Set(ctx context.Context, chatID int64, key, value string) error {
	def, ok := definitions[key]
	if !ok {
		return &gromozeka.ConfigError{Key: key, Message: "unknown setting"}
	}
	if err := validate(def, value); err != nil {
		return err
	}
	return r.store.SetSetting(ctx, chatID, key, value)
}

// Reset removes the per-chat override so the default applies again.
func (r *Resolver) Reset(ctx context.Context, chatID int64, key string) error {
	if _, ok := definitions[key]; !ok {
		return &gromozeka.ConfigError{Key: key, Message: "unknown setting"}
	}
	return r.store.DeleteSetting(ctx, chatID, key)
}

func validate(def Definition, value string) error {
	switch def.Type {
	case TypeInt:
		if _, err := strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return &gromozeka.ConfigError{Key: def.Key, Message: fmt.Sprintf("not an integer: %q", value)}
		}
	case TypeFloat:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return &gromozeka.ConfigError{Key: def.Key, Message: fmt.Sprintf("not a number: %q", value)}
		}
	case TypeBool:
		if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
			return &gromozeka.ConfigError{Key: def.Key, Message: fmt.Sprintf("not a boolean: %q", value)}
		}
	}
	return nil
}
