// Package postgres implements the persistent gromozeka stores using
// PostgreSQL, for deployments that share one moderation database across
// several bot instances.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// Store implements the persistent store interfaces backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ gromozeka.BayesStore    = (*Store)(nil)
	_ gromozeka.UserStore     = (*Store)(nil)
	_ gromozeka.MessageStore  = (*Store)(nil)
	_ gromozeka.SettingsStore = (*Store)(nil)
)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
//
// As in the SQLite store, chat_id 0 stands in for the global scope so that
// the bayes primary keys stay enforceable without nullable columns.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS bayes_tokens (
			chat_id BIGINT NOT NULL DEFAULT 0,
			token TEXT NOT NULL,
			spam_count BIGINT NOT NULL DEFAULT 0,
			ham_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, token)
		)`,
		`CREATE TABLE IF NOT EXISTS bayes_classes (
			chat_id BIGINT NOT NULL DEFAULT 0,
			spam BOOLEAN NOT NULL,
			message_count BIGINT NOT NULL DEFAULT 0,
			token_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, spam)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_users (
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			message_count BIGINT NOT NULL DEFAULT 0,
			is_spammer BOOLEAN NOT NULL DEFAULT FALSE,
			metadata JSONB NOT NULL DEFAULT '{}',
			PRIMARY KEY (chat_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			text TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS spam_messages (
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			text TEXT NOT NULL,
			reason TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ham_messages (
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			text TEXT NOT NULL,
			reason TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id BIGINT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (chat_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spam_text ON spam_messages(chat_id, text)`,
		`CREATE INDEX IF NOT EXISTS idx_users_name ON chat_users(chat_id, username)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// --- Bayes ---

func (s *Store) GetTokenStats(ctx context.Context, token string, scope gromozeka.Scope) (gromozeka.TokenStats, bool, error) {
	st := gromozeka.TokenStats{Token: token}
	err := s.pool.QueryRow(ctx,
		`SELECT spam_count, ham_count FROM bayes_tokens WHERE chat_id = $1 AND token = $2`,
		scope.ChatID, token).Scan(&st.Spam, &st.Ham)
	if errors.Is(err, pgx.ErrNoRows) {
		return gromozeka.TokenStats{}, false, nil
	}
	if err != nil {
		return gromozeka.TokenStats{}, false, fmt.Errorf("postgres: token stats: %w", err)
	}
	st.Total = st.Spam + st.Ham
	return st, true, nil
}

func (s *Store) GetClassStats(ctx context.Context, spam bool, scope gromozeka.Scope) (gromozeka.ClassStats, error) {
	var st gromozeka.ClassStats
	err := s.pool.QueryRow(ctx,
		`SELECT message_count, token_count FROM bayes_classes WHERE chat_id = $1 AND spam = $2`,
		scope.ChatID, spam).Scan(&st.Messages, &st.Tokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return gromozeka.ClassStats{}, nil
	}
	if err != nil {
		return gromozeka.ClassStats{}, fmt.Errorf("postgres: class stats: %w", err)
	}
	return st, nil
}

func (s *Store) UpdateTokenStats(ctx context.Context, token string, spam bool, inc int64, scope gromozeka.Scope) error {
	_, err := s.pool.Exec(ctx, tokenUpsertSQL(spam), scope.ChatID, token, inc)
	if err != nil {
		return fmt.Errorf("postgres: update token stats: %w", err)
	}
	return nil
}

func tokenUpsertSQL(spam bool) string {
	col := "ham_count"
	if spam {
		col = "spam_count"
	}
	return fmt.Sprintf(`INSERT INTO bayes_tokens (chat_id, token, %[1]s) VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, token) DO UPDATE SET %[1]s = bayes_tokens.%[1]s + EXCLUDED.%[1]s`, col)
}

func (s *Store) UpdateClassStats(ctx context.Context, spam bool, msgInc, tokInc int64, scope gromozeka.Scope) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bayes_classes (chat_id, spam, message_count, token_count) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chat_id, spam) DO UPDATE SET
			message_count = bayes_classes.message_count + EXCLUDED.message_count,
			token_count = bayes_classes.token_count + EXCLUDED.token_count`,
		scope.ChatID, spam, msgInc, tokInc)
	if err != nil {
		return fmt.Errorf("postgres: update class stats: %w", err)
	}
	return nil
}

func (s *Store) BatchUpdateTokens(ctx context.Context, updates []gromozeka.TokenUpdate, scope gromozeka.Scope) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, u := range updates {
		if _, err := tx.Exec(ctx, tokenUpsertSQL(u.Spam), scope.ChatID, u.Token, u.Inc); err != nil {
			return fmt.Errorf("postgres: batch token update %q: %w", u.Token, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) VocabularySize(ctx context.Context, scope gromozeka.Scope) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bayes_tokens WHERE chat_id = $1`, scope.ChatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: vocabulary size: %w", err)
	}
	return n, nil
}

func (s *Store) GetModelStats(ctx context.Context, scope gromozeka.Scope) (gromozeka.ModelStats, error) {
	var st gromozeka.ModelStats
	spam, err := s.GetClassStats(ctx, true, scope)
	if err != nil {
		return st, err
	}
	ham, err := s.GetClassStats(ctx, false, scope)
	if err != nil {
		return st, err
	}
	vocab, err := s.VocabularySize(ctx, scope)
	if err != nil {
		return st, err
	}
	st.SpamMessages = spam.Messages
	st.HamMessages = ham.Messages
	st.TotalTokens = spam.Tokens + ham.Tokens
	st.VocabSize = vocab
	return st, nil
}

func (s *Store) ClearStats(ctx context.Context, scope gromozeka.Scope) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM bayes_tokens WHERE chat_id = $1`, scope.ChatID); err != nil {
		return fmt.Errorf("postgres: clear tokens: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM bayes_classes WHERE chat_id = $1`, scope.ChatID); err != nil {
		return fmt.Errorf("postgres: clear classes: %w", err)
	}
	return nil
}

func (s *Store) ClearAllStats(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bayes_tokens`); err != nil {
		return fmt.Errorf("postgres: clear tokens: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM bayes_classes`); err != nil {
		return fmt.Errorf("postgres: clear classes: %w", err)
	}
	return nil
}

func (s *Store) TopSpamTokens(ctx context.Context, limit int, scope gromozeka.Scope) ([]gromozeka.TokenStats, error) {
	return s.topTokens(ctx, limit, scope, "spam_count")
}

func (s *Store) TopHamTokens(ctx context.Context, limit int, scope gromozeka.Scope) ([]gromozeka.TokenStats, error) {
	return s.topTokens(ctx, limit, scope, "ham_count")
}

func (s *Store) topTokens(ctx context.Context, limit int, scope gromozeka.Scope, col string) ([]gromozeka.TokenStats, error) {
	// col is one of two fixed column names, never caller data.
	q := fmt.Sprintf(`SELECT token, spam_count, ham_count FROM bayes_tokens
		WHERE chat_id = $1 AND spam_count + ham_count >= 2
		ORDER BY %s::float / (spam_count + ham_count) DESC, token
		LIMIT $2`, col)
	rows, err := s.pool.Query(ctx, q, scope.ChatID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top tokens: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.TokenStats
	for rows.Next() {
		var st gromozeka.TokenStats
		if err := rows.Scan(&st.Token, &st.Spam, &st.Ham); err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		st.Total = st.Spam + st.Ham
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CleanupRareTokens(ctx context.Context, minCount int64, scope gromozeka.Scope) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bayes_tokens WHERE chat_id = $1 AND spam_count + ham_count < $2`,
		scope.ChatID, minCount)
	if err != nil {
		return 0, fmt.Errorf("postgres: cleanup rare tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Users ---

func (s *Store) GetChatUser(ctx context.Context, chatID, userID int64) (gromozeka.ChatUser, bool, error) {
	u := gromozeka.ChatUser{ChatID: chatID, UserID: userID}
	var metaJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT username, display_name, message_count, is_spammer, metadata
		 FROM chat_users WHERE chat_id = $1 AND user_id = $2`, chatID, userID,
	).Scan(&u.Username, &u.DisplayName, &u.MessageCount, &u.IsSpammer, &metaJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return gromozeka.ChatUser{}, false, nil
	}
	if err != nil {
		return gromozeka.ChatUser{}, false, fmt.Errorf("postgres: chat user: %w", err)
	}
	if err := json.Unmarshal(metaJSON, &u.Metadata); err != nil {
		u.Metadata = map[string]string{}
	}
	return u, true, nil
}

func (s *Store) UpsertChatUser(ctx context.Context, u gromozeka.User, chatID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_users (chat_id, user_id, username, display_name, message_count)
		 VALUES ($1, $2, $3, $4, 1)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			message_count = chat_users.message_count + 1`,
		chatID, u.ID, u.Username, u.DisplayName)
	if err != nil {
		return fmt.Errorf("postgres: upsert chat user: %w", err)
	}
	return nil
}

func (s *Store) SetSpammer(ctx context.Context, chatID, userID int64, spammer bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_users (chat_id, user_id, is_spammer) VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET is_spammer = EXCLUDED.is_spammer`,
		chatID, userID, spammer)
	if err != nil {
		return fmt.Errorf("postgres: set spammer: %w", err)
	}
	return nil
}

func (s *Store) SetUserMeta(ctx context.Context, chatID, userID int64, key, value string) error {
	meta, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("postgres: encode metadata: %w", err)
	}
	// jsonb || merges the single-key object into existing metadata.
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chat_users (chat_id, user_id, metadata) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (chat_id, user_id) DO UPDATE SET metadata = chat_users.metadata || EXCLUDED.metadata`,
		chatID, userID, string(meta))
	if err != nil {
		return fmt.Errorf("postgres: set user meta: %w", err)
	}
	return nil
}

func (s *Store) IsKnownMember(ctx context.Context, chatID int64, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chat_users WHERE chat_id = $1 AND username = $2`,
		chatID, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("postgres: known member: %w", err)
	}
	return n > 0, nil
}

// --- Messages ---

func (s *Store) RecordMessage(ctx context.Context, m gromozeka.StoredMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (chat_id, user_id, message_id, text, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (chat_id, user_id, message_id) DO UPDATE SET text = EXCLUDED.text`,
		m.ChatID, m.UserID, m.MessageID, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: record message: %w", err)
	}
	return nil
}

func (s *Store) RecentMessages(ctx context.Context, chatID, userID int64, limit int) ([]gromozeka.StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, text, created_at FROM messages
		 WHERE chat_id = $1 AND user_id = $2
		 ORDER BY message_id DESC LIMIT $3`, chatID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent messages: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.StoredMessage
	for rows.Next() {
		m := gromozeka.StoredMessage{ChatID: chatID, UserID: userID}
		if err := rows.Scan(&m.MessageID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) AddSpam(ctx context.Context, m gromozeka.StoredMessage) error {
	return s.addExemplar(ctx, "spam_messages", m)
}

func (s *Store) AddHam(ctx context.Context, m gromozeka.StoredMessage) error {
	return s.addExemplar(ctx, "ham_messages", m)
}

func (s *Store) addExemplar(ctx context.Context, table string, m gromozeka.StoredMessage) error {
	// table is one of two fixed names, never caller data.
	q := fmt.Sprintf(`INSERT INTO %s (chat_id, user_id, message_id, text, reason, score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chat_id, user_id, message_id) DO UPDATE SET
			text = EXCLUDED.text, reason = EXCLUDED.reason, score = EXCLUDED.score`, table)
	_, err := s.pool.Exec(ctx, q,
		m.ChatID, m.UserID, m.MessageID, m.Text, string(m.Reason), m.Score, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: add %s: %w", table, err)
	}
	return nil
}

func (s *Store) SpamTextExists(ctx context.Context, chatID int64, text string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM spam_messages WHERE chat_id = $1 AND text = $2`,
		chatID, text).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("postgres: spam text exists: %w", err)
	}
	return n > 0, nil
}

func (s *Store) SpamByUser(ctx context.Context, chatID, userID int64) ([]gromozeka.StoredMessage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT message_id, text, reason, score, created_at FROM spam_messages
		 WHERE chat_id = $1 AND user_id = $2 ORDER BY message_id`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: spam by user: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.StoredMessage
	for rows.Next() {
		m := gromozeka.StoredMessage{ChatID: chatID, UserID: userID}
		var reason string
		if err := rows.Scan(&m.MessageID, &m.Text, &reason, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan spam message: %w", err)
		}
		m.Reason = gromozeka.MarkReason(reason)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSpamByUser(ctx context.Context, chatID, userID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM spam_messages WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete spam by user: %w", err)
	}
	return nil
}

// --- Settings ---

func (s *Store) GetSetting(ctx context.Context, chatID int64, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM chat_settings WHERE chat_id = $1 AND key = $2`,
		chatID, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: get setting: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetSetting(ctx context.Context, chatID int64, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_settings (chat_id, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (chat_id, key) DO UPDATE SET value = EXCLUDED.value`,
		chatID, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set setting: %w", err)
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, chatID int64, key string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM chat_settings WHERE chat_id = $1 AND key = $2`, chatID, key)
	if err != nil {
		return fmt.Errorf("postgres: delete setting: %w", err)
	}
	return nil
}

func (s *Store) ChatSettings(ctx context.Context, chatID int64) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM chat_settings WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("postgres: chat settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("postgres: scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
