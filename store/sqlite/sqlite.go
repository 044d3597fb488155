// Package sqlite implements the persistent gromozeka stores using pure-Go
// SQLite: the cache table, Bayes counters, chat users, message history,
// spam/ham corpora, and chat settings. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When set, the store
// emits debug logs for every operation including timing and row counts.
// If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements the persistent store interfaces backed by a local
// SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var (
	_ gromozeka.BayesStore    = (*Store)(nil)
	_ gromozeka.UserStore     = (*Store)(nil)
	_ gromozeka.MessageStore  = (*Store)(nil)
	_ gromozeka.SettingsStore = (*Store)(nil)
)

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection pool with SetMaxOpenConns(1) so that all
// goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables. Idempotent.
//
// The bayes tables key rows on (chat_id, token) with chat_id 0 standing in
// for the global scope; Telegram chat ids are never 0, and a NOT NULL
// column keeps the primary key enforceable (SQLite treats NULLs in a
// unique index as distinct).
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	tables := []string{
		`CREATE TABLE IF NOT EXISTS cache (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS bayes_tokens (
			chat_id INTEGER NOT NULL DEFAULT 0,
			token TEXT NOT NULL,
			spam_count INTEGER NOT NULL DEFAULT 0,
			ham_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, token)
		)`,
		`CREATE TABLE IF NOT EXISTS bayes_classes (
			chat_id INTEGER NOT NULL DEFAULT 0,
			spam INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (chat_id, spam)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_users (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			message_count INTEGER NOT NULL DEFAULT 0,
			is_spammer INTEGER NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (chat_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS spam_messages (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			reason TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ham_messages (
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			message_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			reason TEXT NOT NULL,
			score REAL NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (chat_id, user_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (chat_id, key)
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_spam_text ON spam_messages(chat_id, text)`,
		`CREATE INDEX IF NOT EXISTS idx_users_name ON chat_users(chat_id, username)`,
	}
	for _, ddl := range indexes {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	s.logger.Debug("sqlite: init done", "took", time.Since(start))
	return nil
}

// DB exposes the underlying connection for migrations and tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
