package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the raw override for (chatID, key), reporting false
// when no override is stored.
func (s *Store) GetSetting(ctx context.Context, chatID int64, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM chat_settings WHERE chat_id = ? AND key = ?`,
		chatID, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return v, true, nil
}

// SetSetting stores or replaces the raw override for (chatID, key).
func (s *Store) SetSetting(ctx context.Context, chatID int64, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_settings (chat_id, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id, key) DO UPDATE SET value = excluded.value`,
		chatID, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// DeleteSetting removes the override so the default applies again.
func (s *Store) DeleteSetting(ctx context.Context, chatID int64, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_settings WHERE chat_id = ? AND key = ?`, chatID, key)
	if err != nil {
		return fmt.Errorf("delete setting: %w", err)
	}
	return nil
}

// ChatSettings returns all stored overrides for a chat.
func (s *Store) ChatSettings(ctx context.Context, chatID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM chat_settings WHERE chat_id = ?`, chatID)
	if err != nil {
		return nil, fmt.Errorf("chat settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("chat settings scan: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
