package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// GetChatUser returns the per-chat record for a user.
func (s *Store) GetChatUser(ctx context.Context, chatID, userID int64) (gromozeka.ChatUser, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, display_name, message_count, is_spammer, metadata
		 FROM chat_users WHERE chat_id = ? AND user_id = ?`, chatID, userID)

	u := gromozeka.ChatUser{ChatID: chatID, UserID: userID}
	var spammer int
	var meta string
	if err := row.Scan(&u.Username, &u.DisplayName, &u.MessageCount, &spammer, &meta); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gromozeka.ChatUser{}, false, nil
		}
		return gromozeka.ChatUser{}, false, fmt.Errorf("chat user: %w", err)
	}
	u.IsSpammer = spammer != 0
	if err := json.Unmarshal([]byte(meta), &u.Metadata); err != nil {
		// Unreadable metadata is treated as empty rather than failing
		// the whole lookup.
		u.Metadata = map[string]string{}
	}
	return u, true, nil
}

// UpsertChatUser inserts or refreshes the record for a user observed in a
// chat, incrementing the message count.
func (s *Store) UpsertChatUser(ctx context.Context, u gromozeka.User, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_users (chat_id, user_id, username, display_name, message_count)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			message_count = message_count + 1`,
		chatID, u.ID, u.Username, u.DisplayName)
	if err != nil {
		return fmt.Errorf("upsert chat user: %w", err)
	}
	return nil
}

// SetSpammer flips the spammer flag.
func (s *Store) SetSpammer(ctx context.Context, chatID, userID int64, spammer bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_users (chat_id, user_id, is_spammer) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET is_spammer = excluded.is_spammer`,
		chatID, userID, boolInt(spammer))
	if err != nil {
		return fmt.Errorf("set spammer: %w", err)
	}
	return nil
}

// SetUserMeta writes one metadata key on the user record.
func (s *Store) SetUserMeta(ctx context.Context, chatID, userID int64, key, value string) error {
	u, ok, err := s.GetChatUser(ctx, chatID, userID)
	if err != nil {
		return err
	}
	meta := u.Metadata
	if !ok || meta == nil {
		meta = map[string]string{}
	}
	meta[key] = value
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_users (chat_id, user_id, metadata) VALUES (?, ?, ?)
		 ON CONFLICT(chat_id, user_id) DO UPDATE SET metadata = excluded.metadata`,
		chatID, userID, string(data))
	if err != nil {
		return fmt.Errorf("set user meta: %w", err)
	}
	return nil
}

// IsKnownMember reports whether username has posted in the chat before.
func (s *Store) IsKnownMember(ctx context.Context, chatID int64, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_users WHERE chat_id = ? AND username = ?`,
		chatID, username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("known member: %w", err)
	}
	return n > 0, nil
}
