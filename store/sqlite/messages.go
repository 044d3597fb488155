package sqlite

import (
	"context"
	"fmt"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// RecordMessage appends a message to the rolling per-user history.
func (s *Store) RecordMessage(ctx context.Context, m gromozeka.StoredMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, user_id, message_id, text, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id, user_id, message_id) DO UPDATE SET text = excluded.text`,
		m.ChatID, m.UserID, m.MessageID, m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit of the user's messages ordered by
// message id descending.
func (s *Store) RecentMessages(ctx context.Context, chatID, userID int64, limit int) ([]gromozeka.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, text, created_at FROM messages
		 WHERE chat_id = ? AND user_id = ?
		 ORDER BY message_id DESC LIMIT ?`, chatID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.StoredMessage
	for rows.Next() {
		m := gromozeka.StoredMessage{ChatID: chatID, UserID: userID}
		if err := rows.Scan(&m.MessageID, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent messages scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddSpam appends an exemplar to the spam corpus.
func (s *Store) AddSpam(ctx context.Context, m gromozeka.StoredMessage) error {
	return s.addExemplar(ctx, "spam_messages", m)
}

// AddHam appends an exemplar to the ham corpus.
func (s *Store) AddHam(ctx context.Context, m gromozeka.StoredMessage) error {
	return s.addExemplar(ctx, "ham_messages", m)
}

func (s *Store) addExemplar(ctx context.Context, table string, m gromozeka.StoredMessage) error {
	// table is one of two fixed names, never caller data.
	q := fmt.Sprintf(`INSERT INTO %s (chat_id, user_id, message_id, text, reason, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id, message_id) DO UPDATE SET
			text = excluded.text, reason = excluded.reason, score = excluded.score`, table)
	_, err := s.db.ExecContext(ctx, q,
		m.ChatID, m.UserID, m.MessageID, m.Text, string(m.Reason), m.Score, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("add %s: %w", table, err)
	}
	return nil
}

// SpamTextExists reports whether the spam corpus holds a message with
// exactly this text in the chat.
func (s *Store) SpamTextExists(ctx context.Context, chatID int64, text string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM spam_messages WHERE chat_id = ? AND text = ?`,
		chatID, text).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("spam text exists: %w", err)
	}
	return n > 0, nil
}

// SpamByUser returns all of the user's spam-corpus entries in the chat.
func (s *Store) SpamByUser(ctx context.Context, chatID, userID int64) ([]gromozeka.StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, text, reason, score, created_at FROM spam_messages
		 WHERE chat_id = ? AND user_id = ? ORDER BY message_id`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("spam by user: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.StoredMessage
	for rows.Next() {
		m := gromozeka.StoredMessage{ChatID: chatID, UserID: userID}
		var reason string
		if err := rows.Scan(&m.MessageID, &m.Text, &reason, &m.Score, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("spam by user scan: %w", err)
		}
		m.Reason = gromozeka.MarkReason(reason)
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteSpamByUser drops the user's spam-corpus entries in the chat.
func (s *Store) DeleteSpamByUser(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM spam_messages WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("delete spam by user: %w", err)
	}
	return nil
}
