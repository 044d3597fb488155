package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gromozeka "github.com/NotA-Company/gromozeka-sub003"
)

// GetTokenStats returns counters for one token in scope.
func (s *Store) GetTokenStats(ctx context.Context, token string, scope gromozeka.Scope) (gromozeka.TokenStats, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT spam_count, ham_count FROM bayes_tokens WHERE chat_id = ? AND token = ?`,
		scope.ChatID, token)
	st := gromozeka.TokenStats{Token: token}
	if err := row.Scan(&st.Spam, &st.Ham); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gromozeka.TokenStats{}, false, nil
		}
		return gromozeka.TokenStats{}, false, fmt.Errorf("token stats: %w", err)
	}
	st.Total = st.Spam + st.Ham
	return st, true, nil
}

// GetClassStats returns per-class counters in scope, zero-valued if the
// class has never been trained.
func (s *Store) GetClassStats(ctx context.Context, spam bool, scope gromozeka.Scope) (gromozeka.ClassStats, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT message_count, token_count FROM bayes_classes WHERE chat_id = ? AND spam = ?`,
		scope.ChatID, boolInt(spam))
	var st gromozeka.ClassStats
	if err := row.Scan(&st.Messages, &st.Tokens); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return gromozeka.ClassStats{}, nil
		}
		return gromozeka.ClassStats{}, fmt.Errorf("class stats: %w", err)
	}
	return st, nil
}

// UpdateTokenStats increments one token's class counter.
func (s *Store) UpdateTokenStats(ctx context.Context, token string, spam bool, inc int64, scope gromozeka.Scope) error {
	_, err := s.db.ExecContext(ctx, tokenUpsertSQL(spam), scope.ChatID, token, inc, inc)
	if err != nil {
		return fmt.Errorf("update token stats: %w", err)
	}
	return nil
}

func tokenUpsertSQL(spam bool) string {
	col := "ham_count"
	if spam {
		col = "spam_count"
	}
	return fmt.Sprintf(`INSERT INTO bayes_tokens (chat_id, token, %[1]s) VALUES (?, ?, ?)
		ON CONFLICT(chat_id, token) DO UPDATE SET %[1]s = %[1]s + ?`, col)
}

// UpdateClassStats increments a class's message and token counters.
func (s *Store) UpdateClassStats(ctx context.Context, spam bool, msgInc, tokInc int64, scope gromozeka.Scope) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bayes_classes (chat_id, spam, message_count, token_count) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, spam) DO UPDATE SET
			message_count = message_count + excluded.message_count,
			token_count = token_count + excluded.token_count`,
		scope.ChatID, boolInt(spam), msgInc, tokInc)
	if err != nil {
		return fmt.Errorf("update class stats: %w", err)
	}
	return nil
}

// BatchUpdateTokens applies all updates in one transaction.
func (s *Store) BatchUpdateTokens(ctx context.Context, updates []gromozeka.TokenUpdate, scope gromozeka.Scope) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, tokenUpsertSQL(u.Spam), scope.ChatID, u.Token, u.Inc, u.Inc); err != nil {
			return fmt.Errorf("batch token update %q: %w", u.Token, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("sqlite: batch token update", "tokens", len(updates), "chat", scope.ChatID)
	return nil
}

// VocabularySize returns the number of distinct tokens in scope.
func (s *Store) VocabularySize(ctx context.Context, scope gromozeka.Scope) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bayes_tokens WHERE chat_id = ?`, scope.ChatID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("vocabulary size: %w", err)
	}
	return n, nil
}

// GetModelStats summarizes the trained model in scope.
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

// ClearStats drops all counters in scope.
func (s *Store) ClearStats(ctx context.Context, scope gromozeka.Scope) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM bayes_tokens WHERE chat_id = ?`, scope.ChatID); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM bayes_classes WHERE chat_id = ?`, scope.ChatID); err != nil {
		return fmt.Errorf("clear classes: %w", err)
	}
	return nil
}

// ClearAllStats drops counters in every scope.
func (s *Store) ClearAllStats(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bayes_tokens`); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bayes_classes`); err != nil {
		return fmt.Errorf("clear classes: %w", err)
	}
	return nil
}

// TopSpamTokens returns the most spam-indicative tokens in scope: ordered
// by spam share of total descending, considering only tokens seen at
// least twice.
func (s *Store) TopSpamTokens(ctx context.Context, limit int, scope gromozeka.Scope) ([]gromozeka.TokenStats, error) {
	return s.topTokens(ctx, limit, scope, "spam_count")
}

// TopHamTokens is the ham-side counterpart of TopSpamTokens.
func (s *Store) TopHamTokens(ctx context.Context, limit int, scope gromozeka.Scope) ([]gromozeka.TokenStats, error) {
	return s.topTokens(ctx, limit, scope, "ham_count")
}

func (s *Store) topTokens(ctx context.Context, limit int, scope gromozeka.Scope, col string) ([]gromozeka.TokenStats, error) {
	// col is one of two fixed column names, never caller data.
	q := fmt.Sprintf(`SELECT token, spam_count, ham_count FROM bayes_tokens
		WHERE chat_id = ? AND spam_count + ham_count >= 2
		ORDER BY CAST(%s AS REAL) / (spam_count + ham_count) DESC, token
		LIMIT ?`, col)
	rows, err := s.db.QueryContext(ctx, q, scope.ChatID, limit)
	if err != nil {
		return nil, fmt.Errorf("top tokens: %w", err)
	}
	defer rows.Close()

	var out []gromozeka.TokenStats
	for rows.Next() {
		var st gromozeka.TokenStats
		if err := rows.Scan(&st.Token, &st.Spam, &st.Ham); err != nil {
			return nil, fmt.Errorf("top tokens scan: %w", err)
		}
		st.Total = st.Spam + st.Ham
		out = append(out, st)
	}
	return out, rows.Err()
}

// CleanupRareTokens deletes tokens seen fewer than minCount times in scope
// and returns the number removed.
func (s *Store) CleanupRareTokens(ctx context.Context, minCount int64, scope gromozeka.Scope) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bayes_tokens WHERE chat_id = ? AND spam_count + ham_count < ?`,
		scope.ChatID, minCount)
	if err != nil {
		return 0, fmt.Errorf("cleanup rare tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rare tokens: %w", err)
	}
	s.logger.Debug("sqlite: cleaned rare tokens", "removed", n, "chat", scope.ChatID)
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
