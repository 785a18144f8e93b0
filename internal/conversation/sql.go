package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alta-ny/chatbot/internal/models"
	"github.com/alta-ny/chatbot/internal/store"
)

// SQLStore persists history in the conversation_turns table so sessions
// survive restarts.
type SQLStore struct {
	db    *store.DB
	limit int
}

func NewSQLStore(db *store.DB, limit int) *SQLStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &SQLStore{db: db, limit: limit}
}

// Append inserts the turns and trims the session in one transaction.
func (s *SQLStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	if err := checkRoles(turns); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		ts := t.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_turns (session_id, role, content, created_at)
			VALUES (?, ?, ?, ?)
		`, sessionID, string(t.Role), t.Content, ts.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM conversation_turns
		WHERE session_id = ? AND id NOT IN (
			SELECT id FROM conversation_turns
			WHERE session_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`, sessionID, sessionID, s.limit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func (s *SQLStore) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, created_at
		FROM conversation_turns
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var (
			t       models.Turn
			role    string
			created int64
		)
		if err := rows.Scan(&role, &t.Content, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = models.Role(role)
		t.Timestamp = time.UnixMilli(created).UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *SQLStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	n, err := s.db.SessionCount()
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}
