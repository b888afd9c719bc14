package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *models.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (id, note_id, user_message, ai_response, context_snapshot, kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.NoteID, c.UserMessage, c.AIResponse, c.ContextSnapshot, c.Kind, dbx.UnixNano(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, where string, args ...any) ([]*models.Conversation, error) {
	q := `SELECT id, note_id, user_message, ai_response, context_snapshot, kind, created_at FROM conversations ` +
		where + ` ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select conversations: %w", err)
	}
	defer rows.Close()

	var result []*models.Conversation
	for rows.Next() {
		var (
			c       models.Conversation
			created int64
		)
		if err := rows.Scan(&c.ID, &c.NoteID, &c.UserMessage, &c.AIResponse, &c.ContextSnapshot, &c.Kind, &created); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		c.CreatedAt = dbx.FromUnixNano(created)
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Conversation, error) {
	return r.query(ctx, "")
}

func (r *SQLiteRepository) ListByNote(ctx context.Context, noteID string) ([]*models.Conversation, error) {
	return r.query(ctx, "WHERE note_id = ?", noteID)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete conversation[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByNote(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete conversations of note %s: %w", noteID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE created_at < ?`, dbx.UnixNano(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune conversations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to clear conversations: %w", err)
	}
	return nil
}
