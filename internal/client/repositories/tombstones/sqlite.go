package tombstones

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Set(ctx context.Context, noteID string, deletedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tombstones (note_id, deleted_at) VALUES (?, ?)
		ON CONFLICT(note_id) DO UPDATE SET deleted_at = MAX(deleted_at, excluded.deleted_at)
	`, noteID, dbx.UnixNano(deletedAt))
	if err != nil {
		return fmt.Errorf("failed to set tombstone[%s]: %w", noteID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete tombstone[%s]: %w", noteID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT note_id, deleted_at FROM tombstones`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	result := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at int64
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone row: %w", err)
		}
		result[id] = dbx.FromUnixNano(at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tombstone rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tombstones`); err != nil {
		return fmt.Errorf("failed to clear tombstones: %w", err)
	}
	return nil
}
