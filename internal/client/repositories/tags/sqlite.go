package tags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, t *models.Tag) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tags (id, name, color, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, t.ID, t.Name, t.Color, dbx.UnixNano(t.CreatedAt), dbx.UnixNano(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}
	return nil
}

func scanTag(row interface{ Scan(...any) error }) (*models.Tag, error) {
	var (
		t                  models.Tag
		created, updatedAt int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Color, &created, &updatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt = dbx.FromUnixNano(created)
	t.UpdatedAt = dbx.FromUnixNano(updatedAt)
	return &t, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Tag, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, color, created_at, updated_at FROM tags WHERE id = ?`, id)
	t, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag[%s]: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color, created_at, updated_at FROM tags ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tags: %w", err)
	}
	defer rows.Close()

	var result []*models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tag rows: %w", err)
	}
	return result, nil
}

// Delete removes the tag and detaches it from every note.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM note_tags WHERE tag_id = ?`, id); err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tags`); err != nil {
		return fmt.Errorf("failed to clear tags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetNoteTags(ctx context.Context, noteID string, tagIDs []string) error {
	if err := r.DeleteNoteTags(ctx, noteID); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(tagIDs))
	pos := 0
	for _, id := range tagIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO note_tags (note_id, tag_id, position) VALUES (?, ?, ?)`, noteID, id, pos)
		if err != nil {
			return fmt.Errorf("failed to attach tag %s to note %s: %w", id, noteID, err)
		}
		pos++
	}
	return nil
}

func (r *SQLiteRepository) NoteTags(ctx context.Context) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT note_id, tag_id FROM note_tags ORDER BY note_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to select note tags: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]string)
	for rows.Next() {
		var noteID, tagID string
		if err := rows.Scan(&noteID, &tagID); err != nil {
			return nil, fmt.Errorf("failed to scan note tag row: %w", err)
		}
		result[noteID] = append(result[noteID], tagID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note tag rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteNoteTags(ctx context.Context, noteID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete note tags: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAllNoteTags(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM note_tags`); err != nil {
		return fmt.Errorf("failed to clear note tags: %w", err)
	}
	return nil
}
