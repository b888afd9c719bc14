package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, title, content, encrypted_content, preview, created, modified,
	is_archived, password_protected, password_hash, share`

func (r *SQLiteRepository) Upsert(ctx context.Context, n *models.Note) error {
	var share []byte
	if n.Share != nil {
		b, err := json.Marshal(n.Share)
		if err != nil {
			return fmt.Errorf("failed to encode share link: %w", err)
		}
		share = b
	}

	query := `INSERT INTO notes (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			encrypted_content = excluded.encrypted_content,
			preview = excluded.preview,
			created = excluded.created,
			modified = excluded.modified,
			is_archived = excluded.is_archived,
			password_protected = excluded.password_protected,
			password_hash = excluded.password_hash,
			share = excluded.share`

	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.Title, n.Content, n.EncryptedContent, n.Preview,
		dbx.UnixNano(n.Created), dbx.UnixNano(n.Modified),
		n.IsArchived, n.PasswordProtected, n.PasswordHash, share)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*models.Note, error) {
	var (
		n                 models.Note
		created, modified int64
		share             []byte
	)
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &n.EncryptedContent, &n.Preview,
		&created, &modified, &n.IsArchived, &n.PasswordProtected, &n.PasswordHash, &share); err != nil {
		return nil, err
	}
	n.Created = dbx.FromUnixNano(created)
	n.Modified = dbx.FromUnixNano(modified)
	if len(share) > 0 {
		n.Share = &models.ShareLink{}
		if err := json.Unmarshal(share, n.Share); err != nil {
			return nil, fmt.Errorf("failed to decode share link of %s: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note[%s]: %w", id, err)
	}
	return n, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Note, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM notes ORDER BY modified DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate note rows: %w", err)
	}
	return result, nil
}

// Delete removes the note. It expects exactly one row to be affected.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return fmt.Errorf("failed to clear notes: %w", err)
	}
	return nil
}
