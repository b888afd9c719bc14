package conflicts

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func encodeNote(n *models.Note) ([]byte, error) {
	if n == nil {
		return nil, nil
	}
	return json.Marshal(n)
}

func decodeNote(b []byte) (*models.Note, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var n models.Note
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, c *models.Conflict) error {
	local, err := encodeNote(c.LocalNote)
	if err != nil {
		return fmt.Errorf("failed to encode local note: %w", err)
	}
	remote, err := encodeNote(c.RemoteNote)
	if err != nil {
		return fmt.Errorf("failed to encode remote note: %w", err)
	}

	resolution := c.Resolution
	if resolution == "" {
		resolution = models.ResolutionPending
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO conflicts (note_id, local_title, local_modified, remote_modified, resolution, local_note, remote_note, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(note_id) DO UPDATE SET
			local_title = excluded.local_title,
			local_modified = excluded.local_modified,
			remote_modified = excluded.remote_modified,
			resolution = excluded.resolution,
			local_note = excluded.local_note,
			remote_note = excluded.remote_note,
			detected_at = excluded.detected_at
	`, c.NoteID, c.LocalTitle, dbx.UnixNano(c.LocalModified), dbx.UnixNano(c.RemoteModified),
		string(resolution), local, remote, dbx.UnixNano(c.DetectedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert conflict: %w", err)
	}
	return nil
}

const selectColumns = `note_id, local_title, local_modified, remote_modified, resolution, local_note, remote_note, detected_at`

func scanConflict(row interface{ Scan(...any) error }) (*models.Conflict, error) {
	var (
		c                     models.Conflict
		localMod, remoteMod   int64
		detected              int64
		resolution            string
		localBlob, remoteBlob []byte
	)
	if err := row.Scan(&c.NoteID, &c.LocalTitle, &localMod, &remoteMod, &resolution, &localBlob, &remoteBlob, &detected); err != nil {
		return nil, err
	}
	c.LocalModified = dbx.FromUnixNano(localMod)
	c.RemoteModified = dbx.FromUnixNano(remoteMod)
	c.DetectedAt = dbx.FromUnixNano(detected)
	c.Resolution = models.Resolution(resolution)

	var err error
	if c.LocalNote, err = decodeNote(localBlob); err != nil {
		return nil, fmt.Errorf("failed to decode local note: %w", err)
	}
	if c.RemoteNote, err = decodeNote(remoteBlob); err != nil {
		return nil, fmt.Errorf("failed to decode remote note: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, noteID string) (*models.Conflict, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM conflicts WHERE note_id = ?`, noteID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict[%s]: %w", noteID, err)
	}
	return c, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.Conflict, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM conflicts ORDER BY detected_at, note_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict row: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conflict rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, noteID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conflicts WHERE note_id = ?`, noteID)
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
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
