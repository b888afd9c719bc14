package blobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put inserts the blob or replaces the existing one with the same key.
func (r *PostgresRepository) Put(ctx context.Context, b *models.Blob) error {
	query :=
		`INSERT INTO blobs (user_id, key, data, meta, size, modified_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, key) DO UPDATE
		 SET data = EXCLUDED.data, meta = EXCLUDED.meta, size = EXCLUDED.size, modified_at = EXCLUDED.modified_at
		 `

	meta, err := encodeMeta(b.Meta)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, b.UserID, b.Key, b.Data, meta, b.Size, b.ModifiedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, key string) (*models.Blob, error) {
	query :=
		`SELECT key, data, meta, size, modified_at FROM blobs
		 WHERE user_id = $1 AND key = $2
		 `

	b := &models.Blob{UserID: userID}
	var meta []byte
	err := r.db.QueryRowContext(ctx, query, userID, key).Scan(&b.Key, &b.Data, &meta, &b.Size, &b.ModifiedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if b.Meta, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	return b, nil
}

// Stat is Get without the content.
func (r *PostgresRepository) Stat(ctx context.Context, userID, key string) (*models.Blob, error) {
	query :=
		`SELECT key, meta, size, modified_at FROM blobs
		 WHERE user_id = $1 AND key = $2
		 `

	b := &models.Blob{UserID: userID}
	var meta []byte
	err := r.db.QueryRowContext(ctx, query, userID, key).Scan(&b.Key, &meta, &b.Size, &b.ModifiedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if b.Meta, err = decodeMeta(meta); err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes the blob. Deleting a missing key is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, userID, key string) error {
	query := `DELETE FROM blobs WHERE user_id = $1 AND key = $2`

	if _, err := r.db.ExecContext(ctx, query, userID, key); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// List returns descriptions of the user's blobs whose key starts with
// prefix, ordered by key.
func (r *PostgresRepository) List(ctx context.Context, userID, prefix string) ([]*models.Blob, error) {
	query :=
		`SELECT key, meta, size, modified_at FROM blobs
		 WHERE user_id = $1 AND key LIKE $2 ESCAPE '\'
		 ORDER BY key
		 `

	rows, err := r.db.QueryContext(ctx, query, userID, likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Blob
	for rows.Next() {
		b := &models.Blob{UserID: userID}
		var meta []byte
		if err := rows.Scan(&b.Key, &meta, &b.Size, &b.ModifiedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if b.Meta, err = decodeMeta(meta); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func encodeMeta(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}
	return b, nil
}

func decodeMeta(raw []byte) (map[string]string, error) {
	m := map[string]string{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	return m, nil
}
