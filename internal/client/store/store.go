// Package store is the local note database: it opens the SQLite file, applies
// migrations and exposes the per-table repositories together with the
// whole-database operations the snapshot codec needs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/migrations"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/conversations"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/notes"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/tags"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/tombstones"
	"github.com/dmitrijs2005/notesync/internal/dbx"

	_ "modernc.org/sqlite"
)

// Repositories groups every table repository bound to the same DBTX.
type Repositories struct {
	Notes         notes.Repository
	Tags          tags.Repository
	Conversations conversations.Repository
	Tombstones    tombstones.Repository
	Conflicts     conflicts.Repository
	Metadata      metadata.Repository
}

// NewRepositories binds all SQLite repositories to db.
func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Notes:         notes.NewSQLiteRepository(db),
		Tags:          tags.NewSQLiteRepository(db),
		Conversations: conversations.NewSQLiteRepository(db),
		Tombstones:    tombstones.NewSQLiteRepository(db),
		Conflicts:     conflicts.NewSQLiteRepository(db),
		Metadata:      metadata.NewSQLiteRepository(db),
	}
}

type Store struct {
	db *sql.DB
	*Repositories
}

// Open opens (creating if needed) the SQLite database at dsn and migrates it.
// SQLite allows a single writer, so the pool is limited to one connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, Repositories: NewRepositories(db)}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn with repositories bound to one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// PruneConversations removes conversation entries older than maxAge.
func (s *Store) PruneConversations(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.Conversations.DeleteOlderThan(ctx, time.Now().Add(-maxAge))
}
