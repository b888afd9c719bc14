package notes

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/migrations"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Up(context.Background(), db))
	return db
}

func sampleNote(id string, modified time.Time) *models.Note {
	return &models.Note{
		ID:       id,
		Title:    "title " + id,
		Content:  "body of " + id,
		Preview:  "body",
		Created:  modified.Add(-time.Hour),
		Modified: modified,
	}
}

func TestUpsert_InsertThenGet(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	n := sampleNote("n1", time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC))
	n.Share = &models.ShareLink{Provider: "docs", ExternalID: "ext", URL: "https://example.com/d"}
	n.EncryptedContent = []byte{1, 2, 3}
	n.PasswordProtected = true
	n.PasswordHash = "$argon2id$..."
	require.NoError(t, r.Upsert(ctx, n))

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	if diff := cmp.Diff(n, got); diff != "" {
		t.Fatalf("note mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	n := sampleNote("n1", ts)
	require.NoError(t, r.Upsert(ctx, n))

	n.Title = "renamed"
	n.Modified = ts.Add(time.Minute)
	n.Share = nil
	require.NoError(t, r.Upsert(ctx, n))

	got, err := r.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.Modified.Equal(ts.Add(time.Minute)))
	assert.Nil(t, got.Share)
}

func TestGet_NotFound(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestList_OrderedByModified(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Upsert(ctx, sampleNote("old", base)))
	require.NoError(t, r.Upsert(ctx, sampleNote("new", base.Add(time.Hour))))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].ID)
	assert.Equal(t, "old", list[1].ID)
}

func TestDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleNote("n1", time.Now())))
	require.NoError(t, r.Delete(ctx, "n1"))
	assert.ErrorIs(t, r.Delete(ctx, "n1"), common.ErrNotFound)

	_, err := r.Get(ctx, "n1")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeleteAll(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleNote("a", time.Now())))
	require.NoError(t, r.Upsert(ctx, sampleNote("b", time.Now())))
	require.NoError(t, r.DeleteAll(ctx))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestErrorsWrapped_ClosedDB(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get note[x]")

	_, err = r.List(ctx)
	assert.ErrorContains(t, err, "failed to select notes")

	err = r.Upsert(ctx, sampleNote("x", time.Now()))
	assert.ErrorContains(t, err, "failed to upsert note")
}
