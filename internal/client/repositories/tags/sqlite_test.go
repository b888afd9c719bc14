package tags

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/migrations"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
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

func TestUpsertGetList(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Upsert(ctx, &models.Tag{ID: "t2", Name: "work", Color: "red", CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.Upsert(ctx, &models.Tag{ID: "t1", Name: "home", CreatedAt: ts, UpdatedAt: ts}))
	require.NoError(t, r.Upsert(ctx, &models.Tag{ID: "t2", Name: "office", Color: "blue", CreatedAt: ts, UpdatedAt: ts.Add(time.Second)}))

	got, err := r.Get(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "office", got.Name)
	assert.Equal(t, "blue", got.Color)
	assert.True(t, got.UpdatedAt.Equal(ts.Add(time.Second)))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "home", list[0].Name)

	_, err = r.Get(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteTags_OrderAndDedup(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.SetNoteTags(ctx, "n1", []string{"b", "a", "b", "c"}))
	require.NoError(t, r.SetNoteTags(ctx, "n2", []string{"a"}))

	m, err := r.NoteTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"n1": {"b", "a", "c"}, "n2": {"a"}}, m)

	require.NoError(t, r.SetNoteTags(ctx, "n1", []string{"c"}))
	require.NoError(t, r.DeleteNoteTags(ctx, "n2"))

	m, err = r.NoteTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"n1": {"c"}}, m)
}

func TestDelete_DetachesFromNotes(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Upsert(ctx, &models.Tag{ID: "a", Name: "a", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, r.SetNoteTags(ctx, "n1", []string{"a", "b"}))
	require.NoError(t, r.Delete(ctx, "a"))
	assert.ErrorIs(t, r.Delete(ctx, "a"), common.ErrNotFound)

	m, err := r.NoteTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, m["n1"])
}

func TestDeleteAll(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.Upsert(ctx, &models.Tag{ID: "a", Name: "a", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, r.SetNoteTags(ctx, "n1", []string{"a"}))
	require.NoError(t, r.DeleteAll(ctx))
	require.NoError(t, r.DeleteAllNoteTags(ctx))

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	m, err := r.NoteTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
}
