package media

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAsset(t *testing.T, dir, name, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(data), 0o600))
}

func notesWith(contents ...string) map[string]*models.Note {
	notes := map[string]*models.Note{}
	for i, c := range contents {
		id := string(rune('a' + i))
		notes[id] = &models.Note{ID: id, Content: c}
	}
	return notes
}

func TestReferences(t *testing.T) {
	refs := References(notesWith(
		"see attachment://img-1.png and attachment://doc_2.pdf",
		"again attachment://img-1.png, plus attachment://../etc",
		"nothing here",
	))
	assert.Equal(t, map[string]struct{}{"img-1.png": {}, "doc_2.pdf": {}}, refs)
}

func TestReconcile_UploadsDownloadsAndCleansUp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rs := remote.NewMemoryStore()

	writeAsset(t, dir, "new.png", "fresh")
	writeAsset(t, dir, "same.png", "12345")
	writeAsset(t, dir, "resized.png", "bigger now")
	writeAsset(t, dir, "orphan-local.png", "x")
	writeAsset(t, dir, ".hidden", "x")

	require.NoError(t, rs.Put(ctx, remote.MediaPrefix+"same.png", []byte("12345"), nil))
	require.NoError(t, rs.Put(ctx, remote.MediaPrefix+"resized.png", []byte("small"), nil))
	require.NoError(t, rs.Put(ctx, remote.MediaPrefix+"remote-only.png", []byte("remote"), nil))
	require.NoError(t, rs.Put(ctx, remote.MediaPrefix+"orphan-remote.png", []byte("y"), nil))

	notes := notesWith(
		"attachment://new.png attachment://same.png",
		"attachment://resized.png attachment://remote-only.png",
	)
	r := NewReconciler(dir, rs, 2, logging.Nop{})
	rep := r.Reconcile(ctx, notes)

	assert.Empty(t, rep.Errors)
	assert.Equal(t, []string{"new.png", "resized.png"}, rep.Uploaded)
	assert.Equal(t, []string{"remote-only.png"}, rep.Downloaded)
	assert.Equal(t, []string{"orphan-remote.png"}, rep.DeletedRemote)
	assert.Equal(t, []string{"orphan-local.png"}, rep.DeletedLocal)

	data, err := os.ReadFile(filepath.Join(dir, "remote-only.png"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	got, _, err := rs.Get(ctx, remote.MediaPrefix+"resized.png")
	require.NoError(t, err)
	assert.Equal(t, "bigger now", string(got))

	_, err = os.Stat(filepath.Join(dir, ".hidden"))
	assert.NoError(t, err)

	again := r.Reconcile(ctx, notes)
	assert.Empty(t, again.Uploaded)
	assert.Empty(t, again.Downloaded)
	assert.Empty(t, again.DeletedRemote)
	assert.Empty(t, again.DeletedLocal)
}

func TestReconcile_ProtectedNotesBlockCleanup(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rs := remote.NewMemoryStore()
	writeAsset(t, dir, "maybe-used.png", "x")
	require.NoError(t, rs.Put(ctx, remote.MediaPrefix+"also-maybe.png", []byte("y"), nil))

	notes := map[string]*models.Note{"p": {ID: "p", PasswordProtected: true}}
	rep := NewReconciler(dir, rs, 0, logging.Nop{}).Reconcile(ctx, notes)

	assert.Empty(t, rep.DeletedLocal)
	assert.Empty(t, rep.DeletedRemote)
	_, err := os.Stat(filepath.Join(dir, "maybe-used.png"))
	assert.NoError(t, err)
}

func TestReconcile_RemoteFailureIsReported(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rs := remote.NewMemoryStore()
	rs.SetOffline(true)
	writeAsset(t, dir, "a.png", "x")

	rep := NewReconciler(dir, rs, 1, logging.Nop{}).Reconcile(ctx, notesWith("attachment://a.png"))
	require.Len(t, rep.Errors, 1)
	assert.Empty(t, rep.Uploaded)

	_, err := os.Stat(filepath.Join(dir, "a.png"))
	assert.NoError(t, err)
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 50*time.Millisecond, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeAsset(t, dir, "one.png", "1")
	writeAsset(t, dir, "two.png", "2")

	select {
	case <-w.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change signal")
	}

	select {
	case <-w.Changes():
		t.Fatal("burst produced more than one signal")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherIgnoresTempFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, 20*time.Millisecond, logging.Nop{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeAsset(t, dir, ".partial-123.tmp", "x")

	select {
	case <-w.Changes():
		t.Fatal("temp file triggered a change")
	case <-time.After(200 * time.Millisecond):
	}
}
