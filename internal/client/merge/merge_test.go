package merge

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
	t3 = t0.Add(3 * time.Hour)
)

func newResolver() *Resolver {
	r := NewResolver(logging.Nop{})
	r.now = func() time.Time { return t3 }
	return r
}

func note(id, content string, created, modified time.Time) *models.Note {
	return &models.Note{ID: id, Title: "note " + id, Content: content, Created: created, Modified: modified}
}

func snap(notes ...*models.Note) *models.Snapshot {
	s := models.NewSnapshot()
	for _, n := range notes {
		s.Notes[n.ID] = n
	}
	return s
}

func TestMerge_LocalNewerSameNote_UploadsWithoutConflict(t *testing.T) {
	local := snap(&models.Note{ID: "1", Modified: t2})
	remote := snap(&models.Note{ID: "1", Modified: t1})

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)

	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1, res.Stats.Uploaded)
	assert.Equal(t, 0, res.Stats.Downloaded)
	assert.Equal(t, DecisionKeepLocal, res.Decisions["1"])
	assert.True(t, res.Snapshot.Notes["1"].Modified.Equal(t2))
}

func TestMerge_RemoteOnly_Downloads(t *testing.T) {
	local := snap()
	remote := snap(note("2", "hello", t1, t1))

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)

	require.Contains(t, res.Snapshot.Notes, "2")
	assert.Equal(t, "hello", res.Snapshot.Notes["2"].Content)
	assert.Equal(t, 1, res.Stats.Downloaded)
	assert.Equal(t, DecisionTakeRemote, res.Decisions["2"])
}

func TestMerge_OneSidedChangesSinceLastSync(t *testing.T) {
	// every note present on one side only is taken from that side
	local := snap(note("a", "local new", t1, t1))
	remote := snap(note("b", "remote new", t2, t2))

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)

	assert.Equal(t, local.Notes["a"].Content, res.Snapshot.Notes["a"].Content)
	assert.Equal(t, remote.Notes["b"].Content, res.Snapshot.Notes["b"].Content)
	assert.Equal(t, models.SyncStats{Uploaded: 1, Downloaded: 1}, res.Stats)
}

func TestMerge_BothChanged_ConflictAndNewestWins(t *testing.T) {
	tests := []struct {
		name        string
		localMod    time.Time
		remoteMod   time.Time
		wantContent string
		wantStats   models.SyncStats
	}{
		{"remote newer", t1, t2, "remote", models.SyncStats{Downloaded: 1}},
		{"local newer", t2, t1, "local", models.SyncStats{Uploaded: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := snap(note("n", "local", t0.Add(-time.Hour), tt.localMod))
			remote := snap(note("n", "remote", t0.Add(-time.Hour), tt.remoteMod))

			res, err := newResolver().Merge(context.Background(), local, remote, t0)
			require.NoError(t, err)

			require.Len(t, res.Conflicts, 1)
			c := res.Conflicts[0]
			assert.Equal(t, "n", c.NoteID)
			assert.Equal(t, models.ResolutionPending, c.Resolution)
			assert.True(t, c.LocalModified.Equal(tt.localMod))
			assert.True(t, c.RemoteModified.Equal(tt.remoteMod))
			assert.Equal(t, "local", c.LocalNote.Content)
			assert.Equal(t, "remote", c.RemoteNote.Content)
			assert.True(t, c.DetectedAt.Equal(t3))

			assert.Equal(t, tt.wantContent, res.Snapshot.Notes["n"].Content)
			assert.Equal(t, tt.wantStats, res.Stats)
		})
	}
}

func TestMerge_OnlyOneSideChanged_NoConflict(t *testing.T) {
	base := t0.Add(-time.Hour)

	local := snap(note("n", "edited", base, t1))
	remote := snap(note("n", "original", base, base))
	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, "edited", res.Snapshot.Notes["n"].Content)
	assert.Equal(t, 1, res.Stats.Uploaded)

	local = snap(note("n", "original", base, base))
	remote = snap(note("n", "edited remotely", base, t1))
	res, err = newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, "edited remotely", res.Snapshot.Notes["n"].Content)
	assert.Equal(t, 1, res.Stats.Downloaded)
}

func TestMerge_IdenticalNotes_Unchanged(t *testing.T) {
	local := snap(note("n", "same", t0, t1))
	remote := snap(note("n", "same", t0, t1))

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnchanged, res.Decisions["n"])
	assert.Equal(t, models.SyncStats{}, res.Stats)
	assert.Empty(t, res.Conflicts)
}

func TestMerge_Deletions(t *testing.T) {
	old := t0.Add(-2 * time.Hour)

	t.Run("remote tombstone removes unchanged local note", func(t *testing.T) {
		local := snap(note("n", "x", old, old))
		remote := snap()
		remote.Deleted["n"] = t1

		res, err := newResolver().Merge(context.Background(), local, remote, t0)
		require.NoError(t, err)
		assert.NotContains(t, res.Snapshot.Notes, "n")
		assert.True(t, res.Snapshot.Deleted["n"].Equal(t1))
		assert.Equal(t, DecisionDeleted, res.Decisions["n"])
	})

	t.Run("local edit newer than remote deletion survives", func(t *testing.T) {
		local := snap(note("n", "x", old, t2))
		remote := snap()
		remote.Deleted["n"] = t1

		res, err := newResolver().Merge(context.Background(), local, remote, t0)
		require.NoError(t, err)
		assert.Contains(t, res.Snapshot.Notes, "n")
		assert.NotContains(t, res.Snapshot.Deleted, "n")
		assert.Equal(t, 1, res.Stats.Uploaded)
	})

	t.Run("unchanged local note missing remotely is dropped", func(t *testing.T) {
		local := snap(note("n", "x", old, old))

		res, err := newResolver().Merge(context.Background(), local, snap(), t0)
		require.NoError(t, err)
		assert.NotContains(t, res.Snapshot.Notes, "n")
	})

	t.Run("first sync keeps everything local", func(t *testing.T) {
		local := snap(note("n", "x", old, old))

		res, err := newResolver().Merge(context.Background(), local, snap(), time.Time{})
		require.NoError(t, err)
		assert.Contains(t, res.Snapshot.Notes, "n")
	})

	t.Run("local tombstone newer than remote copy prevents resurrection", func(t *testing.T) {
		local := snap()
		local.Deleted["n"] = t2
		remote := snap(note("n", "x", old, t1))

		res, err := newResolver().Merge(context.Background(), local, remote, t0)
		require.NoError(t, err)
		assert.NotContains(t, res.Snapshot.Notes, "n")
		assert.True(t, res.Snapshot.Deleted["n"].Equal(t2))
		assert.Equal(t, DecisionStaysDeleted, res.Decisions["n"])
	})

	t.Run("remote edit newer than local tombstone resurrects", func(t *testing.T) {
		local := snap()
		local.Deleted["n"] = t1
		remote := snap(note("n", "x", old, t2))

		res, err := newResolver().Merge(context.Background(), local, remote, t0)
		require.NoError(t, err)
		assert.Contains(t, res.Snapshot.Notes, "n")
		assert.NotContains(t, res.Snapshot.Deleted, "n")
	})

	t.Run("tombstones union keeps latest", func(t *testing.T) {
		local := snap()
		local.Deleted["n"] = t1
		remote := snap()
		remote.Deleted["n"] = t2
		remote.Deleted["m"] = t1

		res, err := newResolver().Merge(context.Background(), local, remote, t0)
		require.NoError(t, err)
		assert.True(t, res.Snapshot.Deleted["n"].Equal(t2))
		assert.Contains(t, res.Snapshot.Deleted, "m")
	})
}

func TestMerge_Tags(t *testing.T) {
	local := snap(note("n", "x", t1, t1))
	local.Tags["t1"] = &models.Tag{ID: "t1", Name: "old name", UpdatedAt: t1}
	local.Tags["t2"] = &models.Tag{ID: "t2", Name: "local only", UpdatedAt: t1}
	local.NoteTags["n"] = []string{"t1", "t2", "ghost"}

	remote := snap()
	remote.Tags["t1"] = &models.Tag{ID: "t1", Name: "new name", Color: "red", UpdatedAt: t2}
	remote.Tags["t3"] = &models.Tag{ID: "t3", Name: "remote only", UpdatedAt: t1}

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)

	assert.Len(t, res.Snapshot.Tags, 3)
	assert.Equal(t, "new name", res.Snapshot.Tags["t1"].Name)
	assert.Equal(t, "red", res.Snapshot.Tags["t1"].Color)
	assert.Equal(t, []string{"t1", "t2"}, res.Snapshot.NoteTags["n"])
	assert.Equal(t, []string{"t1", "t2"}, res.Snapshot.Notes["n"].Tags)
}

func TestMerge_NoteTagsFollowWinner(t *testing.T) {
	local := snap(note("n", "x", t0, t0))
	local.Tags["a"] = &models.Tag{ID: "a", UpdatedAt: t0}
	local.Tags["b"] = &models.Tag{ID: "b", UpdatedAt: t0}
	local.NoteTags["n"] = []string{"a"}

	remote := snap(note("n", "x", t0, t2))
	remote.Tags["a"] = &models.Tag{ID: "a", UpdatedAt: t0}
	remote.Tags["b"] = &models.Tag{ID: "b", UpdatedAt: t0}
	remote.NoteTags["n"] = []string{"b"}

	res, err := newResolver().Merge(context.Background(), local, remote, t1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.Snapshot.NoteTags["n"])
	assert.Empty(t, res.Conflicts)
}

func TestMerge_Conversations(t *testing.T) {
	local := snap(note("n", "x", t1, t1))
	local.Conversations["c1"] = &models.Conversation{ID: "c1", NoteID: "n", CreatedAt: t1}
	local.Conversations["orphan"] = &models.Conversation{ID: "orphan", NoteID: "missing", CreatedAt: t1}

	remote := snap()
	remote.Conversations["c2"] = &models.Conversation{ID: "c2", NoteID: "n", CreatedAt: t2}
	remote.Conversations["bad"] = &models.Conversation{ID: "bad"}

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)

	assert.Len(t, res.Snapshot.Conversations, 2)
	assert.Contains(t, res.Snapshot.Conversations, "c1")
	assert.Contains(t, res.Snapshot.Conversations, "c2")
}

func TestMerge_InputsNotModified(t *testing.T) {
	local := snap(note("n", "local", t0, t1))
	remote := snap(note("n", "remote", t0, t2))
	before := local.Clone()

	res, err := newResolver().Merge(context.Background(), local, remote, t0)
	require.NoError(t, err)
	res.Snapshot.Notes["n"].Content = "changed"

	assert.Equal(t, before.Notes["n"].Content, local.Notes["n"].Content)
	assert.Equal(t, "remote", remote.Notes["n"].Content)
}

func TestMerge_Schema(t *testing.T) {
	broken := &models.Snapshot{Notes: map[string]*models.Note{}}

	_, err := newResolver().Merge(context.Background(), broken, snap(), t0)
	assert.ErrorIs(t, err, common.ErrSchema)

	_, err = newResolver().Merge(context.Background(), snap(), nil, t0)
	assert.ErrorIs(t, err, common.ErrSchema)
}
