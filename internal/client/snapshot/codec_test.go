package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/merge"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/store"
	"github.com/dmitrijs2005/notesync/internal/client/syncmeta"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

type fixture struct {
	store *store.Store
	meta  *syncmeta.Store
	codec *Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	meta := syncmeta.New(s.Metadata)
	codec := NewCodec(s, meta, merge.NewResolver(logging.Nop{}), logging.Nop{})
	codec.now = func() time.Time { return t2 }
	return &fixture{store: s, meta: meta, codec: codec}
}

func (f *fixture) addNote(t *testing.T, n *models.Note, tagIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.Notes.Upsert(ctx, n))
	if len(tagIDs) > 0 {
		require.NoError(t, f.store.Tags.SetNoteTags(ctx, n.ID, tagIDs))
	}
}

func TestExport_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "n1", Title: "a", Created: t0, Modified: t0})
	require.NoError(t, f.store.Tags.Upsert(ctx, &models.Tag{ID: "tag", Name: "x", CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, f.store.Tags.SetNoteTags(ctx, "n1", []string{"tag"}))

	s1, sum1, err := f.codec.Export(ctx)
	require.NoError(t, err)
	s2, sum2, err := f.codec.Export(ctx)
	require.NoError(t, err)

	assert.Equal(t, sum1, sum2)
	assert.Equal(t, sum1, s1.Metadata.Checksum)
	assert.Equal(t, int64(1), s1.Metadata.Version)
	assert.Equal(t, int64(2), s2.Metadata.Version)
	assert.True(t, s1.Metadata.ExportedAt.Equal(t2))
	assert.Equal(t, []string{"tag"}, s1.NoteTags["n1"])
}

// racingStore simulates a note edit landing right after the export has read
// the store.
type racingStore struct {
	*store.Store
	afterRead func()
}

func (s *racingStore) GetAll(ctx context.Context) (*models.Snapshot, error) {
	snap, err := s.Store.GetAll(ctx)
	s.afterRead()
	return snap, err
}

func TestExport_CaptureTimePrecedesConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clock := t0
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	var raced *models.Note
	rs := &racingStore{Store: f.store, afterRead: func() {
		now := tick()
		raced = &models.Note{ID: "late", Title: "late", Created: now, Modified: now}
		f.addNote(t, raced)
	}}
	codec := NewCodec(rs, f.meta, merge.NewResolver(logging.Nop{}), logging.Nop{})
	codec.now = tick

	snap, _, err := codec.Export(ctx)
	require.NoError(t, err)

	require.NotNil(t, raced)
	assert.NotContains(t, snap.Notes, "late")
	assert.True(t, raced.Modified.After(snap.Metadata.ExportedAt),
		"a note missing from the export must look changed since its capture time")
}

func TestExport_ChecksumFollowsContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "n1", Title: "a", Created: t0, Modified: t0})

	_, before, err := f.codec.Export(ctx)
	require.NoError(t, err)

	f.addNote(t, &models.Note{ID: "n1", Title: "b", Created: t0, Modified: t1})
	_, after, err := f.codec.Export(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestChecksum_IgnoresMetadataAndZone(t *testing.T) {
	a := models.NewSnapshot()
	a.Notes["n"] = &models.Note{ID: "n", Modified: t0}
	b := a.Clone()
	b.Metadata = models.SnapshotMetadata{Version: 42, Checksum: "x"}
	b.Notes["n"].Modified = t0.In(time.FixedZone("EST", -5*3600))
	b.NoteTags["n"] = []string{}

	sa, err := Checksum(a)
	require.NoError(t, err)
	sb, err := Checksum(b)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func incomingSnapshot(t *testing.T, notes ...*models.Note) *models.Snapshot {
	t.Helper()
	s := models.NewSnapshot()
	for _, n := range notes {
		s.Notes[n.ID] = n
	}
	sum, err := Checksum(s)
	require.NoError(t, err)
	s.Metadata = models.SnapshotMetadata{Version: 5, ExportedAt: t1, Checksum: sum}
	return s
}

func TestImport_Replace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "old", Title: "old", Created: t0, Modified: t0})

	in := incomingSnapshot(t, &models.Note{ID: "new", Title: "new", Created: t1, Modified: t1})
	res, err := f.codec.Import(ctx, in, DefaultImportOptions(ModeReplace, t0, nil))
	require.NoError(t, err)

	assert.Equal(t, models.EntityCounts{Created: 1, Deleted: 1}, res.Notes)
	assert.Equal(t, 1, res.Stats.Downloaded)
	assert.True(t, res.Changed())

	got, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Notes, 1)
	assert.Contains(t, got.Notes, "new")
}

func TestImport_ChecksumMismatch_WritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := incomingSnapshot(t, &models.Note{ID: "n", Title: "t", Modified: t1})
	in.Notes["n"].Title = "tampered"

	_, err := f.codec.Import(ctx, in, DefaultImportOptions(ModeReplace, t0, nil))
	assert.ErrorIs(t, err, common.ErrCorruptSnapshot)

	got, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
}

func TestImport_Schema(t *testing.T) {
	f := newFixture(t)
	_, err := f.codec.Import(context.Background(), &models.Snapshot{Notes: map[string]*models.Note{}}, DefaultImportOptions(ModeReplace, t0, nil))
	assert.ErrorIs(t, err, common.ErrSchema)
}

func TestImport_MergeRemoteOnlyCreatesNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := incomingSnapshot(t, &models.Note{ID: "2", Title: "from phone", Created: t1, Modified: t1})
	res, err := f.codec.Import(ctx, in, DefaultImportOptions(ModeMerge, t0, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Downloaded)
	assert.Equal(t, 1, res.Notes.Created)

	n, err := f.store.Notes.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "from phone", n.Title)
}

func TestImport_MergeStoresConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "n", Title: "local", Created: t0.Add(-time.Hour), Modified: t1})

	in := incomingSnapshot(t, &models.Note{ID: "n", Title: "remote", Created: t0.Add(-time.Hour), Modified: t2})
	res, err := f.codec.Import(ctx, in, DefaultImportOptions(ModeMerge, t0, nil))
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)

	c, err := f.store.Conflicts.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "local", c.LocalNote.Title)

	n, err := f.store.Notes.Get(ctx, "n")
	require.NoError(t, err)
	assert.Equal(t, "remote", n.Title)
}

func TestImport_BaselinePreservesMidCycleEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "a", Title: "a v1", Created: t0, Modified: t0})
	f.addNote(t, &models.Note{ID: "b", Title: "b v1", Created: t0, Modified: t0})

	baseline, _, err := f.codec.Export(ctx)
	require.NoError(t, err)

	// user edits a and creates c while the remote is being fetched
	f.addNote(t, &models.Note{ID: "a", Title: "a edited", Created: t0, Modified: t2})
	f.addNote(t, &models.Note{ID: "c", Title: "c new", Created: t2, Modified: t2})

	in := incomingSnapshot(t,
		&models.Note{ID: "a", Title: "a remote", Created: t0, Modified: t1},
		&models.Note{ID: "b", Title: "b remote", Created: t0, Modified: t1},
	)
	res, err := f.codec.Import(ctx, in, DefaultImportOptions(ModeReplace, t0, baseline))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, res.Preserved)

	got, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a edited", got.Notes["a"].Title)
	assert.Equal(t, "b remote", got.Notes["b"].Title)
	assert.Equal(t, "c new", got.Notes["c"].Title)

	// the reconciled checksum excludes the preserved edits so they upload next cycle
	cur, err := Checksum(got)
	require.NoError(t, err)
	assert.NotEqual(t, res.Checksum, cur)
}

func TestImport_KeepLocalTagsAndConversations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addNote(t, &models.Note{ID: "n", Created: t0, Modified: t0})
	require.NoError(t, f.store.Tags.Upsert(ctx, &models.Tag{ID: "local", Name: "local", CreatedAt: t0, UpdatedAt: t0}))
	require.NoError(t, f.store.Conversations.Insert(ctx, &models.Conversation{ID: "c", NoteID: "n", CreatedAt: t0}))

	in := models.NewSnapshot()
	in.Notes["n"] = &models.Note{ID: "n", Created: t0, Modified: t0}
	in.Tags["remote"] = &models.Tag{ID: "remote", Name: "remote", CreatedAt: t1, UpdatedAt: t1}

	opts := DefaultImportOptions(ModeReplace, t0, nil)
	opts.MergeTags = false
	opts.MergeConversations = false
	_, err := f.codec.Import(ctx, in, opts)
	require.NoError(t, err)

	got, err := f.store.GetAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, got.Tags, "local")
	assert.NotContains(t, got.Tags, "remote")
	assert.Contains(t, got.Conversations, "c")
}

func TestImport_RecordsSyncWhenNotPreserving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := incomingSnapshot(t, &models.Note{ID: "n", Modified: t1})
	opts := DefaultImportOptions(ModeReplace, t0, nil)
	opts.PreserveSyncMetadata = false
	res, err := f.codec.Import(ctx, in, opts)
	require.NoError(t, err)

	m, err := f.meta.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.RemoteSyncVersion)
	assert.Equal(t, res.Checksum, m.LocalChecksum)
	assert.True(t, m.LastSync.Equal(t2))
}

func TestImport_PreservesSyncMetadataByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.codec.Import(ctx, incomingSnapshot(t), DefaultImportOptions(ModeReplace, t0, nil))
	require.NoError(t, err)

	m, err := f.meta.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, m.RemoteSyncVersion)
	assert.True(t, m.LastSync.IsZero())
}
