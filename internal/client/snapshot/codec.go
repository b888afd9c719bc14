// Package snapshot turns the local database into a serializable snapshot and
// back, with checksums, the remote document wrapper and the import policies
// used by the sync cycle.
package snapshot

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/merge"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/store"
	"github.com/dmitrijs2005/notesync/internal/client/syncmeta"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// Store is the part of the local database the codec needs.
type Store interface {
	GetAll(ctx context.Context) (*models.Snapshot, error)
	Update(ctx context.Context, fn store.UpdateFunc) error
}

// VersionCounter hands out monotonically increasing export versions.
type VersionCounter interface {
	NextExportVersion(ctx context.Context) (int64, error)
}

type Mode int

const (
	// ModeReplace makes the local store match the incoming snapshot.
	ModeReplace Mode = iota
	// ModeMerge reconciles the incoming snapshot with the local one.
	ModeMerge
)

type ImportOptions struct {
	Mode Mode
	// LastSync is the merge baseline time, used in ModeMerge.
	LastSync time.Time
	// PreserveSyncMetadata leaves the device's sync bookkeeping untouched.
	// When false the import is recorded as a completed sync.
	PreserveSyncMetadata bool
	// MergeTags and MergeConversations select whether incoming tags and
	// conversations are applied; when false the local sets are kept.
	MergeTags          bool
	MergeConversations bool
	// Baseline is the local state captured at export time. Local changes
	// made after it are kept over incoming data.
	Baseline *models.Snapshot
}

// DefaultImportOptions is what the sync cycle uses.
func DefaultImportOptions(mode Mode, lastSync time.Time, baseline *models.Snapshot) ImportOptions {
	return ImportOptions{
		Mode:                 mode,
		LastSync:             lastSync,
		PreserveSyncMetadata: true,
		MergeTags:            true,
		MergeConversations:   true,
		Baseline:             baseline,
	}
}

type ImportResult struct {
	Notes         models.EntityCounts
	Tags          models.EntityCounts
	Conversations models.EntityCounts
	Conflicts     []models.Conflict
	Stats         models.SyncStats
	// Snapshot is the reconciled state before locally preserved edits were
	// laid over it; in merge mode it is what gets uploaded.
	Snapshot *models.Snapshot
	// Checksum is Snapshot's checksum.
	Checksum string
	// Preserved lists note IDs kept because they were edited mid-cycle.
	Preserved []string
}

// Changed reports whether the import altered any local entity.
func (r *ImportResult) Changed() bool {
	z := models.EntityCounts{}
	return r.Notes != z || r.Tags != z || r.Conversations != z
}

type Codec struct {
	store    Store
	versions VersionCounter
	resolver *merge.Resolver
	log      logging.Logger
	now      func() time.Time
}

func NewCodec(s Store, versions VersionCounter, resolver *merge.Resolver, log logging.Logger) *Codec {
	return &Codec{
		store:    s,
		versions: versions,
		resolver: resolver,
		log:      log.With("module", "snapshot"),
		now:      time.Now,
	}
}

// Export captures the local state and stamps it with a fresh version, the
// capture time and its checksum. The capture time is taken before the read,
// so a write racing the export is always stamped after it.
func (c *Codec) Export(ctx context.Context) (*models.Snapshot, string, error) {
	capturedAt := c.now().UTC()
	snap, err := c.store.GetAll(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("read local state: %w", err)
	}
	sum, err := Checksum(snap)
	if err != nil {
		return nil, "", err
	}
	version, err := c.versions.NextExportVersion(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("next export version: %w", err)
	}
	snap.Metadata = models.SnapshotMetadata{
		Version:    version,
		ExportedAt: capturedAt,
		Checksum:   sum,
	}
	return snap, sum, nil
}

// Verify checks that the snapshot has every required entity map and, when it
// carries a checksum, that the content matches it.
func Verify(s *models.Snapshot) error {
	if s == nil || s.Notes == nil || s.Tags == nil || s.NoteTags == nil || s.Conversations == nil {
		return fmt.Errorf("%w: snapshot is missing entity maps", common.ErrSchema)
	}
	if s.Deleted == nil {
		s.Deleted = map[string]time.Time{}
	}
	for id, n := range s.Notes {
		if n == nil || n.ID != id {
			return fmt.Errorf("%w: malformed note %q", common.ErrSchema, id)
		}
	}
	for id, t := range s.Tags {
		if t == nil || t.ID != id {
			return fmt.Errorf("%w: malformed tag %q", common.ErrSchema, id)
		}
	}
	for id, c := range s.Conversations {
		if c == nil {
			delete(s.Conversations, id)
		}
	}
	if s.Metadata.Checksum == "" {
		return nil
	}
	sum, err := Checksum(s)
	if err != nil {
		return err
	}
	if sum != s.Metadata.Checksum {
		return fmt.Errorf("%w: checksum mismatch", common.ErrCorruptSnapshot)
	}
	return nil
}

// Import applies an incoming snapshot to the local store in one transaction.
// On error nothing is written.
func (c *Codec) Import(ctx context.Context, incoming *models.Snapshot, opts ImportOptions) (*ImportResult, error) {
	if err := Verify(incoming); err != nil {
		return nil, err
	}

	var result *ImportResult
	err := c.store.Update(ctx, func(ctx context.Context, r *store.Repositories, current *models.Snapshot) (*models.Snapshot, error) {
		result = &ImportResult{}

		var target *models.Snapshot
		switch opts.Mode {
		case ModeReplace:
			target = incoming.Clone()
			result.Stats.Downloaded = countIncoming(current, target)
		case ModeMerge:
			merged, err := c.resolver.Merge(ctx, current, incoming, opts.LastSync)
			if err != nil {
				return nil, err
			}
			target = merged.Snapshot
			result.Conflicts = merged.Conflicts
			result.Stats = merged.Stats
		default:
			return nil, fmt.Errorf("unknown import mode %d", opts.Mode)
		}

		if !opts.MergeTags {
			target.Tags = current.Clone().Tags
		}
		if !opts.MergeConversations {
			target.Conversations = current.Clone().Conversations
		}
		target.Metadata = incoming.Metadata

		sum, err := Checksum(target)
		if err != nil {
			return nil, err
		}
		result.Snapshot = target.Clone()
		result.Snapshot.Metadata.Checksum = sum
		result.Checksum = sum

		if opts.Baseline != nil {
			result.Preserved = preserveLocalEdits(current, opts.Baseline, target)
			if len(result.Preserved) > 0 {
				c.log.Info(ctx, "kept notes edited during sync", "count", len(result.Preserved))
			}
		}

		result.Notes, result.Tags, result.Conversations = countChanges(current, target)

		for i := range result.Conflicts {
			if err := r.Conflicts.Upsert(ctx, &result.Conflicts[i]); err != nil {
				return nil, fmt.Errorf("store conflict: %w", err)
			}
		}

		if !opts.PreserveSyncMetadata {
			if err := syncmeta.New(r.Metadata).RecordSync(ctx, c.now(), incoming.Metadata.Version, incoming.Metadata.Checksum, sum); err != nil {
				return nil, err
			}
		}
		return target, nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info(ctx, "snapshot imported",
		"notes_created", result.Notes.Created,
		"notes_updated", result.Notes.Updated,
		"notes_deleted", result.Notes.Deleted,
		"conflicts", len(result.Conflicts))
	return result, nil
}

// preserveLocalEdits lays over target every local change made after the
// baseline was captured and returns the affected note IDs.
func preserveLocalEdits(current, baseline, target *models.Snapshot) []string {
	var kept []string

	for id, cur := range current.Notes {
		base, ok := baseline.Notes[id]
		if ok && base.SameContent(cur) && base.Modified.Equal(cur.Modified) &&
			slices.Equal(baseline.NoteTags[id], current.NoteTags[id]) {
			continue
		}
		target.Notes[id] = cur.Clone()
		if tags := current.NoteTags[id]; len(tags) > 0 {
			target.NoteTags[id] = slices.Clone(tags)
		} else {
			delete(target.NoteTags, id)
		}
		delete(target.Deleted, id)
		kept = append(kept, id)
	}

	for id := range baseline.Notes {
		if _, still := current.Notes[id]; still {
			continue
		}
		delete(target.Notes, id)
		delete(target.NoteTags, id)
		if at, ok := current.Deleted[id]; ok {
			target.Deleted[id] = at
		}
		kept = append(kept, id)
	}

	for id, t := range current.Tags {
		if base, ok := baseline.Tags[id]; ok && base.UpdatedAt.Equal(t.UpdatedAt) {
			continue
		}
		tc := *t
		target.Tags[id] = &tc
	}

	for id, conv := range current.Conversations {
		if _, ok := baseline.Conversations[id]; ok {
			continue
		}
		if _, ok := target.Notes[conv.NoteID]; !ok {
			continue
		}
		cc := *conv
		target.Conversations[id] = &cc
	}

	slices.Sort(kept)
	return kept
}

func countIncoming(current, target *models.Snapshot) int {
	n := 0
	for id, t := range target.Notes {
		if cur, ok := current.Notes[id]; !ok || !cur.SameContent(t) || !cur.Modified.Equal(t.Modified) {
			n++
		}
	}
	return n
}

func countChanges(current, target *models.Snapshot) (notes, tags, convs models.EntityCounts) {
	for id, t := range target.Notes {
		cur, ok := current.Notes[id]
		switch {
		case !ok:
			notes.Created++
		case !cur.SameContent(t) || !cur.Modified.Equal(t.Modified) ||
			!slices.Equal(current.NoteTags[id], target.NoteTags[id]):
			notes.Updated++
		}
	}
	for id := range current.Notes {
		if _, ok := target.Notes[id]; !ok {
			notes.Deleted++
		}
	}

	for id, t := range target.Tags {
		cur, ok := current.Tags[id]
		switch {
		case !ok:
			tags.Created++
		case cur.Name != t.Name || cur.Color != t.Color:
			tags.Updated++
		}
	}
	for id := range current.Tags {
		if _, ok := target.Tags[id]; !ok {
			tags.Deleted++
		}
	}

	for id := range target.Conversations {
		if _, ok := current.Conversations[id]; !ok {
			convs.Created++
		}
	}
	for id := range current.Conversations {
		if _, ok := target.Conversations[id]; !ok {
			convs.Deleted++
		}
	}
	return notes, tags, convs
}
