// Package merge reconciles a local and a remote snapshot into one, deciding
// per note which side wins and recording conflicts when both sides changed.
package merge

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

// Decision is what the merge did with one note.
type Decision string

const (
	// Identical on both sides.
	DecisionUnchanged Decision = "unchanged"
	// Local version kept and will be uploaded.
	DecisionKeepLocal Decision = "keep-local"
	// Remote version adopted locally.
	DecisionTakeRemote Decision = "take-remote"
	// Note removed because the other side deleted it.
	DecisionDeleted Decision = "deleted"
	// Stale copy not resurrected because a newer deletion exists.
	DecisionStaysDeleted Decision = "stays-deleted"
)

type Result struct {
	Snapshot  *models.Snapshot
	Conflicts []models.Conflict
	Decisions map[string]Decision
	Stats     models.SyncStats
}

type Resolver struct {
	log logging.Logger
	now func() time.Time
}

func NewResolver(log logging.Logger) *Resolver {
	return &Resolver{log: log.With("module", "merge"), now: time.Now}
}

type side struct {
	note    *models.Note
	tags    []string
	deleted time.Time
}

func (s side) exists() bool     { return s.note != nil }
func (s side) tombstoned() bool { return !s.deleted.IsZero() }

func changedSince(n *models.Note, lastSync time.Time) bool {
	return n.Modified.After(lastSync) || n.Created.After(lastSync)
}

func sameNote(a, b side) bool {
	return a.note.SameContent(b.note) && slices.Equal(a.tags, b.tags)
}

func validate(s *models.Snapshot, which string) error {
	if s == nil || s.Notes == nil || s.Tags == nil || s.NoteTags == nil || s.Conversations == nil {
		return fmt.Errorf("%w: %s snapshot is missing entity maps", common.ErrSchema, which)
	}
	return nil
}

// Merge combines local and remote given the time of the last successful sync.
// Neither input is modified.
func (r *Resolver) Merge(ctx context.Context, local, remote *models.Snapshot, lastSync time.Time) (*Result, error) {
	if err := validate(local, "local"); err != nil {
		return nil, err
	}
	if err := validate(remote, "remote"); err != nil {
		return nil, err
	}

	res := &Result{
		Snapshot:  models.NewSnapshot(),
		Decisions: make(map[string]Decision),
	}
	out := res.Snapshot
	detectedAt := r.now().UTC()

	for _, id := range noteIDs(local, remote) {
		l := side{note: local.Notes[id], tags: local.NoteTags[id], deleted: local.Deleted[id]}
		rm := side{note: remote.Notes[id], tags: remote.NoteTags[id], deleted: remote.Deleted[id]}

		var winner *side
		switch {
		case l.exists() && rm.exists():
			winner = r.mergeBoth(res, id, &l, &rm, lastSync, detectedAt)

		case l.exists():
			switch {
			case rm.tombstoned() && !l.note.Modified.After(rm.deleted):
				res.Decisions[id] = DecisionDeleted
			case !rm.tombstoned() && !changedSince(l.note, lastSync):
				// known to the remote before and gone from it since
				res.Decisions[id] = DecisionDeleted
			default:
				res.Decisions[id] = DecisionKeepLocal
				res.Stats.Uploaded++
				winner = &l
			}

		case rm.exists():
			if l.tombstoned() && l.deleted.After(rm.note.Modified) {
				res.Decisions[id] = DecisionStaysDeleted
			} else {
				res.Decisions[id] = DecisionTakeRemote
				res.Stats.Downloaded++
				winner = &rm
			}
		}

		if winner != nil {
			n := winner.note.Clone()
			n.Tags = slices.Clone(winner.tags)
			out.Notes[id] = n
			if len(winner.tags) > 0 {
				out.NoteTags[id] = slices.Clone(winner.tags)
			}
		}
	}

	mergeTombstones(out, local, remote)
	mergeTags(out, local, remote)
	r.pruneNoteTags(ctx, out)
	r.mergeConversations(ctx, out, local, remote)

	r.log.Debug(ctx, "snapshots merged",
		"notes", len(out.Notes),
		"uploaded", res.Stats.Uploaded,
		"downloaded", res.Stats.Downloaded,
		"conflicts", len(res.Conflicts))

	return res, nil
}

func (r *Resolver) mergeBoth(res *Result, id string, l, rm *side, lastSync, detectedAt time.Time) *side {
	if sameNote(*l, *rm) {
		// identical content never conflicts; the newer stamp still travels
		switch {
		case l.note.Modified.After(rm.note.Modified):
			res.Decisions[id] = DecisionKeepLocal
			res.Stats.Uploaded++
			return l
		case rm.note.Modified.After(l.note.Modified):
			res.Decisions[id] = DecisionTakeRemote
			res.Stats.Downloaded++
			return rm
		}
		res.Decisions[id] = DecisionUnchanged
		return l
	}

	lc := changedSince(l.note, lastSync)
	rc := changedSince(rm.note, lastSync)

	localNewer := !rm.note.Modified.After(l.note.Modified)
	switch {
	case lc && !rc:
		localNewer = true
	case rc && !lc:
		localNewer = false
	case lc && rc:
		res.Conflicts = append(res.Conflicts, models.Conflict{
			NoteID:         id,
			LocalTitle:     l.note.Title,
			LocalModified:  l.note.Modified,
			RemoteModified: rm.note.Modified,
			Resolution:     models.ResolutionPending,
			LocalNote:      l.note.Clone(),
			RemoteNote:     rm.note.Clone(),
			DetectedAt:     detectedAt,
		})
	}

	if localNewer {
		res.Decisions[id] = DecisionKeepLocal
		res.Stats.Uploaded++
		return l
	}
	res.Decisions[id] = DecisionTakeRemote
	res.Stats.Downloaded++
	return rm
}

func noteIDs(local, remote *models.Snapshot) []string {
	seen := make(map[string]struct{})
	for _, m := range []map[string]*models.Note{local.Notes, remote.Notes} {
		for id := range m {
			seen[id] = struct{}{}
		}
	}
	for _, m := range []map[string]time.Time{local.Deleted, remote.Deleted} {
		for id := range m {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func mergeTombstones(out, local, remote *models.Snapshot) {
	for _, m := range []map[string]time.Time{local.Deleted, remote.Deleted} {
		for id, at := range m {
			if _, alive := out.Notes[id]; alive {
				continue
			}
			if prev, ok := out.Deleted[id]; !ok || at.After(prev) {
				out.Deleted[id] = at
			}
		}
	}
}

// mergeTags takes the union of both tag sets; name and color follow the
// later update.
func mergeTags(out, local, remote *models.Snapshot) {
	for id, t := range local.Tags {
		c := *t
		out.Tags[id] = &c
	}
	for id, t := range remote.Tags {
		if cur, ok := out.Tags[id]; ok && !t.UpdatedAt.After(cur.UpdatedAt) {
			continue
		}
		c := *t
		out.Tags[id] = &c
	}
}

func (r *Resolver) pruneNoteTags(ctx context.Context, out *models.Snapshot) {
	for noteID, ids := range out.NoteTags {
		kept := ids[:0]
		for _, tagID := range ids {
			if _, ok := out.Tags[tagID]; ok {
				kept = append(kept, tagID)
				continue
			}
			r.log.Warn(ctx, "dropping association to unknown tag", "note", noteID, "tag", tagID)
		}
		if len(kept) == 0 {
			delete(out.NoteTags, noteID)
		} else {
			out.NoteTags[noteID] = kept
		}
		if n, ok := out.Notes[noteID]; ok {
			n.Tags = slices.Clone(out.NoteTags[noteID])
		}
	}
}

func (r *Resolver) mergeConversations(ctx context.Context, out, local, remote *models.Snapshot) {
	for _, m := range []map[string]*models.Conversation{local.Conversations, remote.Conversations} {
		for id, c := range m {
			if _, ok := out.Conversations[id]; ok {
				continue
			}
			if !c.Valid() || c.ID != id {
				r.log.Warn(ctx, "skipping malformed conversation", "id", id)
				continue
			}
			if _, ok := out.Notes[c.NoteID]; !ok {
				r.log.Warn(ctx, "skipping conversation of missing note", "id", id, "note", c.NoteID)
				continue
			}
			cc := *c
			out.Conversations[id] = &cc
		}
	}
}
