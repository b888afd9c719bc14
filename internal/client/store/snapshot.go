package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Load reads every synchronized entity through r into a snapshot. Note.Tags
// is filled from the association table.
func Load(ctx context.Context, r *Repositories) (*models.Snapshot, error) {
	snap := models.NewSnapshot()

	noteList, err := r.Notes.List(ctx)
	if err != nil {
		return nil, err
	}
	noteTags, err := r.Tags.NoteTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range noteList {
		if ids, ok := noteTags[n.ID]; ok {
			n.Tags = ids
			snap.NoteTags[n.ID] = slices.Clone(ids)
		}
		snap.Notes[n.ID] = n
	}

	tagList, err := r.Tags.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tagList {
		snap.Tags[t.ID] = t
	}

	convList, err := r.Conversations.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range convList {
		snap.Conversations[c.ID] = c
	}

	if snap.Deleted, err = r.Tombstones.List(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetAll returns the current local state.
func (s *Store) GetAll(ctx context.Context) (*models.Snapshot, error) {
	return Load(ctx, s.Repositories)
}

// ReplaceAll makes the database hold exactly target, in one transaction.
func (s *Store) ReplaceAll(ctx context.Context, target *models.Snapshot) error {
	return s.Update(ctx, func(context.Context, *Repositories, *models.Snapshot) (*models.Snapshot, error) {
		return target, nil
	})
}

// UpdateFunc computes the target state from the current one. r is bound to
// the surrounding transaction for any extra writes.
type UpdateFunc func(ctx context.Context, r *Repositories, current *models.Snapshot) (*models.Snapshot, error)

// Update loads the current state inside a transaction, lets fn compute the
// target state from it and writes the difference. Returning an error from fn
// aborts without changes.
func (s *Store) Update(ctx context.Context, fn UpdateFunc) error {
	return s.WithTx(ctx, func(ctx context.Context, r *Repositories) error {
		current, err := Load(ctx, r)
		if err != nil {
			return err
		}
		target, err := fn(ctx, r, current)
		if err != nil {
			return err
		}
		return Write(ctx, r, current, target)
	})
}

// Write applies the difference between current and target through r.
func Write(ctx context.Context, r *Repositories, current, target *models.Snapshot) error {
	for id := range current.Notes {
		if _, keep := target.Notes[id]; keep {
			continue
		}
		if err := r.Notes.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove note %s: %w", id, err)
		}
		if err := r.Tags.DeleteNoteTags(ctx, id); err != nil {
			return err
		}
	}
	for id, n := range target.Notes {
		if old, ok := current.Notes[id]; !ok || !old.SameContent(n) ||
			!old.Modified.Equal(n.Modified) || !old.Created.Equal(n.Created) || old.Preview != n.Preview {
			if err := r.Notes.Upsert(ctx, n); err != nil {
				return err
			}
		}
		if !slices.Equal(current.NoteTags[id], target.NoteTags[id]) {
			if err := r.Tags.SetNoteTags(ctx, id, target.NoteTags[id]); err != nil {
				return err
			}
		}
	}
	// associations for notes that no longer exist
	for id := range current.NoteTags {
		if _, ok := target.Notes[id]; !ok {
			if err := r.Tags.DeleteNoteTags(ctx, id); err != nil {
				return err
			}
		}
	}

	for id := range current.Tags {
		if _, keep := target.Tags[id]; !keep {
			if err := r.Tags.Delete(ctx, id); err != nil {
				return fmt.Errorf("remove tag %s: %w", id, err)
			}
		}
	}
	for id, t := range target.Tags {
		if old, ok := current.Tags[id]; ok && *old == *t {
			continue
		}
		if err := r.Tags.Upsert(ctx, t); err != nil {
			return err
		}
	}

	for id := range current.Conversations {
		if _, keep := target.Conversations[id]; !keep {
			if err := r.Conversations.Delete(ctx, id); err != nil {
				return err
			}
		}
	}
	for id, c := range target.Conversations {
		if _, ok := current.Conversations[id]; ok {
			continue
		}
		if err := r.Conversations.Insert(ctx, c); err != nil {
			return err
		}
	}

	for id := range current.Deleted {
		if _, keep := target.Deleted[id]; !keep {
			if err := r.Tombstones.Delete(ctx, id); err != nil {
				return err
			}
		}
	}
	for id, at := range target.Deleted {
		if old, ok := current.Deleted[id]; ok && old.Equal(at) {
			continue
		}
		if err := setTombstone(ctx, r, id, at, current.Deleted); err != nil {
			return err
		}
	}
	return nil
}

// setTombstone replaces the stored deletion time; Set alone only moves it
// forward.
func setTombstone(ctx context.Context, r *Repositories, id string, at time.Time, current map[string]time.Time) error {
	if old, ok := current[id]; ok && old.After(at) {
		if err := r.Tombstones.Delete(ctx, id); err != nil {
			return err
		}
	}
	return r.Tombstones.Set(ctx, id, at)
}
