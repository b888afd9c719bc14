// Package tags stores tags and the note-to-tag association.
package tags

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	Upsert(ctx context.Context, t *models.Tag) error
	Get(ctx context.Context, id string) (*models.Tag, error)
	List(ctx context.Context) ([]*models.Tag, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error

	// SetNoteTags replaces the ordered tag list of a note.
	SetNoteTags(ctx context.Context, noteID string, tagIDs []string) error
	// NoteTags returns noteID -> ordered tag IDs for every tagged note.
	NoteTags(ctx context.Context) (map[string][]string, error)
	DeleteNoteTags(ctx context.Context, noteID string) error
	DeleteAllNoteTags(ctx context.Context) error
}
