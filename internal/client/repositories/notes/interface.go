// Package notes stores notes in the local SQLite database.
package notes

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// Repository describes persistence operations for notes. Tag associations
// live in the tags repository; Note.Tags is not touched here.
type Repository interface {
	// Upsert inserts the note or replaces the stored row with the same ID.
	Upsert(ctx context.Context, n *models.Note) error

	// Get returns common.ErrNotFound when no note has the ID.
	Get(ctx context.Context, id string) (*models.Note, error)

	// List returns all notes, most recently modified first.
	List(ctx context.Context) ([]*models.Note, error)

	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
}
