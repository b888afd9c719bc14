// Package conversations stores AI conversation entries attached to notes.
package conversations

import (
	"context"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	// Insert adds the entry; an existing ID is left untouched since
	// conversations are append-only.
	Insert(ctx context.Context, c *models.Conversation) error
	List(ctx context.Context) ([]*models.Conversation, error)
	ListByNote(ctx context.Context, noteID string) ([]*models.Conversation, error)
	Delete(ctx context.Context, id string) error
	DeleteByNote(ctx context.Context, noteID string) error
	// DeleteOlderThan prunes entries created before cutoff and returns the
	// number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) error
}
