// Package conflicts persists detected note conflicts until the user resolves
// them.
package conflicts

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

type Repository interface {
	// Upsert stores the conflict; a newer detection for the same note
	// replaces the older one.
	Upsert(ctx context.Context, c *models.Conflict) error
	Get(ctx context.Context, noteID string) (*models.Conflict, error)
	List(ctx context.Context) ([]*models.Conflict, error)
	Delete(ctx context.Context, noteID string) error
}
