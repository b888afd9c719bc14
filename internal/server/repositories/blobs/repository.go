package blobs

import (
	"context"

	"github.com/dmitrijs2005/notesync/internal/server/models"
)

// Repository stores user blobs. All lookups are scoped to a user.
type Repository interface {
	Put(ctx context.Context, b *models.Blob) error
	Get(ctx context.Context, userID, key string) (*models.Blob, error)
	Stat(ctx context.Context, userID, key string) (*models.Blob, error)
	Delete(ctx context.Context, userID, key string) error
	List(ctx context.Context, userID, prefix string) ([]*models.Blob, error)
}
