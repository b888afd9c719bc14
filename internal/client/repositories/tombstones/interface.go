// Package tombstones records note deletions so they propagate across devices.
package tombstones

import (
	"context"
	"time"
)

type Repository interface {
	// Set records a deletion, keeping the later time if one already exists.
	Set(ctx context.Context, noteID string, deletedAt time.Time) error
	Delete(ctx context.Context, noteID string) error
	List(ctx context.Context) (map[string]time.Time, error)
	DeleteAll(ctx context.Context) error
}
