package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/repomanager"
)

const maxKeyLength = 1024

// BlobService stores opaque objects per user. Keys never leak across users.
type BlobService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	maxBlobSize int64
	now         func() time.Time
}

func NewBlobService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *BlobService {
	return &BlobService{
		db:          db,
		repomanager: m,
		maxBlobSize: cfg.MaxBlobSize,
		now:         time.Now,
	}
}

func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", common.ErrValidation)
	case len(key) > maxKeyLength:
		return fmt.Errorf("%w: key longer than %d bytes", common.ErrValidation, maxKeyLength)
	case !utf8.ValidString(key):
		return fmt.Errorf("%w: key is not valid UTF-8", common.ErrValidation)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: key must be relative", common.ErrValidation)
	}
	return nil
}

func (s *BlobService) Put(ctx context.Context, userID, key string, data []byte, meta map[string]string) (*models.Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if s.maxBlobSize > 0 && int64(len(data)) > s.maxBlobSize {
		return nil, fmt.Errorf("%w: blob of %d bytes exceeds limit of %d", common.ErrValidation, len(data), s.maxBlobSize)
	}
	if data == nil {
		data = []byte{}
	}

	b := &models.Blob{
		UserID:     userID,
		Key:        key,
		Data:       data,
		Meta:       meta,
		Size:       int64(len(data)),
		ModifiedAt: s.now().UTC(),
	}
	if err := s.repomanager.Blobs(s.db).Put(ctx, b); err != nil {
		return nil, fmt.Errorf("error storing blob: %w", err)
	}
	return b, nil
}

func (s *BlobService) Get(ctx context.Context, userID, key string) (*models.Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.repomanager.Blobs(s.db).Get(ctx, userID, key)
}

func (s *BlobService) Stat(ctx context.Context, userID, key string) (*models.Blob, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.repomanager.Blobs(s.db).Stat(ctx, userID, key)
}

func (s *BlobService) Delete(ctx context.Context, userID, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.repomanager.Blobs(s.db).Delete(ctx, userID, key)
}

// List returns the user's blobs under prefix. An empty prefix lists all.
func (s *BlobService) List(ctx context.Context, userID, prefix string) ([]*models.Blob, error) {
	return s.repomanager.Blobs(s.db).List(ctx, userID, prefix)
}
