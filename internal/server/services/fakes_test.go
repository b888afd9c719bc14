package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/dbx"
	"github.com/dmitrijs2005/notesync/internal/server/config"
	"github.com/dmitrijs2005/notesync/internal/server/models"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/notesync/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                   "k",
		AccessTokenValidityDuration: time.Hour,
		MaxBlobSize:                 16,
	}
}

type fakeUsersRepo struct {
	byName    map[string]*models.User
	createErr error
	getErr    error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byName[u.UserName]; ok {
		return nil, common.ErrAlreadyExists
	}
	u.CreatedAt = time.Now()
	f.byName[u.UserName] = u
	return u, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[userName]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

type fakeBlobsRepo struct {
	objects map[string]*models.Blob
	err     error
}

func blobID(userID, key string) string { return userID + "\x00" + key }

func (f *fakeBlobsRepo) Put(ctx context.Context, b *models.Blob) error {
	if f.err != nil {
		return f.err
	}
	f.objects[blobID(b.UserID, b.Key)] = b
	return nil
}

func (f *fakeBlobsRepo) Get(ctx context.Context, userID, key string) (*models.Blob, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.objects[blobID(userID, key)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (f *fakeBlobsRepo) Stat(ctx context.Context, userID, key string) (*models.Blob, error) {
	b, err := f.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	c := *b
	c.Data = nil
	return &c, nil
}

func (f *fakeBlobsRepo) Delete(ctx context.Context, userID, key string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.objects, blobID(userID, key))
	return nil
}

func (f *fakeBlobsRepo) List(ctx context.Context, userID, prefix string) ([]*models.Blob, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Blob
	for _, b := range f.objects {
		if b.UserID == userID && strings.HasPrefix(b.Key, prefix) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	b *fakeBlobsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: &fakeUsersRepo{byName: map[string]*models.User{}},
		b: &fakeBlobsRepo{objects: map[string]*models.Blob{}},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository           { return m.u }
func (m *fakeRepoManager) Blobs(db dbx.DBTX) blobs.Repository           { return m.b }
