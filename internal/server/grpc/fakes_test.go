package grpc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/server/auth"
	"github.com/dmitrijs2005/notesync/internal/server/models"
)

var testSecret = []byte("secret")

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]string // username -> password
	ttl      time.Duration
	loginErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]string{}, ttl: time.Hour}
}

func (f *fakeUsers) setTTL(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl = d
}

func (f *fakeUsers) Register(ctx context.Context, username, password string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if username == "" {
		return nil, common.ErrValidation
	}
	if _, ok := f.users[username]; ok {
		return nil, common.ErrAlreadyExists
	}
	f.users[username] = password
	return &models.User{ID: "id-" + username, UserName: username}, nil
}

func (f *fakeUsers) Login(ctx context.Context, username, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return "", f.loginErr
	}
	if p, ok := f.users[username]; !ok || p != password {
		return "", common.ErrUnauthorized
	}
	return auth.GenerateToken("id-"+username, testSecret, f.ttl)
}

func (f *fakeUsers) UserIDFromToken(token string) (string, error) {
	return auth.GetUserIDFromToken(token, testSecret)
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string]*models.Blob
	err     error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string]*models.Blob{}}
}

func (f *fakeBlobs) Put(ctx context.Context, userID, key string, data []byte, meta map[string]string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if key == "" {
		return nil, common.ErrValidation
	}
	b := &models.Blob{UserID: userID, Key: key, Data: data, Meta: meta, Size: int64(len(data)), ModifiedAt: time.Now().UTC()}
	f.objects[userID+"/"+key] = b
	return b, nil
}

func (f *fakeBlobs) Get(ctx context.Context, userID, key string) (*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.objects[userID+"/"+key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return b, nil
}

func (f *fakeBlobs) Stat(ctx context.Context, userID, key string) (*models.Blob, error) {
	return f.Get(ctx, userID, key)
}

func (f *fakeBlobs) Delete(ctx context.Context, userID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, userID+"/"+key)
	return f.err
}

func (f *fakeBlobs) List(ctx context.Context, userID, prefix string) ([]*models.Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
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
