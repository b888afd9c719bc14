package remote

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
)

type memObject struct {
	data       []byte
	meta       map[string]string
	modifiedAt time.Time
}

// MemoryStore keeps objects in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]memObject
	offline bool
	puts    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

// SetOffline makes every call fail with common.ErrUnavailable.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Puts returns the number of successful Put calls.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *MemoryStore) check() error {
	if m.offline {
		return common.ErrUnavailable
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.check()
}

func (m *MemoryStore) info(key string, o memObject) *ObjectInfo {
	return &ObjectInfo{Key: key, Size: int64(len(o.data)), ModifiedAt: o.modifiedAt, Meta: maps.Clone(o.meta)}
}

func (m *MemoryStore) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return m.info(key, o), nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, nil, err
	}
	o, ok := m.objects[key]
	if !ok {
		return nil, nil, common.ErrNotFound
	}
	return slices.Clone(o.data), m.info(key, o), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte, meta map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.objects[key] = memObject{data: slices.Clone(data), meta: maps.Clone(meta), modifiedAt: time.Now().UTC()}
	m.puts++
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	var out []ObjectInfo
	for _, key := range slices.Sorted(maps.Keys(m.objects)) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, *m.info(key, m.objects[key]))
		}
	}
	return out, nil
}
