package syncer

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/notesync/internal/client/store"
)

// Session is the mutable state of the sync engine on one device: the
// in-progress flag and the cached encryption passphrase. Only one Session may
// exist per data directory; the directory lock is taken on creation.
type Session struct {
	mu         sync.Mutex
	running    bool
	idle       chan struct{}
	passphrase []byte
	lock       *store.DirLock
}

// NewSession locks dataDir. It fails with common.ErrSessionExists when
// another session holds the directory.
func NewSession(dataDir string) (*Session, error) {
	l, err := store.LockDataDir(dataDir)
	if err != nil {
		return nil, err
	}
	idle := make(chan struct{})
	close(idle)
	return &Session{lock: l, idle: idle}, nil
}

// tryBegin marks a cycle as running. It returns false when one already is.
func (s *Session) tryBegin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.idle = make(chan struct{})
	return true
}

func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.idle)
}

func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until no cycle is running or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Passphrase returns a copy of the cached passphrase, or nil.
func (s *Session) Passphrase() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passphrase == nil {
		return nil
	}
	return bytes.Clone(s.passphrase)
}

func (s *Session) HasPassphrase() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passphrase != nil
}

func (s *Session) SetPassphrase(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
	s.passphrase = bytes.Clone(p)
}

func (s *Session) ClearPassphrase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipe()
}

func (s *Session) wipe() {
	for i := range s.passphrase {
		s.passphrase[i] = 0
	}
	s.passphrase = nil
}

// Close forgets the passphrase and releases the directory lock.
func (s *Session) Close() error {
	s.ClearPassphrase()
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}
