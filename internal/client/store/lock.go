package store

import (
	"fmt"
	"path/filepath"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/gofrs/flock"
)

const lockFileName = ".notesync.lock"

// DirLock is an exclusive, process-wide lock on a data directory.
type DirLock struct {
	fl *flock.Flock
}

// LockDataDir takes the data directory lock without blocking. It returns
// common.ErrSessionExists when another process holds it.
func LockDataDir(dir string) (*DirLock, error) {
	fl := flock.New(filepath.Join(dir, lockFileName))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data dir lock: %w", err)
	}
	if !locked {
		return nil, common.ErrSessionExists
	}
	return &DirLock{fl: fl}, nil
}

func (l *DirLock) Path() string { return l.fl.Path() }

func (l *DirLock) Unlock() error {
	return l.fl.Unlock()
}
