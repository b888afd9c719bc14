// Package syncmeta persists per-device sync bookkeeping and preferences in
// the local metadata table. The encryption passphrase is never stored.
package syncmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/repositories/metadata"
)

const (
	keyLastSync          = "sync.last_sync"
	keyRemoteSyncVersion = "sync.remote_version"
	keyRemoteChecksum    = "sync.remote_checksum"
	keyLocalChecksum     = "sync.local_checksum"
	keyExportVersion     = "sync.export_version"
	keyAutoSync          = "pref.auto_sync"
	keySyncOnStartup     = "pref.sync_on_startup"
	keyEncryption        = "pref.encryption"
)

// Defaults applied to a device that has never stored preferences.
var Defaults = models.SyncMetadata{
	AutoSync:      true,
	SyncOnStartup: true,
}

type Store struct {
	repo metadata.Repository
}

func New(repo metadata.Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Load(ctx context.Context) (*models.SyncMetadata, error) {
	kv, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	m := Defaults
	if v, ok := kv[keyLastSync]; ok && v != "" {
		if m.LastSync, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", keyLastSync, err)
		}
	}
	if m.RemoteSyncVersion, err = parseInt(kv, keyRemoteSyncVersion); err != nil {
		return nil, err
	}
	if m.ExportVersion, err = parseInt(kv, keyExportVersion); err != nil {
		return nil, err
	}
	m.RemoteChecksum = kv[keyRemoteChecksum]
	m.LocalChecksum = kv[keyLocalChecksum]
	if m.AutoSync, err = parseBool(kv, keyAutoSync, m.AutoSync); err != nil {
		return nil, err
	}
	if m.SyncOnStartup, err = parseBool(kv, keySyncOnStartup, m.SyncOnStartup); err != nil {
		return nil, err
	}
	if v, ok := kv[keyEncryption]; ok {
		if err := json.Unmarshal([]byte(v), &m.Encryption); err != nil {
			return nil, fmt.Errorf("parse %s: %w", keyEncryption, err)
		}
	}
	return &m, nil
}

func (s *Store) Save(ctx context.Context, m *models.SyncMetadata) error {
	enc, err := json.Marshal(m.Encryption)
	if err != nil {
		return fmt.Errorf("marshal encryption settings: %w", err)
	}
	return s.repo.SetMany(ctx, map[string]string{
		keyLastSync:          formatTime(m.LastSync),
		keyRemoteSyncVersion: strconv.FormatInt(m.RemoteSyncVersion, 10),
		keyRemoteChecksum:    m.RemoteChecksum,
		keyLocalChecksum:     m.LocalChecksum,
		keyExportVersion:     strconv.FormatInt(m.ExportVersion, 10),
		keyAutoSync:          strconv.FormatBool(m.AutoSync),
		keySyncOnStartup:     strconv.FormatBool(m.SyncOnStartup),
		keyEncryption:        string(enc),
	})
}

// RecordSync stores the outcome of a successful cycle: the remote snapshot
// the device is now in step with and the local checksum at that point.
func (s *Store) RecordSync(ctx context.Context, lastSync time.Time, remoteVersion int64, remoteChecksum, checksum string) error {
	return s.repo.SetMany(ctx, map[string]string{
		keyLastSync:          formatTime(lastSync),
		keyRemoteSyncVersion: strconv.FormatInt(remoteVersion, 10),
		keyRemoteChecksum:    remoteChecksum,
		keyLocalChecksum:     checksum,
	})
}

// NextExportVersion advances the export counter past both the previous
// export and the last known remote version, and persists it.
func (s *Store) NextExportVersion(ctx context.Context) (int64, error) {
	m, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	next := max(m.ExportVersion, m.RemoteSyncVersion) + 1
	if err := s.repo.Set(ctx, keyExportVersion, strconv.FormatInt(next, 10)); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) SetAutoSync(ctx context.Context, on bool) error {
	return s.repo.Set(ctx, keyAutoSync, strconv.FormatBool(on))
}

func (s *Store) SetSyncOnStartup(ctx context.Context, on bool) error {
	return s.repo.Set(ctx, keySyncOnStartup, strconv.FormatBool(on))
}

func (s *Store) SetEncryption(ctx context.Context, e models.EncryptionSettings) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal encryption settings: %w", err)
	}
	return s.repo.Set(ctx, keyEncryption, string(b))
}

// ResetSyncState forgets the last sync so the next cycle treats both sides
// as changed.
func (s *Store) ResetSyncState(ctx context.Context) error {
	for _, k := range []string{keyLastSync, keyRemoteSyncVersion, keyRemoteChecksum, keyLocalChecksum} {
		if err := s.repo.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseInt(kv map[string]string, key string) (int64, error) {
	v, ok := kv[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func parseBool(kv map[string]string, key string, def bool) (bool, error) {
	v, ok := kv[key]
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}
