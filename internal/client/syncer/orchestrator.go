// Package syncer runs sync cycles between the local store and the remote
// snapshot: connectivity probe, action decision, encryption, transfer,
// import and bookkeeping. It also schedules cycles and resolves conflicts.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/merge"
	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/remote"
	"github.com/dmitrijs2005/notesync/internal/client/snapshot"
	"github.com/dmitrijs2005/notesync/internal/client/store"
	"github.com/dmitrijs2005/notesync/internal/client/syncmeta"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/dmitrijs2005/notesync/internal/logging"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	DefaultEventBuffer  = 16
)

// MediaReconciler runs the attachment pass after a successful note sync.
type MediaReconciler interface {
	Reconcile(ctx context.Context, notes map[string]*models.Note) *models.MediaReport
}

type Options struct {
	ProbeTimeout time.Duration
	EventBuffer  int
	// Media is optional.
	Media MediaReconciler
}

type Orchestrator struct {
	session *Session
	store   *store.Store
	remote  remote.Store
	codec   *snapshot.Codec
	meta    *syncmeta.Store
	media   MediaReconciler
	log     logging.Logger
	events  chan models.Event
	opts    Options
	now     func() time.Time
}

func New(session *Session, st *store.Store, rs remote.Store, log logging.Logger, opts Options) *Orchestrator {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	meta := syncmeta.New(st.Metadata)
	log = log.With("module", "syncer")
	return &Orchestrator{
		session: session,
		store:   st,
		remote:  rs,
		codec:   snapshot.NewCodec(st, meta, merge.NewResolver(log), log),
		meta:    meta,
		media:   opts.Media,
		log:     log,
		events:  make(chan models.Event, opts.EventBuffer),
		opts:    opts,
		now:     time.Now,
	}
}

// Events delivers cycle outcomes to the UI. Events are dropped when the
// buffer is full.
func (o *Orchestrator) Events() <-chan models.Event { return o.events }

func (o *Orchestrator) Session() *Session { return o.session }

func (o *Orchestrator) Metadata(ctx context.Context) (*models.SyncMetadata, error) {
	return o.meta.Load(ctx)
}

func (o *Orchestrator) emit(ctx context.Context, ev models.Event) {
	select {
	case o.events <- ev:
	default:
		o.log.Warn(ctx, "event buffer full, dropping event", "kind", ev.Kind)
	}
}

// Probe checks connectivity within timeout. Any failure is reported as
// common.ErrOffline.
func (o *Orchestrator) Probe(ctx context.Context, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := o.remote.Ping(pctx); err != nil {
		if errors.Is(err, common.ErrAuthExpired) {
			return err
		}
		return fmt.Errorf("%w: %v", common.ErrOffline, err)
	}
	return nil
}

// Sync runs one cycle. A concurrent call returns common.ErrSyncInProgress
// without doing anything. The returned result is non-nil whenever the cycle
// started, also on error.
func (o *Orchestrator) Sync(ctx context.Context, trigger models.Trigger) (*models.SyncResult, error) {
	if !o.session.tryBegin() {
		o.log.Debug(ctx, "sync already in progress", "trigger", trigger)
		return nil, common.ErrSyncInProgress
	}
	defer o.session.end()

	res := &models.SyncResult{Trigger: trigger, StartedAt: o.now()}
	err := o.run(ctx, res)
	res.FinishedAt = o.now()

	if err != nil {
		switch {
		case errors.Is(err, common.ErrEncryptionRequired), errors.Is(err, common.ErrDecryptionFailed):
			o.emit(ctx, models.Event{Kind: models.EventPassphraseRequired, Result: res, Err: err})
		default:
			o.emit(ctx, models.Event{Kind: models.EventFailed, Result: res, Err: err})
		}
		o.log.Warn(ctx, "sync failed", "trigger", trigger, "action", res.Action, "error", err)
		return res, err
	}

	o.log.Info(ctx, "sync completed",
		"trigger", trigger,
		"action", res.Action,
		"uploaded", res.Stats.Uploaded,
		"downloaded", res.Stats.Downloaded,
		"conflicts", len(res.Conflicts))

	if o.media != nil {
		res.Media = o.reconcileMedia(ctx)
	}

	o.emit(ctx, models.Event{Kind: models.EventCompleted, Result: res})
	if res.DataChanged {
		o.emit(ctx, models.Event{Kind: models.EventDataUpdated, Result: res})
	}
	return res, nil
}

func (o *Orchestrator) reconcileMedia(ctx context.Context) *models.MediaReport {
	snap, err := o.store.GetAll(ctx)
	if err != nil {
		o.log.Error(ctx, "media pass skipped", "error", err)
		return &models.MediaReport{Errors: []error{err}}
	}
	return o.media.Reconcile(ctx, snap.Notes)
}

func (o *Orchestrator) run(ctx context.Context, res *models.SyncResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.Probe(ctx, o.opts.ProbeTimeout); err != nil {
		return err
	}

	meta, err := o.meta.Load(ctx)
	if err != nil {
		return fmt.Errorf("load sync metadata: %w", err)
	}
	local, sum, err := o.codec.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	info, doc, err := o.remoteInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch remote metadata: %w", err)
	}

	pass := o.session.Passphrase()
	if pass == nil && (info.Encrypted || meta.Encryption.Enabled) {
		return common.ErrEncryptionRequired
	}

	res.Action = decide(meta, info, sum)
	o.log.Debug(ctx, "sync action decided",
		"action", res.Action,
		"remote_version", info.Version,
		"known_remote_version", meta.RemoteSyncVersion)

	base := meta.LastSync
	if diverged(meta, info) {
		// nothing absent on one side can be taken for a deletion
		base = time.Time{}
		o.log.Warn(ctx, "remote snapshot was replaced, merging without a baseline",
			"remote_version", info.Version,
			"known_remote_version", meta.RemoteSyncVersion)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	// transfers run to completion
	ctx = context.WithoutCancel(ctx)

	switch res.Action {
	case models.ActionNone:
		version, remoteSum := meta.RemoteSyncVersion, meta.RemoteChecksum
		if info.Exists {
			version = info.Version
			if info.Checksum != "" {
				remoteSum = info.Checksum
			}
		}
		res.RemoteVersion = version
		return o.meta.RecordSync(ctx, local.Metadata.ExportedAt, version, remoteSum, sum)

	case models.ActionUpload:
		if err := o.upload(ctx, local, meta, pass); err != nil {
			return err
		}
		res.Stats.Uploaded = changedSince(local, meta.LastSync)
		res.RemoteVersion = local.Metadata.Version
		return o.meta.RecordSync(ctx, local.Metadata.ExportedAt, local.Metadata.Version, sum, sum)

	case models.ActionDownload, models.ActionMerge:
		incoming, err := o.download(ctx, doc, meta, pass)
		if err != nil {
			return err
		}

		mode := snapshot.ModeMerge
		if res.Action == models.ActionDownload {
			mode = snapshot.ModeReplace
		}
		imp, err := o.codec.Import(ctx, incoming, snapshot.DefaultImportOptions(mode, base, local))
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		res.Stats = imp.Stats
		res.Conflicts = imp.Conflicts
		res.DataChanged = imp.Changed()
		res.RemoteVersion = incoming.Metadata.Version
		remoteSum := incoming.Metadata.Checksum

		if res.Action == models.ActionMerge && (imp.Checksum != info.Checksum || encryptionMismatch(meta, info)) {
			merged := imp.Snapshot
			merged.Metadata.Version = max(local.Metadata.Version, incoming.Metadata.Version+1)
			merged.Metadata.ExportedAt = local.Metadata.ExportedAt
			if err := o.upload(ctx, merged, meta, pass); err != nil {
				return err
			}
			res.RemoteVersion = merged.Metadata.Version
			remoteSum = imp.Checksum
		}
		if err := o.meta.RecordSync(ctx, local.Metadata.ExportedAt, res.RemoteVersion, remoteSum, imp.Checksum); err != nil {
			return err
		}
	}

	if !meta.Encryption.Enabled && pass != nil && !info.Encrypted {
		o.session.ClearPassphrase()
	}
	return nil
}

// remoteInfo reads the remote snapshot's version and encryption state. When
// the object carries no usable metadata the document is downloaded and
// returned so it is not fetched twice.
func (o *Orchestrator) remoteInfo(ctx context.Context) (models.RemoteInfo, *models.RemoteDocument, error) {
	obj, err := o.remote.Stat(ctx, remote.SnapshotKey)
	if errors.Is(err, common.ErrNotFound) {
		return models.RemoteInfo{}, nil, nil
	}
	if err != nil {
		return models.RemoteInfo{}, nil, err
	}
	if info, ok := remote.InfoFromObject(obj); ok {
		return info, nil, nil
	}

	doc, err := o.fetchDocument(ctx)
	if err != nil {
		return models.RemoteInfo{}, nil, err
	}
	return models.RemoteInfo{
		Exists:    true,
		Version:   doc.Version,
		Encrypted: doc.Encrypted,
		Checksum:  doc.Checksum,
		Size:      obj.Size,
	}, doc, nil
}

func (o *Orchestrator) fetchDocument(ctx context.Context) (*models.RemoteDocument, error) {
	data, _, err := o.remote.Get(ctx, remote.SnapshotKey)
	if err != nil {
		return nil, err
	}
	return snapshot.Decode(data)
}

// download fetches and opens the remote snapshot. A device that never
// configured encryption adopts the remote's settings.
func (o *Orchestrator) download(ctx context.Context, doc *models.RemoteDocument, meta *models.SyncMetadata, pass []byte) (*models.Snapshot, error) {
	if doc == nil {
		var err error
		if doc, err = o.fetchDocument(ctx); err != nil {
			return nil, fmt.Errorf("download snapshot: %w", err)
		}
	}

	snap, err := snapshot.Open(doc, pass)
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			o.session.ClearPassphrase()
		}
		return nil, err
	}

	if doc.Encrypted && meta.Encryption.Salt == nil {
		settings, err := snapshot.EncryptionOf(doc)
		if err != nil {
			return nil, err
		}
		if err := o.meta.SetEncryption(ctx, settings); err != nil {
			return nil, err
		}
		meta.Encryption = settings
		o.log.Info(ctx, "adopted remote encryption settings")
	}
	return snap, nil
}

func (o *Orchestrator) upload(ctx context.Context, snap *models.Snapshot, meta *models.SyncMetadata, pass []byte) error {
	var key []byte
	if meta.Encryption.Enabled {
		key = pass
	}
	doc, err := snapshot.Seal(snap, key, meta.Encryption)
	if err != nil {
		return err
	}
	data, err := snapshot.Encode(doc)
	if err != nil {
		return err
	}
	if err := o.remote.Put(ctx, remote.SnapshotKey, data, remote.DocumentMeta(doc)); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

// decide picks the cycle's action from what changed on each side since the
// last successful sync.
func decide(meta *models.SyncMetadata, info models.RemoteInfo, localSum string) models.SyncAction {
	if !info.Exists {
		return models.ActionUpload
	}

	mismatch := encryptionMismatch(meta, info)
	localChanged := localSum != meta.LocalChecksum || mismatch

	switch {
	case !mismatch && info.Checksum != "" && info.Checksum == localSum:
		return models.ActionNone
	case diverged(meta, info):
		return models.ActionMerge
	case info.Version == meta.RemoteSyncVersion && !localChanged:
		return models.ActionNone
	case info.Version == meta.RemoteSyncVersion:
		return models.ActionUpload
	case !localChanged:
		return models.ActionDownload
	default:
		return models.ActionMerge
	}
}

// diverged reports whether the remote snapshot no longer descends from the
// one this device last synced with: its version went back, or the version
// stayed while the content changed. Both happen when another device replaced
// the remote from scratch.
func diverged(meta *models.SyncMetadata, info models.RemoteInfo) bool {
	if !info.Exists || meta.RemoteSyncVersion == 0 {
		return false
	}
	if info.Version < meta.RemoteSyncVersion {
		return true
	}
	return info.Version == meta.RemoteSyncVersion &&
		meta.RemoteChecksum != "" && info.Checksum != "" &&
		info.Checksum != meta.RemoteChecksum
}

// encryptionMismatch reports whether the remote document's encryption state
// differs from the local setting. A device that never configured encryption
// adopts the remote's on download, so that is not a mismatch.
func encryptionMismatch(meta *models.SyncMetadata, info models.RemoteInfo) bool {
	if !info.Exists {
		return false
	}
	if info.Encrypted && meta.Encryption.Salt == nil {
		return false
	}
	return info.Encrypted != meta.Encryption.Enabled
}

func changedSince(s *models.Snapshot, t time.Time) int {
	n := 0
	for _, note := range s.Notes {
		if note.Modified.After(t) {
			n++
		}
	}
	return n
}

// Unlock caches the passphrase for this session. When encryption is already
// configured the passphrase is checked against the stored salt.
func (o *Orchestrator) Unlock(ctx context.Context, passphrase []byte) error {
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", common.ErrValidation)
	}
	meta, err := o.meta.Load(ctx)
	if err != nil {
		return err
	}
	if meta.Encryption.Salt != nil && !bytes.Equal(cryptox.DeriveSalt(passphrase), meta.Encryption.Salt) {
		return common.ErrDecryptionFailed
	}
	o.session.SetPassphrase(passphrase)
	return nil
}

// Lock forgets the cached passphrase.
func (o *Orchestrator) Lock() {
	o.session.ClearPassphrase()
}

// EnableEncryption turns on end-to-end encryption. The next cycle uploads an
// encrypted snapshot.
func (o *Orchestrator) EnableEncryption(ctx context.Context, passphrase []byte) error {
	if len(passphrase) == 0 {
		return fmt.Errorf("%w: empty passphrase", common.ErrValidation)
	}
	settings := models.EncryptionSettings{
		Enabled:    true,
		Salt:       cryptox.DeriveSalt(passphrase),
		Iterations: cryptox.DefaultIterations,
	}
	if err := o.meta.SetEncryption(ctx, settings); err != nil {
		return err
	}
	o.session.SetPassphrase(passphrase)
	o.log.Info(ctx, "encryption enabled")
	return nil
}

// DisableEncryption turns encryption off. The salt is kept so the device
// does not re-adopt the remote's settings; the passphrase stays cached until
// a cycle has replaced the encrypted remote snapshot.
func (o *Orchestrator) DisableEncryption(ctx context.Context) error {
	meta, err := o.meta.Load(ctx)
	if err != nil {
		return err
	}
	meta.Encryption.Enabled = false
	if err := o.meta.SetEncryption(ctx, meta.Encryption); err != nil {
		return err
	}
	o.log.Info(ctx, "encryption disabled")
	return nil
}

func (o *Orchestrator) SetAutoSync(ctx context.Context, on bool) error {
	return o.meta.SetAutoSync(ctx, on)
}

func (o *Orchestrator) SetSyncOnStartup(ctx context.Context, on bool) error {
	return o.meta.SetSyncOnStartup(ctx, on)
}

// Conflicts lists unresolved conflicts.
func (o *Orchestrator) Conflicts(ctx context.Context) ([]*models.Conflict, error) {
	return o.store.Conflicts.List(ctx)
}

// ResolveConflict applies the chosen side of a recorded conflict with a fresh
// modification stamp and clears the record. manual is required for
// models.ResolutionManual and ignored otherwise.
func (o *Orchestrator) ResolveConflict(ctx context.Context, noteID string, choice models.Resolution, manual *models.Note) (*models.Note, error) {
	var resolved *models.Note
	err := o.store.WithTx(ctx, func(ctx context.Context, r *store.Repositories) error {
		c, err := r.Conflicts.Get(ctx, noteID)
		if err != nil {
			return fmt.Errorf("get conflict %s: %w", noteID, err)
		}

		var pick *models.Note
		switch choice {
		case models.ResolutionLocal:
			pick = c.LocalNote
		case models.ResolutionRemote:
			pick = c.RemoteNote
		case models.ResolutionManual:
			pick = manual
		default:
			return fmt.Errorf("%w: unknown resolution %q", common.ErrValidation, choice)
		}
		if pick == nil {
			return fmt.Errorf("%w: no note for resolution %q", common.ErrValidation, choice)
		}
		note := pick.Clone()
		note.ID = noteID

		stamp := o.now().UTC()
		if cur, err := r.Notes.Get(ctx, noteID); err == nil {
			if !stamp.After(cur.Modified) {
				stamp = cur.Modified.Add(time.Nanosecond)
			}
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		note.Modified = stamp

		if err := r.Notes.Upsert(ctx, note); err != nil {
			return err
		}
		if err := r.Tombstones.Delete(ctx, noteID); err != nil {
			return err
		}
		if err := r.Conflicts.Delete(ctx, noteID); err != nil {
			return err
		}
		resolved = note
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info(ctx, "conflict resolved", "note_id", noteID, "resolution", choice)
	o.emit(ctx, models.Event{Kind: models.EventDataUpdated})
	return resolved, nil
}
