package models

import "time"

// EncryptionSettings is the persisted part of the encryption configuration.
// The passphrase itself never leaves process memory.
type EncryptionSettings struct {
	Enabled    bool   `json:"enabled"`
	Salt       []byte `json:"salt,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
}

// SyncMetadata is persisted per device.
type SyncMetadata struct {
	LastSync          time.Time
	RemoteSyncVersion int64
	// RemoteChecksum is the checksum of the remote snapshot last seen or
	// written. Empty when unknown.
	RemoteChecksum string
	LocalChecksum  string
	ExportVersion  int64
	AutoSync       bool
	SyncOnStartup  bool
	Encryption     EncryptionSettings
}

type Resolution string

const (
	ResolutionPending Resolution = "pending"
	ResolutionLocal   Resolution = "local"
	ResolutionRemote  Resolution = "remote"
	ResolutionManual  Resolution = "manual"
)

// Conflict records a note modified on both sides since the last sync.
type Conflict struct {
	NoteID         string
	LocalTitle     string
	LocalModified  time.Time
	RemoteModified time.Time
	Resolution     Resolution
	LocalNote      *Note
	RemoteNote     *Note
	DetectedAt     time.Time
}

type SyncAction string

const (
	ActionNone     SyncAction = "none"
	ActionUpload   SyncAction = "upload"
	ActionDownload SyncAction = "download"
	ActionMerge    SyncAction = "merge"
)

type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerTimer    Trigger = "timer"
	TriggerStartup  Trigger = "startup"
	TriggerShutdown Trigger = "shutdown"
	TriggerChange   Trigger = "change"
)

// SyncStats counts notes moved in each direction.
type SyncStats struct {
	Uploaded   int
	Downloaded int
}

// EntityCounts tallies the effect of an import on one entity kind.
type EntityCounts struct {
	Created int
	Updated int
	Deleted int
}

// SyncResult is the outcome of one sync cycle.
type SyncResult struct {
	Trigger       Trigger
	Action        SyncAction
	Stats         SyncStats
	Conflicts     []Conflict
	RemoteVersion int64
	StartedAt     time.Time
	FinishedAt    time.Time
	DataChanged   bool
	Media         *MediaReport
}

// MediaReport summarizes one media reconciliation pass.
type MediaReport struct {
	Uploaded      []string
	Downloaded    []string
	DeletedRemote []string
	DeletedLocal  []string
	Errors        []error
}

type EventKind string

const (
	EventCompleted          EventKind = "completed"
	EventDataUpdated        EventKind = "data-updated"
	EventPassphraseRequired EventKind = "passphrase-required"
	EventFailed             EventKind = "failed"
)

// Event is delivered to the UI layer.
type Event struct {
	Kind   EventKind
	Result *SyncResult
	Err    error
}
