package models

import (
	"encoding/json"
	"time"
)

// SnapshotMetadata describes a serialized snapshot. It is excluded from the
// checksum.
type SnapshotMetadata struct {
	Version    int64     `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Checksum   string    `json:"checksum"`
}

// Snapshot is the complete serialized state of the local database.
type Snapshot struct {
	Notes         map[string]*Note         `json:"notes"`
	Tags          map[string]*Tag          `json:"tags"`
	NoteTags      map[string][]string      `json:"note_tags"`
	Conversations map[string]*Conversation `json:"conversations"`
	// Deleted maps note IDs to the time they were deleted.
	Deleted  map[string]time.Time `json:"deleted"`
	Metadata SnapshotMetadata     `json:"metadata"`
}

// NewSnapshot returns a snapshot with every entity map allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Notes:         map[string]*Note{},
		Tags:          map[string]*Tag{},
		NoteTags:      map[string][]string{},
		Conversations: map[string]*Conversation{},
		Deleted:       map[string]time.Time{},
	}
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() *Snapshot {
	c := NewSnapshot()
	for id, n := range s.Notes {
		c.Notes[id] = n.Clone()
	}
	for id, t := range s.Tags {
		tc := *t
		c.Tags[id] = &tc
	}
	for id, tags := range s.NoteTags {
		c.NoteTags[id] = append([]string(nil), tags...)
	}
	for id, conv := range s.Conversations {
		cc := *conv
		c.Conversations[id] = &cc
	}
	for id, at := range s.Deleted {
		c.Deleted[id] = at
	}
	c.Metadata = s.Metadata
	return c
}

// RemoteFormat identifies a notesync remote document.
const RemoteFormat = "notesync/snapshot"

// RemoteDocument is the single blob stored remotely. Exactly one of Snapshot
// and Envelope is set, depending on Encrypted.
type RemoteDocument struct {
	Format     string          `json:"format"`
	Version    int64           `json:"version"`
	Encrypted  bool            `json:"encrypted"`
	Checksum   string          `json:"checksum"`
	ExportedAt time.Time       `json:"exported_at"`
	Snapshot   *Snapshot       `json:"snapshot,omitempty"`
	Envelope   json.RawMessage `json:"envelope,omitempty"`
}

// RemoteInfo is the remote snapshot's metadata, readable without fetching the
// payload.
type RemoteInfo struct {
	Exists    bool
	Version   int64
	Encrypted bool
	Checksum  string
	Size      int64
}
