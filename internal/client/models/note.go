// Package models defines client-side data models used by the notesync client.
package models

import (
	"slices"
	"time"
)

// ShareLink is collaboration metadata linking a note to an external document.
type ShareLink struct {
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
	URL        string `json:"url"`
}

// Note is a single user note.
type Note struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Content          string     `json:"content"`
	EncryptedContent []byte     `json:"encrypted_content,omitempty"`
	Preview          string     `json:"preview"`
	Created          time.Time  `json:"created"`
	Modified         time.Time  `json:"modified"`
	IsArchived       bool       `json:"is_archived"`
	Share            *ShareLink `json:"share,omitempty"`

	// PasswordProtected notes keep their body in EncryptedContent.
	PasswordProtected bool   `json:"password_protected"`
	PasswordHash      string `json:"password_hash,omitempty"`

	// Tags holds ordered tag IDs. The snapshot's note_tags map is the
	// authoritative association, so Tags is not serialized.
	Tags []string `json:"-"`
}

// SameContent reports whether two notes carry identical user-visible state,
// ignoring timestamps.
func (n *Note) SameContent(o *Note) bool {
	if n == nil || o == nil {
		return n == o
	}
	return n.Title == o.Title &&
		n.Content == o.Content &&
		slices.Equal(n.EncryptedContent, o.EncryptedContent) &&
		n.IsArchived == o.IsArchived &&
		n.PasswordProtected == o.PasswordProtected &&
		n.PasswordHash == o.PasswordHash &&
		shareEqual(n.Share, o.Share)
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.EncryptedContent = slices.Clone(n.EncryptedContent)
	c.Tags = slices.Clone(n.Tags)
	if n.Share != nil {
		s := *n.Share
		c.Share = &s
	}
	return &c
}

func shareEqual(a, b *ShareLink) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Tag labels notes. Name and color are last-write-wins on UpdatedAt.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversation is an append-only AI exchange attached to a note.
type Conversation struct {
	ID              string    `json:"id"`
	NoteID          string    `json:"note_id"`
	UserMessage     string    `json:"user_message"`
	AIResponse      string    `json:"ai_response"`
	ContextSnapshot string    `json:"context_snapshot"`
	Kind            string    `json:"kind"`
	CreatedAt       time.Time `json:"created_at"`
}

// Valid reports whether the conversation carries the fields required to
// store it.
func (c *Conversation) Valid() bool {
	return c != nil && c.ID != "" && c.NoteID != "" && !c.CreatedAt.IsZero()
}
