package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// canonical is the checksummed part of a snapshot. encoding/json writes map
// keys sorted and struct fields in declaration order, so equal content always
// serializes to equal bytes.
type canonical struct {
	Notes         map[string]*models.Note         `json:"notes"`
	Tags          map[string]*models.Tag          `json:"tags"`
	NoteTags      map[string][]string             `json:"note_tags"`
	Conversations map[string]*models.Conversation `json:"conversations"`
	Deleted       map[string]time.Time            `json:"deleted"`
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

// Checksum is the SHA-256 hex digest of the snapshot's content. Metadata is
// excluded so re-exporting an unmodified store yields the same value.
func Checksum(s *models.Snapshot) (string, error) {
	notes := make(map[string]*models.Note, len(s.Notes))
	for id, n := range s.Notes {
		c := *n
		c.Created = c.Created.UTC()
		c.Modified = c.Modified.UTC()
		notes[id] = &c
	}
	deleted := make(map[string]time.Time, len(s.Deleted))
	for id, at := range s.Deleted {
		deleted[id] = at.UTC()
	}
	noteTags := make(map[string][]string, len(s.NoteTags))
	for id, tags := range s.NoteTags {
		if len(tags) > 0 {
			noteTags[id] = tags
		}
	}

	b, err := json.Marshal(canonical{
		Notes:         notes,
		Tags:          utcTags(s.Tags),
		NoteTags:      noteTags,
		Conversations: utcConversations(s.Conversations),
		Deleted:       deleted,
	})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func utcTags(in map[string]*models.Tag) map[string]*models.Tag {
	out := make(map[string]*models.Tag, len(in))
	for id, t := range orEmpty(in) {
		c := *t
		c.CreatedAt = c.CreatedAt.UTC()
		c.UpdatedAt = c.UpdatedAt.UTC()
		out[id] = &c
	}
	return out
}

func utcConversations(in map[string]*models.Conversation) map[string]*models.Conversation {
	out := make(map[string]*models.Conversation, len(in))
	for id, conv := range orEmpty(in) {
		c := *conv
		c.CreatedAt = c.CreatedAt.UTC()
		out[id] = &c
	}
	return out
}
