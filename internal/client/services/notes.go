// Package services contains application services for the notesync client.
// This file defines the note service: local note, tag and conversation edits
// that keep the bookkeeping the sync engine relies on (modification stamps,
// tombstones, tag associations).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/client/store"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
	"github.com/google/uuid"
)

const previewLength = 120

// ErrWrongPassword is returned when a protected note's password does not
// match.
var ErrWrongPassword = errors.New("wrong note password")

// NoteService defines local editing operations for the CLI.
//
// Every content-affecting write advances the note's Modified stamp strictly,
// and deletions leave a tombstone so they propagate on the next sync.
type NoteService interface {
	Create(ctx context.Context, title, content string, tagIDs []string) (*models.Note, error)
	Get(ctx context.Context, id string) (*models.Note, error)
	List(ctx context.Context) ([]*models.Note, error)
	Update(ctx context.Context, id, title, content string) (*models.Note, error)
	SetArchived(ctx context.Context, id string, archived bool) error
	SetTags(ctx context.Context, id string, tagIDs []string) error
	Delete(ctx context.Context, id string) error

	Protect(ctx context.Context, id string, password []byte) error
	Unprotect(ctx context.Context, id string, password []byte) error
	Reveal(ctx context.Context, id string, password []byte) (string, error)

	CreateTag(ctx context.Context, name, color string) (*models.Tag, error)
	RenameTag(ctx context.Context, id, name string) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
	DeleteTag(ctx context.Context, id string) error

	AddConversation(ctx context.Context, noteID, userMessage, aiResponse, kind string) (*models.Conversation, error)
	ListConversations(ctx context.Context, noteID string) ([]*models.Conversation, error)
}

type noteService struct {
	store *store.Store
	now   func() time.Time
}

func NewNoteService(s *store.Store) NoteService {
	return &noteService{store: s, now: time.Now}
}

// stamp returns a modification time strictly after prev.
func (s *noteService) stamp(prev time.Time) time.Time {
	t := s.now().UTC()
	if !t.After(prev) {
		t = prev.Add(time.Nanosecond)
	}
	return t
}

func preview(content string) string {
	p := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(p) <= previewLength {
		return p
	}
	r := []rune(p)
	return string(r[:previewLength]) + "…"
}

func (s *noteService) Create(ctx context.Context, title, content string, tagIDs []string) (*models.Note, error) {
	now := s.now().UTC()
	n := &models.Note{
		ID:       uuid.NewString(),
		Title:    title,
		Content:  content,
		Preview:  preview(content),
		Created:  now,
		Modified: now,
		Tags:     tagIDs,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repositories) error {
		if err := r.Notes.Upsert(ctx, n); err != nil {
			return err
		}
		if len(tagIDs) > 0 {
			return r.Tags.SetNoteTags(ctx, n.ID, tagIDs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

func (s *noteService) Get(ctx context.Context, id string) (*models.Note, error) {
	n, err := s.store.Notes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	all, err := s.store.Tags.NoteTags(ctx)
	if err != nil {
		return nil, err
	}
	n.Tags = all[id]
	return n, nil
}

func (s *noteService) List(ctx context.Context) ([]*models.Note, error) {
	notes, err := s.store.Notes.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.store.Tags.NoteTags(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		n.Tags = all[n.ID]
	}
	return notes, nil
}

// modify loads a note, applies fn and stores it with a fresh stamp, in one
// transaction.
func (s *noteService) modify(ctx context.Context, id string, fn func(r *store.Repositories, n *models.Note) error) (*models.Note, error) {
	var out *models.Note
	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repositories) error {
		n, err := r.Notes.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r, n); err != nil {
			return err
		}
		n.Modified = s.stamp(n.Modified)
		if err := r.Notes.Upsert(ctx, n); err != nil {
			return err
		}
		out = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *noteService) Update(ctx context.Context, id, title, content string) (*models.Note, error) {
	return s.modify(ctx, id, func(_ *store.Repositories, n *models.Note) error {
		if n.PasswordProtected {
			return fmt.Errorf("%w: note is password protected", common.ErrValidation)
		}
		n.Title = title
		n.Content = content
		n.Preview = preview(content)
		return nil
	})
}

func (s *noteService) SetArchived(ctx context.Context, id string, archived bool) error {
	_, err := s.modify(ctx, id, func(_ *store.Repositories, n *models.Note) error {
		n.IsArchived = archived
		return nil
	})
	return err
}

func (s *noteService) SetTags(ctx context.Context, id string, tagIDs []string) error {
	_, err := s.modify(ctx, id, func(r *store.Repositories, n *models.Note) error {
		for _, tid := range tagIDs {
			if _, err := r.Tags.Get(ctx, tid); err != nil {
				return fmt.Errorf("tag %s: %w", tid, err)
			}
		}
		return r.Tags.SetNoteTags(ctx, id, tagIDs)
	})
	return err
}

// Delete removes the note with its tags and conversations and records a
// tombstone.
func (s *noteService) Delete(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, r *store.Repositories) error {
		n, err := r.Notes.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Notes.Delete(ctx, id); err != nil {
			return err
		}
		if err := r.Tags.DeleteNoteTags(ctx, id); err != nil {
			return err
		}
		if err := r.Conversations.DeleteByNote(ctx, id); err != nil {
			return err
		}
		if err := r.Conflicts.Delete(ctx, id); err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		return r.Tombstones.Set(ctx, id, s.stamp(n.Modified))
	})
}

// Protect moves the note body into an encrypted envelope locked with
// password. The password hash allows checking it without decrypting.
func (s *noteService) Protect(ctx context.Context, id string, password []byte) error {
	if len(password) == 0 {
		return fmt.Errorf("%w: empty password", common.ErrValidation)
	}
	_, err := s.modify(ctx, id, func(_ *store.Repositories, n *models.Note) error {
		if n.PasswordProtected {
			return fmt.Errorf("%w: note is already protected", common.ErrValidation)
		}
		env, err := cryptox.Encrypt([]byte(n.Content), password, common.GenerateRandByteArray(cryptox.SaltSize), 0)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		n.EncryptedContent = raw
		n.Content = ""
		n.Preview = ""
		n.PasswordProtected = true
		n.PasswordHash = cryptox.HashPassword(password)
		return nil
	})
	return err
}

func (s *noteService) open(n *models.Note, password []byte) (string, error) {
	if !n.PasswordProtected {
		return n.Content, nil
	}
	ok, err := cryptox.VerifyPassword(password, n.PasswordHash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrWrongPassword
	}
	var env cryptox.Envelope
	if err := json.Unmarshal(n.EncryptedContent, &env); err != nil {
		return "", fmt.Errorf("%w: note envelope: %v", common.ErrSchema, err)
	}
	plain, err := cryptox.Decrypt(&env, password)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *noteService) Unprotect(ctx context.Context, id string, password []byte) error {
	_, err := s.modify(ctx, id, func(_ *store.Repositories, n *models.Note) error {
		if !n.PasswordProtected {
			return fmt.Errorf("%w: note is not protected", common.ErrValidation)
		}
		content, err := s.open(n, password)
		if err != nil {
			return err
		}
		n.Content = content
		n.Preview = preview(content)
		n.EncryptedContent = nil
		n.PasswordProtected = false
		n.PasswordHash = ""
		return nil
	})
	return err
}

// Reveal returns the note body, decrypting it when the note is protected.
func (s *noteService) Reveal(ctx context.Context, id string, password []byte) (string, error) {
	n, err := s.store.Notes.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.open(n, password)
}

func (s *noteService) CreateTag(ctx context.Context, name, color string) (*models.Tag, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty tag name", common.ErrValidation)
	}
	now := s.now().UTC()
	t := &models.Tag{ID: uuid.NewString(), Name: name, Color: color, CreatedAt: now, UpdatedAt: now}
	if err := s.store.Tags.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

func (s *noteService) RenameTag(ctx context.Context, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty tag name", common.ErrValidation)
	}
	return s.store.WithTx(ctx, func(ctx context.Context, r *store.Repositories) error {
		t, err := r.Tags.Get(ctx, id)
		if err != nil {
			return err
		}
		t.Name = name
		t.UpdatedAt = s.stamp(t.UpdatedAt)
		return r.Tags.Upsert(ctx, t)
	})
}

func (s *noteService) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return s.store.Tags.List(ctx)
}

func (s *noteService) DeleteTag(ctx context.Context, id string) error {
	return s.store.Tags.Delete(ctx, id)
}

func (s *noteService) AddConversation(ctx context.Context, noteID, userMessage, aiResponse, kind string) (*models.Conversation, error) {
	if _, err := s.store.Notes.Get(ctx, noteID); err != nil {
		return nil, err
	}
	c := &models.Conversation{
		ID:          uuid.NewString(),
		NoteID:      noteID,
		UserMessage: userMessage,
		AIResponse:  aiResponse,
		Kind:        kind,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Conversations.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("add conversation: %w", err)
	}
	return c, nil
}

func (s *noteService) ListConversations(ctx context.Context, noteID string) ([]*models.Conversation, error) {
	return s.store.Conversations.ListByNote(ctx, noteID)
}
