package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/client/models"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/cryptox"
)

// Seal wraps a snapshot into the remote document, encrypting it when a
// passphrase is given. settings supplies the salt and iteration count.
func Seal(snap *models.Snapshot, passphrase []byte, settings models.EncryptionSettings) (*models.RemoteDocument, error) {
	doc := &models.RemoteDocument{
		Format:     models.RemoteFormat,
		Version:    snap.Metadata.Version,
		Checksum:   snap.Metadata.Checksum,
		ExportedAt: snap.Metadata.ExportedAt,
	}
	if passphrase == nil {
		doc.Snapshot = snap
		return doc, nil
	}

	env, err := cryptox.EncryptJSON(snap, passphrase, settings.Salt, settings.Iterations)
	if err != nil {
		return nil, fmt.Errorf("encrypt snapshot: %w", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	doc.Encrypted = true
	doc.Envelope = raw
	return doc, nil
}

// Open extracts the snapshot from a remote document. Encrypted documents
// require the passphrase; without one common.ErrEncryptionRequired is
// returned.
func Open(doc *models.RemoteDocument, passphrase []byte) (*models.Snapshot, error) {
	if !doc.Encrypted {
		if doc.Snapshot == nil {
			return nil, fmt.Errorf("%w: document has no snapshot", common.ErrSchema)
		}
		return doc.Snapshot, nil
	}
	if passphrase == nil {
		return nil, common.ErrEncryptionRequired
	}

	var env cryptox.Envelope
	if err := json.Unmarshal(doc.Envelope, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", common.ErrSchema, err)
	}
	var snap models.Snapshot
	if err := cryptox.DecryptJSON(&env, passphrase, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Encode serializes the remote document.
func Encode(doc *models.RemoteDocument) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return b, nil
}

// Decode parses a remote document and checks its format marker.
func Decode(data []byte) (*models.RemoteDocument, error) {
	var doc models.RemoteDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptSnapshot, err)
	}
	if doc.Format != models.RemoteFormat {
		return nil, fmt.Errorf("%w: unknown format %q", common.ErrSchema, doc.Format)
	}
	if doc.Encrypted && len(doc.Envelope) == 0 {
		return nil, fmt.Errorf("%w: encrypted document without envelope", common.ErrSchema)
	}
	return &doc, nil
}

// EncryptionOf returns the salt and iteration count an encrypted document
// was sealed with, so another device can adopt them.
func EncryptionOf(doc *models.RemoteDocument) (models.EncryptionSettings, error) {
	if !doc.Encrypted {
		return models.EncryptionSettings{}, nil
	}
	var env cryptox.Envelope
	if err := json.Unmarshal(doc.Envelope, &env); err != nil {
		return models.EncryptionSettings{}, fmt.Errorf("%w: envelope: %v", common.ErrSchema, err)
	}
	return models.EncryptionSettings{Enabled: true, Salt: env.Salt, Iterations: env.Iterations}, nil
}
