// Package cryptox implements the snapshot encryption envelope and the note
// password hash.
//
// The envelope layout is a fixed, versioned contract shared by every client:
// PBKDF2-HMAC-SHA256 over the passphrase and a passphrase-derived salt yields
// a 256-bit key; the serialized snapshot is sealed with AES-256-GCM using a
// random 12-byte nonce and no additional data. The 16-byte tag travels
// separately from the ciphertext. Binary fields are standard base64 in JSON.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/notesync/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	EnvelopeVersion   = 1
	KDFName           = "pbkdf2-sha256"
	CipherName        = "aes-256-gcm"
	DefaultIterations = 210_000

	SaltSize  = 16
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16

	saltDomain = "notesync/salt/v1\x00"
)

// Envelope is an encrypted, authenticated container wrapping a snapshot.
type Envelope struct {
	Version    int    `json:"v"`
	KDF        string `json:"kdf"`
	Cipher     string `json:"cipher"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

// DeriveSalt deterministically derives the KDF salt from the passphrase so a
// second device reproduces it without the salt ever being exchanged.
func DeriveSalt(passphrase []byte) []byte {
	h := sha256.New()
	h.Write([]byte(saltDomain))
	h.Write(passphrase)
	return h.Sum(nil)[:SaltSize]
}

// DeriveKey stretches the passphrase into an AES-256 key.
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, KeySize, sha256.New)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext for the given passphrase. A zero iteration count
// selects DefaultIterations; a nil salt is derived from the passphrase.
func Encrypt(plaintext, passphrase, salt []byte, iterations int) (*Envelope, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if salt == nil {
		salt = DeriveSalt(passphrase)
	}

	key := DeriveKey(passphrase, salt, iterations)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize

	return &Envelope{
		Version:    EnvelopeVersion,
		KDF:        KDFName,
		Cipher:     CipherName,
		Iterations: iterations,
		Salt:       append([]byte(nil), salt...),
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// Validate checks that the envelope uses the one layout this client speaks.
func (e *Envelope) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: empty envelope", common.ErrSchema)
	case e.Version != EnvelopeVersion:
		return fmt.Errorf("%w: envelope version %d", common.ErrSchema, e.Version)
	case e.KDF != KDFName:
		return fmt.Errorf("%w: kdf %q", common.ErrSchema, e.KDF)
	case e.Cipher != CipherName:
		return fmt.Errorf("%w: cipher %q", common.ErrSchema, e.Cipher)
	case e.Iterations <= 0:
		return fmt.Errorf("%w: iterations %d", common.ErrSchema, e.Iterations)
	case len(e.Salt) == 0:
		return fmt.Errorf("%w: missing salt", common.ErrSchema)
	case len(e.Nonce) != NonceSize:
		return fmt.Errorf("%w: nonce size %d", common.ErrSchema, len(e.Nonce))
	case len(e.Tag) != TagSize:
		return fmt.Errorf("%w: tag size %d", common.ErrSchema, len(e.Tag))
	}
	return nil
}

// Decrypt opens the envelope. A wrong passphrase or tampered data yields
// common.ErrDecryptionFailed; a malformed envelope yields common.ErrSchema.
func Decrypt(e *Envelope, passphrase []byte) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, e.Salt, e.Iterations)
	defer common.WipeByteArray(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	sealed := make([]byte, 0, len(e.Ciphertext)+len(e.Tag))
	sealed = append(sealed, e.Ciphertext...)
	sealed = append(sealed, e.Tag...)

	plaintext, err := aead.Open(nil, e.Nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}

// EncryptJSON serializes v to JSON and seals it.
func EncryptJSON(v any, passphrase, salt []byte, iterations int) (*Envelope, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	defer common.WipeByteArray(plaintext)
	return Encrypt(plaintext, passphrase, salt, iterations)
}

// DecryptJSON opens the envelope and unmarshals the plaintext into v.
// A plaintext that is not valid JSON for v is reported as common.ErrSchema.
func DecryptJSON(e *Envelope, passphrase []byte, v any) error {
	plaintext, err := Decrypt(e, passphrase)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSchema, err)
	}
	return nil
}
