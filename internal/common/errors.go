// Package common defines shared constants and sentinel errors used across
// client and server layers of notesync. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Sync cycle outcomes.
	ErrOffline            = errors.New("offline")
	ErrAuthExpired        = errors.New("authorization expired")
	ErrEncryptionRequired = errors.New("encryption passphrase required")
	ErrDecryptionFailed   = errors.New("decryption failed")
	ErrCorruptSnapshot    = errors.New("corrupt snapshot")
	ErrSchema             = errors.New("snapshot schema error")
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrSessionExists      = errors.New("sync session already exists")

	// Transport errors.
	ErrUnavailable  = errors.New("remote unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// Server-side errors.
	ErrInternal      = errors.New("internal error")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
)
