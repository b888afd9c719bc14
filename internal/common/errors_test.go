package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestSyncErrors_AreDistinct(t *testing.T) {
	all := []error{
		ErrOffline, ErrAuthExpired, ErrEncryptionRequired, ErrDecryptionFailed,
		ErrCorruptSnapshot, ErrSchema, ErrSyncInProgress, ErrSessionExists,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Fatalf("%v must not match %v", a, b)
			}
		}
	}
}

func TestSyncErrors_SurviveWrapping(t *testing.T) {
	err := fmt.Errorf("fetch remote: %w", ErrDecryptionFailed)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("wrapped error lost its identity: %v", err)
	}
	if errors.Is(err, ErrSchema) {
		t.Fatalf("decryption failure must be distinguishable from schema errors")
	}
}
