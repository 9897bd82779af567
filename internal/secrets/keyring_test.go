// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package secrets

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/carabiner-dev/secretd/secrets"
)

func TestKeyringStorageStoreAndGet(t *testing.T) {
	storage, err := NewKeyringStorage()
	if err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}

	ctx := context.Background()
	payload := &secrets.Payload{Sealed: []byte("sealed-test-data")}

	if err := storage.Store(ctx, "test-secret", payload); err != nil {
		t.Skipf("Skipping keyring test, add_key refused: %v", err)
	}
	defer storage.Delete(ctx, "test-secret") //nolint:errcheck

	retrieved, err := storage.Get(ctx, "test-secret")
	if err != nil {
		t.Fatalf("Failed to get secret: %v", err)
	}

	if !bytes.Equal(retrieved.Sealed, payload.Sealed) {
		t.Errorf("Sealed mismatch: got %s, want %s", retrieved.Sealed, payload.Sealed)
	}
}

func TestKeyringStorageOverwriteAndDelete(t *testing.T) {
	storage, err := NewKeyringStorage()
	if err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}

	ctx := context.Background()

	if err := storage.Store(ctx, "test-overwrite", &secrets.Payload{Sealed: []byte("version-1")}); err != nil {
		t.Skipf("Skipping keyring test, add_key refused: %v", err)
	}
	if err := storage.Store(ctx, "test-overwrite", &secrets.Payload{Sealed: []byte("version-2")}); err != nil {
		t.Fatalf("Failed to store secret v2: %v", err)
	}

	retrieved, err := storage.Get(ctx, "test-overwrite")
	if err != nil {
		t.Fatalf("Failed to get secret: %v", err)
	}
	if string(retrieved.Sealed) != "version-2" {
		t.Errorf("Expected version-2, got %s", retrieved.Sealed)
	}

	if err := storage.Delete(ctx, "test-overwrite"); err != nil {
		t.Fatalf("Failed to delete secret: %v", err)
	}

	if _, err := storage.Get(ctx, "test-overwrite"); !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op
	if err := storage.Delete(ctx, "test-overwrite"); err != nil {
		t.Errorf("Second delete returned error: %v", err)
	}
}

func TestKeyringStorageGetNonExistent(t *testing.T) {
	storage, err := NewKeyringStorage()
	if err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}

	_, err = storage.Get(context.Background(), "non-existent-key")
	if !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for non-existent key, got %v", err)
	}
}
