// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package secrets

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/carabiner-dev/secretd/secrets"
)

// keyPrefix namespaces our entries inside the process keyring.
const keyPrefix = "secretd:"

var _ secrets.Storage = &KeyringStorage{}

// KeyringStorage is a Linux kernel keyring implementation of the
// secrets.Storage interface. Sealed payloads live in the process keyring,
// outside of the Go heap and out of reach of other processes.
type KeyringStorage struct{}

// NewKeyringStorage creates a new kernel keyring storage backend.
// It uses the process keyring (KEY_SPEC_PROCESS_KEYRING) which is
// isolated per-process.
func NewKeyringStorage() (*KeyringStorage, error) {
	// Request the process keyring, creating it if it doesn't exist
	_, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_PROCESS_KEYRING, true)
	if err != nil {
		return nil, fmt.Errorf("failed to access/create process keyring: %w", err)
	}

	return &KeyringStorage{}, nil
}

func (k *KeyringStorage) search(id string) (int, error) {
	keyID, err := unix.KeyctlSearch(unix.KEY_SPEC_PROCESS_KEYRING, "user", keyPrefix+id, 0)
	if err != nil {
		if errors.Is(err, unix.ENOKEY) || errors.Is(err, unix.EKEYREVOKED) || errors.Is(err, unix.EKEYEXPIRED) {
			return 0, secrets.ErrNotFound
		}
		return 0, fmt.Errorf("looking up secret: %w", err)
	}
	return keyID, nil
}

// Store writes the sealed payload as a "user" key in the process keyring.
func (k *KeyringStorage) Store(_ context.Context, id string, secret *secrets.Payload) error {
	if secret == nil {
		return fmt.Errorf("nil payload for %q", id)
	}

	// Unlink any previous version so we always start from a fresh key
	if existingKeyID, err := k.search(id); err == nil {
		//nolint:errcheck // add_key below replaces it anyway
		_, _ = unix.KeyctlInt(unix.KEYCTL_UNLINK, existingKeyID, unix.KEY_SPEC_PROCESS_KEYRING, 0, 0)
	}

	keyID, err := unix.AddKey("user", keyPrefix+id, secret.Sealed, unix.KEY_SPEC_PROCESS_KEYRING)
	if err != nil {
		return fmt.Errorf("adding key to keyring: %w", err)
	}

	// Possessor only
	if err := unix.KeyctlSetperm(keyID, 0x3f000000); err != nil {
		return fmt.Errorf("setting key permissions: %w", err)
	}

	return nil
}

// Get reads a sealed payload back from the keyring.
func (k *KeyringStorage) Get(_ context.Context, id string) (*secrets.Payload, error) {
	keyID, err := k.search(id)
	if err != nil {
		return nil, err
	}

	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("getting key size: %w", err)
	}

	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read key from keyring: %w", err)
	}
	if n < len(buf) {
		buf = buf[:n]
	}

	return &secrets.Payload{Sealed: buf}, nil
}

// Delete unlinks a payload from the keyring. Missing keys are ignored.
func (k *KeyringStorage) Delete(_ context.Context, id string) error {
	keyID, err := k.search(id)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := unix.KeyctlInt(unix.KEYCTL_UNLINK, keyID, unix.KEY_SPEC_PROCESS_KEYRING, 0, 0); err != nil {
		return fmt.Errorf("unlinking key from keyring: %w", err)
	}

	return nil
}
