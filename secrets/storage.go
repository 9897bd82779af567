// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package secrets exposes the public interface for the backends that hold
// sealed secret payloads. The daemon keeps expiry metadata in its own map and
// hands the sealed bytes to one of these drivers.
package secrets

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by storage drivers when no payload exists under
// the requested name.
var ErrNotFound = errors.New("secret not found")

// Payload is the sealed secret value as handed to the storage backend.
// Sealed holds the nonce followed by the AES-GCM ciphertext and tag.
type Payload struct {
	Sealed []byte
}

// Metadata is the lifecycle record the store keeps in memory for every
// secret. Together with its Payload it forms a stored entry.
type Metadata struct {
	Name      string    // Key the secret was stored under
	ExpiresAt time.Time // Absolute expiry, set at write time to now + TTL
}

// Expired reports whether the entry is no longer readable at now. An entry
// is readable only while now is strictly before ExpiresAt.
func (m *Metadata) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Storage defines the interface for storing and retrieving sealed secrets.
// Implementations only persist bytes; the store manages the gate, the
// expiration and the sealing.
type Storage interface {
	// Store saves a payload under the given name, replacing any previous one.
	Store(context.Context, string, *Payload) error

	// Get retrieves a payload. Missing names return ErrNotFound.
	Get(context.Context, string) (*Payload, error)

	// Delete removes a payload. Deleting a missing name is not an error.
	Delete(context.Context, string) error
}
