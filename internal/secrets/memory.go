// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"fmt"
	"sync"

	"github.com/carabiner-dev/secretd/internal/common"
	"github.com/carabiner-dev/secretd/secrets"
)

var _ secrets.Storage = &MemoryStorage{}

// MemoryStorage is an in-memory implementation of the secrets.Storage interface.
// Payloads are copied on the way in and out so callers can wipe their buffers.
type MemoryStorage struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string][]byte),
	}
}

// Store saves a sealed payload in memory, wiping any payload it replaces.
func (m *MemoryStorage) Store(_ context.Context, id string, secret *secrets.Payload) error {
	if secret == nil {
		return fmt.Errorf("nil payload for %q", id)
	}

	sealed := make([]byte, len(secret.Sealed))
	copy(sealed, secret.Sealed)

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[id]; ok {
		common.ZeroBytes(old)
	}
	m.data[id] = sealed
	return nil
}

// Get retrieves a payload from memory by its ID.
func (m *MemoryStorage) Get(_ context.Context, id string) (*secrets.Payload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sealed, exists := m.data[id]
	if !exists {
		return nil, secrets.ErrNotFound
	}

	out := make([]byte, len(sealed))
	copy(out, sealed)
	return &secrets.Payload{Sealed: out}, nil
}

// Delete wipes and removes a payload from memory.
func (m *MemoryStorage) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.data[id]; ok {
		common.ZeroBytes(old)
		delete(m.data, id)
	}
	return nil
}

// Len returns the number of payloads held.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
