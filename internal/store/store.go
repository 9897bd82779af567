// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package store implements the gated, expiring secret store shared by every
// connection handler and the reaper.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/secretd/internal/common"
	"github.com/carabiner-dev/secretd/secrets"
)

var (
	// ErrUnauthorized is returned by Get and Set while the gate is locked.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSecretTooLarge is returned when a value exceeds Options.MaxSecretSize.
	ErrSecretTooLarge = errors.New("secret too large")

	// ErrTooManySecrets is returned when a new key would exceed Options.MaxSecrets.
	ErrTooManySecrets = errors.New("too many secrets")
)

// Options tune a Store. Zero limits disable the corresponding check.
type Options struct {
	// TTL is applied to every write.
	TTL time.Duration

	// MaxSecrets caps the number of distinct keys.
	MaxSecrets int

	// MaxSecretSize caps the size of a single value in bytes.
	MaxSecretSize int64

	// PurgeOnLock drops every entry when the gate is locked.
	PurgeOnLock bool

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Store holds secrets behind a single lock/unlock gate. Expiry metadata
// lives in the entries map while the sealed values go to the storage
// backend. One mutex guards the gate, the map and the backend calls so a
// Get or Set never observes the gate flipping halfway through.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*secrets.Metadata
	storage  secrets.Storage
	unlocked bool

	// verifier is PBKDF2(master credential, salt); the plaintext is not kept.
	verifier []byte
	salt     []byte

	// sessionKey seals every value before it reaches the storage backend.
	sessionKey []byte

	opts Options
}

// New creates a locked store guarded by credential. The credential slice is
// not retained; callers may wipe it once New returns.
func New(credential []byte, storage secrets.Storage, opts Options) (*Store, error) {
	if len(credential) == 0 {
		return nil, errors.New("master credential must not be empty")
	}
	if storage == nil {
		return nil, errors.New("storage backend is required")
	}
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("invalid TTL %v", opts.TTL)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	salt, err := common.GenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	sessionKey, err := common.GenerateKey(common.KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}

	return &Store{
		entries:    map[string]*secrets.Metadata{},
		storage:    storage,
		verifier:   common.DeriveKey(credential, salt),
		salt:       salt,
		sessionKey: sessionKey,
		opts:       opts,
	}, nil
}

// TTL returns the lifetime applied to every write.
func (s *Store) TTL() time.Duration {
	return s.opts.TTL
}

// Unlock sets the gate to whether candidate matches the master credential
// and returns the result. A wrong candidate locks an unlocked store.
func (s *Store) Unlock(ctx context.Context, candidate []byte) bool {
	// The key stretching is slow on purpose, keep it outside the lock.
	derived := common.DeriveKey(candidate, s.salt)
	defer common.ZeroBytes(derived)
	match := common.ConstantTimeEqual(derived, s.verifier)

	s.mu.Lock()
	s.unlocked = match
	s.mu.Unlock()

	if match {
		clog.FromContext(ctx).Debugf("store unlocked")
	} else {
		clog.FromContext(ctx).Debugf("unlock rejected, store locked")
	}
	return match
}

// Lock closes the gate. Entries are kept unless PurgeOnLock is set.
func (s *Store) Lock(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.unlocked = false
	if !s.opts.PurgeOnLock {
		return
	}

	for name := range s.entries {
		s.evictLocked(ctx, name)
	}
	clog.FromContext(ctx).Debugf("store locked and purged")
}

// Unlocked reports the gate state.
func (s *Store) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlocked
}

// Set stores value under key with a fresh expiry, replacing any previous
// entry outright.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.unlocked {
		return ErrUnauthorized
	}

	if s.opts.MaxSecretSize > 0 && int64(len(value)) > s.opts.MaxSecretSize {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrSecretTooLarge, len(value), s.opts.MaxSecretSize)
	}

	now := s.opts.Now()

	if _, exists := s.entries[key]; !exists && s.opts.MaxSecrets > 0 && len(s.entries) >= s.opts.MaxSecrets {
		// Make room from anything already past its deadline before refusing
		s.removeExpiredLocked(ctx, now)
		if len(s.entries) >= s.opts.MaxSecrets {
			return fmt.Errorf("%w: limit is %d", ErrTooManySecrets, s.opts.MaxSecrets)
		}
	}

	sealed, err := common.Seal(value, s.sessionKey, []byte(key))
	if err != nil {
		return fmt.Errorf("sealing secret: %w", err)
	}

	if err := s.storage.Store(ctx, key, &secrets.Payload{Sealed: sealed}); err != nil {
		return fmt.Errorf("storing secret in backend: %w", err)
	}

	s.entries[key] = &secrets.Metadata{
		Name:      key,
		ExpiresAt: now.Add(s.opts.TTL),
	}

	clog.FromContext(ctx).Debugf("stored secret %q, expires in %v", key, s.opts.TTL)
	return nil
}

// Get returns the value stored under key. found is false when the key is
// missing or its entry has expired; an expired entry is removed as a side
// effect.
func (s *Store) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.unlocked {
		return nil, false, ErrUnauthorized
	}

	metadata, exists := s.entries[key]
	if !exists {
		return nil, false, nil
	}

	if metadata.Expired(s.opts.Now()) {
		clog.FromContext(ctx).Debugf("secret %q expired on read", key)
		s.evictLocked(ctx, key)
		return nil, false, nil
	}

	payload, err := s.storage.Get(ctx, key)
	if errors.Is(err, secrets.ErrNotFound) {
		// The backend lost it (keyring quota, external unlink), forget it too
		delete(s.entries, key)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading secret from backend: %w", err)
	}
	defer common.ZeroBytes(payload.Sealed)

	plaintext, err := common.Open(payload.Sealed, s.sessionKey, []byte(key))
	if err != nil {
		return nil, false, fmt.Errorf("opening secret: %w", err)
	}
	return plaintext, true, nil
}

// RemoveExpired deletes every entry past its deadline and returns how many
// were removed. It ignores the gate.
func (s *Store) RemoveExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeExpiredLocked(ctx, s.opts.Now())
}

// Len returns the number of entries held, including expired ones the reaper
// has not collected yet.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) removeExpiredLocked(ctx context.Context, now time.Time) int {
	removed := 0
	for name, metadata := range s.entries {
		if metadata.Expired(now) {
			s.evictLocked(ctx, name)
			removed++
		}
	}
	return removed
}

// evictLocked drops an entry from the map and the backend. s.mu must be held.
func (s *Store) evictLocked(ctx context.Context, name string) {
	delete(s.entries, name)
	if err := s.storage.Delete(ctx, name); err != nil {
		clog.FromContext(ctx).Warnf("deleting secret %q from backend: %v", name, err)
	}
}
