// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of every derived or generated key (AES-256).
	KeySize = 32

	// SaltSize is the size of the random salt used for credential derivation.
	SaltSize = 32

	// KeyIterations is the PBKDF2 iteration count for the master credential.
	KeyIterations = 100000

	gcmNonceSize = 12
)

// ErrDecrypt is returned when a sealed payload fails authentication.
var ErrDecrypt = errors.New("failed to open sealed payload")

// GenerateKey returns size cryptographically random bytes.
func GenerateKey(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// GenerateSalt returns a fresh random salt for DeriveKey.
func GenerateSalt() ([]byte, error) {
	return GenerateKey(SaltSize)
}

// DeriveKey stretches a password into a KeySize verifier with PBKDF2-SHA256.
// The password is hashed to a fixed length first: HMAC zero-pads short keys,
// so "pw" and "pw\x00" would otherwise derive the same verifier.
func DeriveKey(password, salt []byte) []byte {
	digest := sha256.Sum256(password)
	defer ZeroBytes(digest[:])
	return pbkdf2.Key(digest[:], salt, KeyIterations, KeySize, sha256.New)
}

// ConstantTimeEqual compares two byte slices without leaking timing.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Seal encrypts plaintext with AES-256-GCM. The returned slice is the random
// nonce followed by the ciphertext and tag. aad is authenticated but not
// encrypted; the store binds each payload to its key name through it.
func Seal(plaintext, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateKey(gcmNonceSize)
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// Seal appends to nonce so the output is nonce||ciphertext
	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func Open(sealed, key, aad []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcmNonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", ErrDecrypt)
	}

	plaintext, err := gcm.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
