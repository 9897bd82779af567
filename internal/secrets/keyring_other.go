// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package secrets

import (
	"errors"

	"github.com/carabiner-dev/secretd/secrets"
)

// NewKeyringStorage always returns an error on non-Linux platforms.
func NewKeyringStorage() (secrets.Storage, error) {
	return nil, errors.New("kernel keyring storage is only supported on Linux")
}
