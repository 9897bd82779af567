// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secretd

import (
	"context"
	"fmt"

	"github.com/carabiner-dev/secretd/internal/protocol"
)

// Unlock opens the daemon's gate with the master password. A wrong password
// returns a *ServerError and leaves the store locked.
func (c *Client) Unlock(ctx context.Context, password string) error {
	resp, err := c.do(ctx, &protocol.UnlockRequest{Password: password})
	if err != nil {
		return fmt.Errorf("unlocking: %w", err)
	}

	_, err = expectOk(resp)
	return err
}

// Lock closes the daemon's gate.
func (c *Client) Lock(ctx context.Context) error {
	resp, err := c.do(ctx, &protocol.LockRequest{})
	if err != nil {
		return fmt.Errorf("locking: %w", err)
	}

	_, err = expectOk(resp)
	return err
}
