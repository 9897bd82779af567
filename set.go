// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secretd

import (
	"context"
	"fmt"

	"github.com/carabiner-dev/secretd/internal/protocol"
)

// Set stores a secret in the daemon. It lives for the daemon's TTL and
// replaces any previous value under key.
func (c *Client) Set(ctx context.Context, key, value string) error {
	resp, err := c.do(ctx, &protocol.SetRequest{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("storing secret: %w", err)
	}

	_, err = expectOk(resp)
	return err
}
