// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secretd

import (
	"context"
	"fmt"

	"github.com/carabiner-dev/secretd/internal/protocol"
)

// Get retrieves a secret from the daemon. found is false when the key was
// never set or has expired. A locked store returns a *ServerError.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool, err error) {
	resp, err := c.do(ctx, &protocol.GetRequest{Key: key})
	if err != nil {
		return "", false, fmt.Errorf("getting secret: %w", err)
	}

	ok, err := expectOk(resp)
	if err != nil {
		return "", false, err
	}

	if ok.Value == nil {
		return "", false, nil
	}
	return *ok.Value, true, nil
}
