// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carabiner-dev/secretd/secrets"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStorage()

	_, err := m.Get(ctx, "missing")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	in := []byte("sealed")
	require.NoError(t, m.Store(ctx, "k", &secrets.Payload{Sealed: in}))

	// Mutating the caller buffer must not reach the stored copy
	in[0] = 'X'
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "sealed", string(got.Sealed))

	// Neither must mutating what Get returned
	got.Sealed[0] = 'Y'
	again, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "sealed", string(again.Sealed))

	require.NoError(t, m.Store(ctx, "k", &secrets.Payload{Sealed: []byte("v2")}))
	got, err = m.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", string(got.Sealed))
	require.Equal(t, 1, m.Len())

	require.NoError(t, m.Delete(ctx, "k"))
	require.NoError(t, m.Delete(ctx, "k"))
	require.Equal(t, 0, m.Len())

	require.Error(t, m.Store(ctx, "nil", nil))
}
