// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secretd

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carabiner-dev/secretd/internal/protocol"
	"github.com/carabiner-dev/secretd/internal/server"
	"github.com/carabiner-dev/secretd/options"
)

const testPassword = "correct horse"

// startDaemon runs a daemon on short temporary socket paths and returns a
// client pointed at it.
func startDaemon(t *testing.T) *Client {
	t.Helper()

	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) }) //nolint:errcheck

	sopts := *options.DefaultServer
	sopts.SocketPath = filepath.Join(dir, "d.sock")
	sopts.AdminSocketPath = filepath.Join(dir, "a.sock")
	sopts.UnlockRate = 0

	s, err := server.NewServer(context.Background(), &sopts, []byte(testPassword))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("daemon exited: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not start")
	}

	copts := *options.DefaultClient
	copts.SocketPath = sopts.SocketPath
	copts.AdminSocketPath = sopts.AdminSocketPath
	c := NewClient(&copts)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck,gosec
	return c
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := startDaemon(t)

	require.True(t, c.IsServerRunning(ctx))

	_, _, err := c.Get(ctx, "db")
	require.True(t, IsUnauthorized(err))

	err = c.Unlock(ctx, "wrong")
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, protocol.MsgInvalidPassword, serr.Message)

	require.NoError(t, c.Unlock(ctx, testPassword))
	require.NoError(t, c.Set(ctx, "db", "s3cr3t"))
	require.NoError(t, c.Set(ctx, "empty", ""))

	value, found, err := c.Get(ctx, "db")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "s3cr3t", value)

	value, found, err = c.Get(ctx, "empty")
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, value)

	_, found, err = c.Get(ctx, "nope")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, c.Lock(ctx))
	require.True(t, IsUnauthorized(c.Set(ctx, "db", "other")))
}

func TestClientPing(t *testing.T) {
	c := startDaemon(t)
	require.NoError(t, c.Ping(context.Background()))
	// A second ping reuses the admin connection
	require.NoError(t, c.Ping(context.Background()))
}

func TestClientNoServer(t *testing.T) {
	dir := t.TempDir()
	opts := *options.DefaultClient
	opts.SocketPath = filepath.Join(dir, "missing.sock")
	opts.AdminSocketPath = ""
	c := NewClient(&opts)

	require.False(t, c.IsServerRunning(context.Background()))
	require.Error(t, c.Lock(context.Background()))
	require.Error(t, c.Ping(context.Background()))
}

func TestClientNoResponse(t *testing.T) {
	dir, err := os.MkdirTemp("", "sd")
	require.NoError(t, err)
	defer os.RemoveAll(dir) //nolint:errcheck

	path := filepath.Join(dir, "mute.sock")
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer l.Close() //nolint:errcheck

	// Accept one connection and hang up without answering
	go func() {
		conn, err := l.Accept()
		if err == nil {
			conn.Close() //nolint:errcheck,gosec
		}
	}()

	opts := *options.DefaultClient
	opts.SocketPath = path
	err = NewClient(&opts).Lock(context.Background())
	require.Error(t, err)
	// The write may race the hangup; either way nothing came back
	if !errors.Is(err, ErrNoResponse) {
		require.Contains(t, err.Error(), "locking")
	}
}

func TestClientRawExchange(t *testing.T) {
	c := startDaemon(t)

	resp, err := c.do(context.Background(), &protocol.GetRequest{Key: "db"})
	require.NoError(t, err)
	require.Equal(t, &protocol.ErrorResponse{Message: protocol.MsgUnauthorized}, resp)

	resp, err = c.do(context.Background(), &protocol.LockRequest{})
	require.NoError(t, err)
	require.Equal(t, &protocol.OkResponse{}, resp)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(nil)
	require.Equal(t, options.DefaultClient.SocketPath, c.options.SocketPath)
	require.NotSame(t, options.DefaultClient, c.options)
}
