// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import (
	"testing"
	"time"
)

func TestDefaultClientOptions(t *testing.T) {
	opts := DefaultClient

	if opts.SocketPath != "/tmp/secretd.sock" {
		t.Errorf("Expected SocketPath /tmp/secretd.sock, got %s", opts.SocketPath)
	}

	if opts.Timeout != 5*time.Second {
		t.Errorf("Expected Timeout of 5s, got %v", opts.Timeout)
	}

	if opts.Debug {
		t.Errorf("Expected Debug to be false")
	}
}

func TestDefaultServerOptions(t *testing.T) {
	opts := DefaultServer

	if opts.TTL != 300*time.Second {
		t.Errorf("Expected TTL of 300s, got %v", opts.TTL)
	}

	if opts.ReapInterval != 5*time.Second {
		t.Errorf("Expected ReapInterval of 5s, got %v", opts.ReapInterval)
	}

	if opts.InactivityTimeout != 0 {
		t.Errorf("Expected InactivityTimeout of 0, got %v", opts.InactivityTimeout)
	}

	if opts.MaxSecrets != 100 {
		t.Errorf("Expected MaxSecrets of 100, got %d", opts.MaxSecrets)
	}

	if opts.MaxSecretSize != 1024*1024 {
		t.Errorf("Expected MaxSecretSize of 1MB, got %d", opts.MaxSecretSize)
	}

	if opts.PurgeOnLock {
		t.Errorf("Expected PurgeOnLock to be false")
	}

	if !opts.RequireSameUser {
		t.Errorf("Expected RequireSameUser to be true")
	}
}

func TestDefaultsShareCommon(t *testing.T) {
	if DefaultClient.SocketPath != DefaultServer.SocketPath {
		t.Errorf("client and server default sockets differ: %s vs %s", DefaultClient.SocketPath, DefaultServer.SocketPath)
	}

	if DefaultClient.AdminSocketPath != DefaultServer.AdminSocketPath {
		t.Errorf("client and server default admin sockets differ")
	}
}

func TestCommonOptionsEnvVars(t *testing.T) {
	opts := defaultCommon

	if opts.EnvVarSocket != "SECRETD_SOCKET" {
		t.Errorf("Expected EnvVarSocket SECRETD_SOCKET, got %s", opts.EnvVarSocket)
	}

	if opts.EnvVarDebug != "SECRETD_DEBUG" {
		t.Errorf("Expected EnvVarDebug SECRETD_DEBUG, got %s", opts.EnvVarDebug)
	}

	if DefaultServer.EnvVarPassword != "SECRETD_PASSWORD" {
		t.Errorf("Expected EnvVarPassword SECRETD_PASSWORD, got %s", DefaultServer.EnvVarPassword)
	}
}
