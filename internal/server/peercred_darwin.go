// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// GetPeerCredentials reads LOCAL_PEERCRED from a Unix socket connection.
// Xucred carries no PID on macOS, so PID is always 0.
func GetPeerCredentials(conn *net.UnixConn) (*peerAuthInfo, error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return nil, fmt.Errorf("getting raw connection: %w", err)
	}

	var xucred *unix.Xucred
	var credErr error

	err = rawConn.Control(func(fd uintptr) {
		xucred, credErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	})
	if err != nil {
		return nil, fmt.Errorf("trying to control raw connection: %w", err)
	}
	if credErr != nil {
		return nil, fmt.Errorf("failed to get peer credentials: %w", credErr)
	}

	info := &peerAuthInfo{UID: xucred.Uid, Valid: true}
	if xucred.Ngroups > 0 {
		info.GID = xucred.Groups[0]
	}
	return info, nil
}
