// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin

package server

import (
	"errors"
	"net"
)

// GetPeerCredentials is not available on this platform.
func GetPeerCredentials(*net.UnixConn) (*peerAuthInfo, error) {
	return nil, errors.New("peer credentials not supported on this platform")
}
