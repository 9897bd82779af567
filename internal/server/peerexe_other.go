// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package server

import "errors"

// peerExecutable is only implemented on Linux; macOS peer credentials carry
// no PID.
func peerExecutable(int32) (string, error) {
	return "", errors.New("peer executable lookup not supported on this platform")
}
