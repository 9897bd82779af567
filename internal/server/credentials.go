// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// errPeerUser is returned when a peer runs as a different user.
var errPeerUser = errors.New("peer runs as a different user")

// peerCredentials implements GRPC's credentials.TransportCredentials
// for Unix sockets.
type peerCredentials struct{}

// NewPeerCredentials creates transport credentials that extract peer info
func NewPeerCredentials() credentials.TransportCredentials {
	return &peerCredentials{}
}

func (c *peerCredentials) ClientHandshake(_ context.Context, _ string, rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	return rawConn, &peerAuthInfo{}, nil
}

// ServerHandshake reads SO_PEERCRED from the incoming admin connection. A
// failure to read the credentials does not fail the handshake; the auth
// info is simply marked invalid.
func (c *peerCredentials) ServerHandshake(rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	unixConn, ok := rawConn.(*net.UnixConn)
	if !ok {
		return rawConn, &peerAuthInfo{}, nil
	}

	info, err := GetPeerCredentials(unixConn)
	if err != nil {
		return rawConn, &peerAuthInfo{}, nil
	}

	return rawConn, info, nil
}

func (c *peerCredentials) Info() credentials.ProtocolInfo {
	return credentials.ProtocolInfo{
		SecurityProtocol: "unix",
		SecurityVersion:  "1.0",
	}
}

func (c *peerCredentials) Clone() credentials.TransportCredentials {
	return &peerCredentials{}
}

func (c *peerCredentials) OverrideServerName(string) error {
	return nil
}

// peerAuthInfo contains authentication info from peer credentials. Valid is
// false when the platform could not report them.
type peerAuthInfo struct {
	PID   int32
	UID   uint32
	GID   uint32
	Valid bool
}

func (a *peerAuthInfo) AuthType() string {
	return "unix-peercred"
}

// GetPeerAuthInfo extracts peerAuthInfo from context
func GetPeerAuthInfo(ctx context.Context) (*peerAuthInfo, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no peer in context")
	}

	authInfo, ok := p.AuthInfo.(*peerAuthInfo)
	if !ok {
		return nil, fmt.Errorf("auth info is not peerAuthInfo, got %T", p.AuthInfo)
	}

	return authInfo, nil
}

// verifyPeerUser fails when info positively identifies another user.
func verifyPeerUser(info *peerAuthInfo) error {
	if info == nil || !info.Valid {
		return nil
	}
	if uid := os.Getuid(); uid >= 0 && info.UID != uint32(uid) {
		return fmt.Errorf("%w: uid %d, pid %d", errPeerUser, info.UID, info.PID)
	}
	return nil
}

// checkPeer applies the same-user policy to a raw daemon connection.
func (s *Server) checkPeer(conn net.Conn) (*peerAuthInfo, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return &peerAuthInfo{}, nil
	}

	info, err := GetPeerCredentials(unixConn)
	if err != nil {
		// Same as the handshake: unknown peers are let through
		return &peerAuthInfo{}, nil //nolint:nilerr
	}

	if s.options.RequireSameUser {
		if err := verifyPeerUser(info); err != nil {
			return info, err
		}
	}
	return info, nil
}

// unaryPeerInterceptor records activity and applies the same-user policy to
// admin RPCs.
func (s *Server) unaryPeerInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	s.updateActivity()

	if s.options.RequireSameUser {
		authInfo, err := GetPeerAuthInfo(ctx)
		if err == nil {
			if err := verifyPeerUser(authInfo); err != nil {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
		}
	}

	return handler(ctx, req)
}
