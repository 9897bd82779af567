// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package secretd is the client library for the secretd daemon.
//
// Every call opens a fresh connection to the daemon socket, sends one
// request and reads one response. The daemon must already be running.
package secretd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/carabiner-dev/secretd/internal/protocol"
	"github.com/carabiner-dev/secretd/internal/server"
	"github.com/carabiner-dev/secretd/options"
)

// ErrNoResponse is returned when the daemon closes the connection without
// answering, which is what it does with requests it cannot decode.
var ErrNoResponse = errors.New("connection closed without a response")

// ServerError is a request refused by the daemon. Its Message is one of the
// fixed strings the daemon emits, such as "unauthorized".
type ServerError = protocol.ErrorResponse

// Client is the secretd client.
type Client struct {
	options *options.Client

	// admin connection, dialed on first Ping
	mu     sync.Mutex
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// NewClient creates a new client instance. A nil opts uses the defaults.
func NewClient(opts *options.Client) *Client {
	if opts == nil {
		o := *options.DefaultClient
		opts = &o
	}
	return &Client{
		options: opts,
	}
}

// IsServerRunning checks if something is listening on the daemon socket
func (c *Client) IsServerRunning(ctx context.Context) bool {
	d := net.Dialer{Timeout: 1 * time.Second}
	conn, err := d.DialContext(ctx, "unix", c.options.SocketPath)
	if err != nil {
		return false
	}
	conn.Close() //nolint:errcheck,gosec
	return true
}

// do runs one request/response exchange on a new connection. An Error
// response is returned as a response, not as an error.
func (c *Client) do(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	if c.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.options.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline) //nolint:errcheck,gosec
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck,gosec
	})
	defer stop()

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	// Half-close so the daemon sees the end of the request
	if hc, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := hc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("closing write side: %w", err)
		}
	}

	out, err := io.ReadAll(io.LimitReader(conn, protocol.MaxMessageSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoResponse
	}

	resp, err := protocol.DecodeResponse(out)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp, nil
}

// expectOk turns an Error response into a *ServerError.
func expectOk(resp protocol.Response) (*protocol.OkResponse, error) {
	switch r := resp.(type) {
	case *protocol.OkResponse:
		return r, nil
	case *protocol.ErrorResponse:
		return nil, r
	default:
		return nil, fmt.Errorf("unexpected response %T", resp)
	}
}

// IsUnauthorized reports whether err is the daemon refusing a request
// because the store is locked.
func IsUnauthorized(err error) bool {
	var serr *ServerError
	return errors.As(err, &serr) && serr.Message == protocol.MsgUnauthorized
}

// dial connects to the admin gRPC endpoint through its unix socket
func (c *Client) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}
	if c.options.AdminSocketPath == "" {
		return errors.New("no admin socket configured")
	}

	// Custom dialer for Unix domain sockets
	dialer := func(ctx context.Context, addr string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", c.options.AdminSocketPath)
	}

	// Use "passthrough" as the scheme, the actual connection is made by
	// the custom dialer
	conn, err := grpc.NewClient(
		"passthrough:///unix",
		grpc.WithTransportCredentials(server.NewPeerCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return fmt.Errorf("failed to dial admin endpoint: %w", err)
	}

	c.conn = conn
	c.health = healthpb.NewHealthClient(conn)
	return nil
}

// Ping checks the daemon health over the admin socket
func (c *Client) Ping(ctx context.Context) error {
	if err := c.dial(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: server.HealthService})
	if err != nil {
		return fmt.Errorf("pinging server: %w", err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("server not serving: %s", resp.GetStatus())
	}

	return nil
}

// Close closes the admin connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.health = nil
		return err
	}
	return nil
}
