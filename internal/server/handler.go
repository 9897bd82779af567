// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/secretd/internal/metrics"
	"github.com/carabiner-dev/secretd/internal/protocol"
)

// connState is the lifecycle position of a daemon connection. A connection
// only moves forward: Reading, Dispatching, Writing, Closed. Any read or
// decode failure jumps straight to Closed and nothing is written.
type connState int

const (
	stateReading connState = iota
	stateDispatching
	stateWriting
	stateClosed
)

func (st connState) String() string {
	switch st {
	case stateReading:
		return "reading"
	case stateDispatching:
		return "dispatching"
	case stateWriting:
		return "writing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connection carries one request/response exchange.
type connection struct {
	server   *Server
	conn     net.Conn
	state    connState
	request  protocol.Request
	response protocol.Response
}

// handleConn serves exactly one request on conn and closes it.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close() //nolint:errcheck

	// Unblock a pending read or write when the server shuts down
	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck,gosec
	})
	defer stop()

	if info, err := s.checkPeer(conn); err != nil {
		clog.FromContext(ctx).Warnf("rejecting connection: %v", err)
		s.metrics.Dropped.WithLabelValues(metrics.DropPeer).Inc()
		return
	} else if info.Valid {
		exe, err := peerExecutable(info.PID)
		if err != nil {
			exe = "unknown"
		}
		clog.FromContext(ctx).Debugf("connection from pid %d uid %d (%s)", info.PID, info.UID, exe)
	}

	c := &connection{server: s, conn: conn, state: stateReading}
	for c.state != stateClosed {
		c.state = c.step(ctx)
	}
}

// step runs the current state and returns the next one.
func (c *connection) step(ctx context.Context) connState {
	switch c.state {
	case stateReading:
		return c.read(ctx)
	case stateDispatching:
		c.response = c.server.dispatch(ctx, c.request)
		return stateWriting
	case stateWriting:
		c.write(ctx)
		return stateClosed
	default:
		return stateClosed
	}
}

// read consumes the peer's bytes until it half-closes and decodes them as a
// single request.
func (c *connection) read(ctx context.Context) connState {
	if t := c.server.options.ReadTimeout; t > 0 {
		c.conn.SetReadDeadline(time.Now().Add(t)) //nolint:errcheck,gosec
	}

	data, err := io.ReadAll(io.LimitReader(c.conn, protocol.MaxMessageSize+1))
	if err != nil {
		clog.FromContext(ctx).Debugf("reading request: %v", err)
		c.server.metrics.Dropped.WithLabelValues(metrics.DropRead).Inc()
		return stateClosed
	}

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		clog.FromContext(ctx).Debugf("dropping malformed request (%d bytes): %v", len(data), err)
		c.server.metrics.Dropped.WithLabelValues(metrics.DropMalformed).Inc()
		return stateClosed
	}

	clog.FromContext(ctx).Debugf("received %s", req)
	c.request = req
	return stateDispatching
}

// write sends the encoded response. Failures are logged, the peer is gone.
func (c *connection) write(ctx context.Context) {
	data, err := protocol.EncodeResponse(c.response)
	if err != nil {
		clog.FromContext(ctx).Errorf("encoding response: %v", err)
		c.server.metrics.Dropped.WithLabelValues(metrics.DropWrite).Inc()
		return
	}

	if t := c.server.options.WriteTimeout; t > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(t)) //nolint:errcheck,gosec
	}

	if _, err := c.conn.Write(data); err != nil {
		clog.FromContext(ctx).Debugf("writing response: %v", err)
		c.server.metrics.Dropped.WithLabelValues(metrics.DropWrite).Inc()
	}
}
