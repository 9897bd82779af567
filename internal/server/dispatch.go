// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/secretd/internal/common"
	"github.com/carabiner-dev/secretd/internal/metrics"
	"github.com/carabiner-dev/secretd/internal/protocol"
	"github.com/carabiner-dev/secretd/internal/store"
)

// dispatch runs a decoded request against the store. It always produces a
// response; failures are reported as Error responses.
func (s *Server) dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	var (
		resp    protocol.Response
		outcome string
	)

	switch r := req.(type) {
	case *protocol.UnlockRequest:
		resp, outcome = s.unlock(ctx, r)
	case *protocol.LockRequest:
		resp, outcome = s.lock(ctx)
	case *protocol.SetRequest:
		resp, outcome = s.set(ctx, r)
	case *protocol.GetRequest:
		resp, outcome = s.get(ctx, r)
	default:
		clog.FromContext(ctx).Errorf("no handler for request %T", req)
		resp, outcome = protocol.Err(protocol.MsgInternal), metrics.OutcomeError
	}

	s.metrics.Requests.WithLabelValues(req.Kind(), outcome).Inc()
	return resp
}

func (s *Server) unlock(ctx context.Context, req *protocol.UnlockRequest) (protocol.Response, string) {
	if s.unlockLimiter != nil && !s.unlockLimiter.Allow() {
		clog.FromContext(ctx).Warnf("unlock attempt throttled")
		return protocol.Err(protocol.MsgTooManyAttempts), metrics.OutcomeThrottled
	}

	candidate := []byte(req.Password)
	defer common.ZeroBytes(candidate)

	if !s.store.Unlock(ctx, candidate) {
		s.metrics.UnlockFailures.Inc()
		return protocol.Err(protocol.MsgInvalidPassword), metrics.OutcomeError
	}
	return protocol.Ok(), metrics.OutcomeOk
}

func (s *Server) lock(ctx context.Context) (protocol.Response, string) {
	s.store.Lock(ctx)
	return protocol.Ok(), metrics.OutcomeOk
}

func (s *Server) set(ctx context.Context, req *protocol.SetRequest) (protocol.Response, string) {
	value := []byte(req.Value)
	defer common.ZeroBytes(value)

	if err := s.store.Set(ctx, req.Key, value); err != nil {
		return errorResponse(ctx, err)
	}
	return protocol.Ok(), metrics.OutcomeOk
}

func (s *Server) get(ctx context.Context, req *protocol.GetRequest) (protocol.Response, string) {
	value, found, err := s.store.Get(ctx, req.Key)
	if err != nil {
		return errorResponse(ctx, err)
	}
	if !found {
		return protocol.Ok(), metrics.OutcomeOk
	}

	resp := protocol.OkValue(string(value))
	common.ZeroBytes(value)
	return resp, metrics.OutcomeOk
}

// errorResponse maps a store error to the message sent to the client.
// Unexpected errors are logged and reported generically.
func errorResponse(ctx context.Context, err error) (protocol.Response, string) {
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		return protocol.Err(protocol.MsgUnauthorized), metrics.OutcomeUnauthorized
	case errors.Is(err, store.ErrSecretTooLarge):
		return protocol.Err(protocol.MsgSecretTooLarge), metrics.OutcomeError
	case errors.Is(err, store.ErrTooManySecrets):
		return protocol.Err(protocol.MsgTooManySecrets), metrics.OutcomeError
	default:
		clog.FromContext(ctx).Errorf("store error: %v", err)
		return protocol.Err(protocol.MsgInternal), metrics.OutcomeError
	}
}
