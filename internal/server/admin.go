// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported on the admin socket.
const HealthService = "secretd.Daemon"

// serveAdmin runs the gRPC health service on the admin socket. Peers go
// through the same SO_PEERCRED checks as the daemon socket.
func (s *Server) serveAdmin(ctx context.Context, listener net.Listener) error {
	grpcServer := grpc.NewServer(
		grpc.Creds(NewPeerCredentials()),
		grpc.UnaryInterceptor(s.unaryPeerInterceptor),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	stop := context.AfterFunc(ctx, func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	})
	defer stop()

	clog.FromContext(ctx).Debugf("Admin endpoint listening on %s", listener.Addr())

	if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving admin endpoint: %w", err)
	}
	return nil
}

// serveMetrics exposes the Prometheus registry over HTTP on a Unix socket.
func (s *Server) serveMetrics(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck,gosec
	})
	defer stop()

	clog.FromContext(ctx).Debugf("Metrics endpoint listening on %s", listener.Addr())

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}
