// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package server implements the secretd daemon: the Unix socket listener,
// the one-shot connection handler and the optional admin and metrics
// endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	isecrets "github.com/carabiner-dev/secretd/internal/secrets"
	"github.com/carabiner-dev/secretd/internal/metrics"
	"github.com/carabiner-dev/secretd/internal/protocol"
	"github.com/carabiner-dev/secretd/internal/store"
	"github.com/carabiner-dev/secretd/options"
	"github.com/carabiner-dev/secretd/secrets"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "secretd"

// Server is the secretd daemon.
type Server struct {
	// Server options
	options *options.Server

	// store holds the secrets behind the lock/unlock gate
	store  *store.Store
	reaper *store.Reaper

	metrics *metrics.Metrics

	// unlockLimiter throttles unlock attempts, nil when unlimited
	unlockLimiter *rate.Limiter

	lastActivity    time.Time
	activityMu      sync.Mutex
	inactivityTimer *time.Timer

	// instanceID tags the log lines of this server run
	instanceID string

	// handlers tracks in-flight connections so Run can wait for them
	handlers sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates a new secretd server guarded by the master credential.
// The credential is not retained.
func NewServer(ctx context.Context, opts *options.Server, credential []byte) (*Server, error) {
	if opts == nil {
		return nil, errors.New("server options are required")
	}

	// A value the wire cannot carry would be dropped as malformed instead of
	// refused, so the size limit is bounded by the protocol.
	maxSecretSize := opts.MaxSecretSize
	switch {
	case maxSecretSize < 0:
		return nil, fmt.Errorf("invalid max secret size %d", maxSecretSize)
	case maxSecretSize == 0:
		maxSecretSize = protocol.MaxValueSize
	case maxSecretSize > protocol.MaxValueSize:
		return nil, fmt.Errorf("max secret size %d exceeds the protocol limit of %d bytes", maxSecretSize, protocol.MaxValueSize)
	}

	// Initialize the storage driver. The kernel keyring is opt-in as it
	// counts against the per-user key quota.
	var storage secrets.Storage
	if opts.Keyring {
		keyringStorage, err := isecrets.NewKeyringStorage()
		if err != nil {
			clog.FromContext(ctx).Warnf("Kernel keyring not available, using memory storage: %v", err)
		} else {
			clog.FromContext(ctx).Debugf("Using kernel keyring storage for secrets")
			storage = keyringStorage
		}
	}
	if storage == nil {
		storage = isecrets.NewMemoryStorage()
	}

	st, err := store.New(credential, storage, store.Options{
		TTL:           opts.TTL,
		MaxSecrets:    opts.MaxSecrets,
		MaxSecretSize: maxSecretSize,
		PurgeOnLock:   opts.PurgeOnLock,
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	s := &Server{
		options:      opts,
		store:        st,
		reaper:       store.NewReaper(st, opts.ReapInterval),
		instanceID:   uuid.NewString(),
		lastActivity: time.Now(),
		ready:        make(chan struct{}),
	}

	s.metrics = metrics.New(MetricsNamespace, func() float64 {
		return float64(st.Len())
	})
	s.reaper.OnSweep = func(removed int) {
		s.metrics.Reaped.Add(float64(removed))
	}

	if opts.UnlockRate > 0 {
		s.unlockLimiter = rate.NewLimiter(rate.Limit(opts.UnlockRate), max(opts.UnlockBurst, 1))
	}

	return s, nil
}

// Metrics returns the collectors updated by the server.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Ready is closed once every socket is bound and accepting.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Run binds the sockets and serves until ctx is cancelled or the inactivity
// timeout fires. It waits for in-flight connections before returning and
// removes the socket files on the way out.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("instance", s.instanceID))

	listener, err := listenUnix(ctx, s.options.SocketPath)
	if err != nil {
		return err
	}
	defer removeSocket(ctx, s.options.SocketPath)

	var adminListener, metricsListener net.Listener
	if s.options.AdminSocketPath != "" {
		adminListener, err = listenUnix(ctx, s.options.AdminSocketPath)
		if err != nil {
			listener.Close() //nolint:errcheck,gosec
			return err
		}
		defer removeSocket(ctx, s.options.AdminSocketPath)
	}
	if s.options.MetricsSocketPath != "" {
		metricsListener, err = listenUnix(ctx, s.options.MetricsSocketPath)
		if err != nil {
			listener.Close() //nolint:errcheck,gosec
			if adminListener != nil {
				adminListener.Close() //nolint:errcheck,gosec
			}
			return err
		}
		defer removeSocket(ctx, s.options.MetricsSocketPath)
	}

	clog.FromContext(ctx).Infof("Server listening on %s", s.options.SocketPath)

	// Start inactivity monitor
	if s.options.InactivityTimeout > 0 {
		s.activityMu.Lock()
		s.inactivityTimer = time.AfterFunc(s.options.InactivityTimeout, func() {
			clog.FromContext(ctx).Infof("Inactivity timeout reached, idle since %s, shutting down",
				s.idleSince().Format(time.RFC3339))
			cancel()
		})
		s.activityMu.Unlock()
		defer s.inactivityTimer.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.reaper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		return s.serve(gctx, listener)
	})

	if adminListener != nil {
		g.Go(func() error {
			return s.serveAdmin(gctx, adminListener)
		})
	}

	if metricsListener != nil {
		g.Go(func() error {
			return s.serveMetrics(gctx, metricsListener)
		})
	}

	s.readyOnce.Do(func() { close(s.ready) })

	err = g.Wait()
	clog.FromContext(ctx).Infof("Server stopped")
	return err
}

// serve accepts connections until ctx is done, spawning one handler per
// connection. Accept errors are logged and the loop keeps going.
func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		listener.Close() //nolint:errcheck,gosec
	})
	defer stop()

	var tempDelay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.handlers.Wait()
				return nil
			}

			// Back off on repeated failures, such as running out of
			// file descriptors.
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(tempDelay*2, time.Second)
			}
			clog.FromContext(ctx).Warnf("accept error: %v; retrying in %v", err, tempDelay)

			select {
			case <-time.After(tempDelay):
			case <-ctx.Done():
			}
			continue
		}
		tempDelay = 0

		s.updateActivity()
		s.metrics.Connections.Inc()

		id := uuid.NewString()
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			cctx := clog.WithLogger(ctx, clog.FromContext(ctx).With("conn", id))
			s.handleConn(cctx, conn)
		}()
	}
}

// updateActivity updates the last activity timestamp of the server.
func (s *Server) updateActivity() {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	s.lastActivity = time.Now()

	// Reset the inactivity timer
	if s.inactivityTimer != nil {
		s.inactivityTimer.Reset(s.options.InactivityTimeout)
	}
}

// idleSince returns the time of the last accepted connection or admin call.
func (s *Server) idleSince() time.Time {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return s.lastActivity
}

// listenUnix binds a Unix socket at path, replacing a stale socket file
// left behind by a previous run, and restricts it to the owner.
func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	if info, err := os.Lstat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("refusing to replace %s: not a socket", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %w", err)
		}
		clog.FromContext(ctx).Debugf("Removed stale socket %s", path)
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set socket permissions to be restrictive (owner only)
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return listener, nil
}

func removeSocket(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		clog.FromContext(ctx).Warnf("removing socket %s: %v", path, err)
	}
}
