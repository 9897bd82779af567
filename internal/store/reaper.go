// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/chainguard-dev/clog"
)

// DefaultReapInterval is how often the reaper sweeps when not configured.
const DefaultReapInterval = 5 * time.Second

// Sweeper is what the reaper needs from a store.
type Sweeper interface {
	RemoveExpired(context.Context) int
}

// Reaper periodically removes expired entries so secrets nobody reads again
// do not linger in memory until the next Get.
type Reaper struct {
	store    Sweeper
	interval time.Duration

	// OnSweep, when set, is called after every sweep with the number of
	// entries removed.
	OnSweep func(removed int)
}

// NewReaper creates a reaper sweeping store every interval.
func NewReaper(store Sweeper, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	return &Reaper{
		store:    store,
		interval: interval,
	}
}

// Start runs the sweep loop until ctx is cancelled. It blocks, run it in its
// own goroutine.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runOnce(ctx)
		case <-ctx.Done():
			clog.FromContext(ctx).Debugf("reaper stopped")
			return
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context) int {
	removed := r.store.RemoveExpired(ctx)
	if removed > 0 {
		clog.FromContext(ctx).Debugf("reaper removed %d expired secrets", removed)
	}
	if r.OnSweep != nil {
		r.OnSweep(removed)
	}
	return removed
}
