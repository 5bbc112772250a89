// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftline Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Sweeper periodically removes refresh sessions that reached a terminal
// state before the retention window. It runs independently of all other
// operations; the store guarantees an in-flight rotation is never treated
// as absent.
type Sweeper struct {
	sessions  SessionStore
	interval  time.Duration
	retention time.Duration
	timeout   time.Duration
	metrics   *Metrics
}

// NewSweeper creates a Sweeper.
func NewSweeper(sessions SessionStore, interval, retention, timeout time.Duration, metrics *Metrics) (*Sweeper, error) {
	if sessions == nil {
		return nil, oops.Code("SWEEPER_CONFIG_INVALID").Errorf("session store is required")
	}
	if interval <= 0 || retention < 0 || timeout <= 0 {
		return nil, oops.Code("SWEEPER_CONFIG_INVALID").Errorf("interval and timeout must be positive, retention non-negative")
	}
	return &Sweeper{
		sessions:  sessions,
		interval:  interval,
		retention: retention,
		timeout:   timeout,
		metrics:   metrics,
	}, nil
}

// Run sweeps on every tick until the context is cancelled. Blocks; start it
// on its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep purges once, retrying transient store failures with backoff.
func (s *Sweeper) sweep(ctx context.Context) {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))

	var purged int64
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		n, purgeErr := s.sessions.PurgeTerminal(callCtx, s.retention)
		if purgeErr != nil {
			return retry.RetryableError(purgeErr)
		}
		purged = n
		return nil
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("session purge sweep failed", "error", err)
		}
		return
	}

	s.metrics.purgeObserved(purged)
	if purged > 0 {
		slog.Debug("purged terminal refresh sessions", "count", purged)
	}
}
