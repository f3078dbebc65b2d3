// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package digest

import (
	"context"
	"time"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
)

// Scheduler drives the processor: it restores pending digests at startup and
// closes elapsed windows on an interval. Shaped for a suture supervisor.
type Scheduler struct {
	processor     *Processor
	interval      time.Duration
	maxConcurrent int
}

// NewScheduler creates a scheduler for the processor.
func NewScheduler(processor *Processor, cfg config.DigestConfig) *Scheduler {
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	maxConcurrent := cfg.MaxConcurrentSends
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		processor:     processor,
		interval:      interval,
		maxConcurrent: maxConcurrent,
	}
}

// Serve runs the close loop until the context is canceled.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().Dur("interval", s.interval).Msg("digest scheduler starting")

	if err := s.processor.Restore(ctx); err != nil {
		// Restoration failure is not fatal: new digests still open and
		// close; orphaned pending digests wait for the next restart.
		logging.Error().Err(err).Msg("pending digest restore failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.processor.CloseElapsed(ctx, s.maxConcurrent)
		}
	}
}
