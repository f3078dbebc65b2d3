// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"errors"
	"time"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// Sweeper periodically re-dispatches persisted notifications whose delivery
// never completed: crashed workers, saturated queues, or channel outages. The
// minimum age keeps the sweep from racing in-flight first attempts, and
// digest-routed items are excluded at the store query.
type Sweeper struct {
	notifications store.NotificationRepository
	preferences   store.PreferenceRepository
	dispatcher    Enqueuer

	interval  time.Duration
	batchSize int
	minAge    time.Duration
	now       func() time.Time
}

// NewSweeper creates a redelivery sweeper over the notification store.
func NewSweeper(stores *store.Stores, dispatcher Enqueuer, cfg config.PipelineConfig) *Sweeper {
	interval := cfg.RedeliveryInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	batchSize := cfg.RedeliveryBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	minAge := cfg.RedeliveryMinAge
	if minAge <= 0 {
		minAge = time.Minute
	}
	return &Sweeper{
		notifications: stores.Notifications,
		preferences:   stores.Preferences,
		dispatcher:    dispatcher,
		interval:      interval,
		batchSize:     batchSize,
		minAge:        minAge,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Serve runs the sweep loop until the context is canceled. Shaped for a
// suture supervisor.
func (s *Sweeper) Serve(ctx context.Context) error {
	logging.Info().
		Dur("interval", s.interval).
		Int("batch_size", s.batchSize).
		Msg("redelivery sweeper starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep re-dispatches one batch of stale undelivered notifications. A full
// delivery queue ends the pass early; the remainder waits for the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	metrics.RedeliverySweeps.Inc()

	items, err := s.notifications.ListUndelivered(ctx, s.now().Add(-s.minAge), s.batchSize)
	if err != nil {
		logging.Error().Err(err).Msg("redelivery sweep query failed")
		return
	}
	if len(items) == 0 {
		return
	}

	redispatched := 0
	for _, n := range items {
		channels := s.channelsFor(ctx, n)
		if err := s.dispatcher.Enqueue(n, channels); err != nil {
			if errors.Is(err, ErrQueueFull) {
				logging.Warn().Int("remaining", len(items)-redispatched).
					Msg("delivery queue full, deferring rest of sweep")
				break
			}
			logging.Error().Err(err).
				Str("notification_id", n.ID.String()).
				Msg("redelivery enqueue failed")
			continue
		}
		redispatched++
	}

	metrics.RedeliveredNotifications.Add(float64(redispatched))
	logging.Info().
		Int("found", len(items)).
		Int("redispatched", redispatched).
		Msg("redelivery sweep completed")
}

// channelsFor resolves the channels for a redelivered item from the owner's
// current preferences, falling back to the defaults for the event type.
func (s *Sweeper) channelsFor(ctx context.Context, n *models.NotificationItem) []models.DeliveryChannel {
	prefs, err := s.preferences.Get(ctx, n.OwnerID)
	if err != nil {
		prefs = models.DefaultPreferences(n.OwnerID)
	}
	if evPref, ok := prefs.EventPreferenceFor(n.Event); ok && len(evPref.Channels) > 0 {
		return evPref.Channels
	}
	return []models.DeliveryChannel{models.ChannelInApp}
}
