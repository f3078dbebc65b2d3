// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
)

// Manager fans one message out across the recipient's channels. Each channel
// gets its own token bucket and circuit breaker, so a struggling SMTP server
// never slows webhook or in-app delivery. Send fails only when every
// attempted channel failed; partial success is a successful delivery.
type Manager struct {
	registry *Registry
	limiters map[models.DeliveryChannel]*rate.Limiter
	breakers map[models.DeliveryChannel]*gobreaker.CircuitBreaker[any]
	statuses *statusRegistry

	retryAttempts int
	retryDelay    time.Duration
	now           func() time.Time
}

// NewManager builds the manager with the channels the configuration enables.
// In-app is always on; email and webhook are opt-in.
func NewManager(cfg config.DeliveryConfig) *Manager {
	registry := NewRegistry()
	registry.Register(NewInAppChannel())
	if cfg.EmailEnabled {
		registry.Register(NewEmailChannel(cfg))
	}
	if cfg.WebhookEnabled {
		registry.Register(NewWebhookChannel(cfg))
	}
	return newManagerWithRegistry(registry, cfg)
}

func newManagerWithRegistry(registry *Registry, cfg config.DeliveryConfig) *Manager {
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 20
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts < 0 {
		retryAttempts = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	m := &Manager{
		registry:      registry,
		limiters:      make(map[models.DeliveryChannel]*rate.Limiter),
		breakers:      make(map[models.DeliveryChannel]*gobreaker.CircuitBreaker[any]),
		statuses:      newStatusRegistry(defaultStatusCapacity),
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, name := range registry.List() {
		m.limiters[name] = rate.NewLimiter(rate.Limit(perSecond), burst)
		m.breakers[name] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    string(name),
			Timeout: breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
		})
	}
	return m
}

// AvailableChannels returns the channels this deployment has enabled.
func (m *Manager) AvailableChannels() []models.DeliveryChannel {
	return m.registry.List()
}

// Send delivers the message over every requested channel and records the
// outcome on the message. It returns an error only when at least one channel
// was attempted and none succeeded.
func (m *Manager) Send(ctx context.Context, msg *models.Message) error {
	m.statuses.Set(msg.ID, models.MessageQueued)

	var attempted, succeeded int
	var lastErr error

	for _, name := range msg.Recipient.Channels {
		ch, ok := m.registry.Get(name)
		if !ok {
			logging.Debug().
				Str("channel", string(name)).
				Str("message_id", msg.ID.String()).
				Msg("channel not enabled, skipping")
			continue
		}

		attempted++
		start := m.now()
		err := m.sendOne(ctx, ch, msg)
		if err != nil {
			lastErr = err
			metrics.RecordDelivery(string(name), "failed", 0)
			logging.Warn().Err(err).
				Str("channel", string(name)).
				Str("message_id", msg.ID.String()).
				Msg("channel delivery failed")
			continue
		}
		succeeded++
		metrics.RecordDelivery(string(name), "sent", m.now().Sub(start))
	}

	if attempted > 0 && succeeded == 0 {
		msg.Status = models.MessageFailed
		msg.LastError = lastErr.Error()
		m.statuses.Set(msg.ID, models.MessageFailed)
		return fmt.Errorf("all %d channel(s) failed: %w", attempted, lastErr)
	}

	now := m.now()
	msg.Status = models.MessageSent
	msg.SentAt = &now
	m.statuses.Set(msg.ID, models.MessageSent)
	return nil
}

// Status returns the last known status of a recently handled message. The
// registry is a bounded in-memory window; evicted and unknown IDs return
// false. Durable delivery outcomes live on the notification and digest
// records, not here.
func (m *Manager) Status(id uuid.UUID) (models.MessageStatus, bool) {
	return m.statuses.Get(id)
}

// Schedule queues the message for delivery at its ScheduledFor time. Messages
// without a future schedule are sent immediately. The send runs in its own
// goroutine; failures are logged and surface through delivery metrics.
func (m *Manager) Schedule(ctx context.Context, msg *models.Message) {
	if msg.ScheduledFor == nil || !msg.ScheduledFor.After(m.now()) {
		go m.sendScheduled(ctx, msg)
		return
	}

	msg.Status = models.MessageScheduled
	m.statuses.Set(msg.ID, models.MessageScheduled)
	delay := msg.ScheduledFor.Sub(m.now())
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			m.sendScheduled(ctx, msg)
		}
	}()
}

func (m *Manager) sendScheduled(ctx context.Context, msg *models.Message) {
	if err := m.Send(ctx, msg); err != nil {
		logging.Error().Err(err).
			Str("message_id", msg.ID.String()).
			Msg("scheduled delivery failed")
	}
}

// sendOne pushes the message through one channel with validation, rate
// limiting, circuit breaking, and transient-error retry.
func (m *Manager) sendOne(ctx context.Context, ch Channel, msg *models.Message) error {
	if err := ch.Validate(msg.Recipient); err != nil {
		return fmt.Errorf("recipient validation: %w", err)
	}

	limiter := m.limiters[ch.Name()]
	breaker := m.breakers[ch.Name()]

	var lastErr error
	for attempt := 0; attempt <= m.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.retryDelay):
			}
		}

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		_, err := breaker.Execute(func() (any, error) {
			return nil, ch.Send(ctx, msg)
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Breaker rejected the call; retrying immediately is pointless.
			return err
		}
		if !IsTransient(err) {
			return err
		}
	}
	return lastErr
}
