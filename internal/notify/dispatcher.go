// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// Sender delivers an outbound message over the owner's channels. The delivery
// manager is the production implementation.
type Sender interface {
	Send(ctx context.Context, msg *models.Message) error
}

// Broadcaster pushes live updates to connected clients. The websocket hub is
// the production implementation; a nil Broadcaster disables live push.
type Broadcaster interface {
	PushNotification(ownerID uuid.UUID, n *models.NotificationItem)
	PushUnreadCount(ownerID uuid.UUID, count int)
}

// ErrQueueFull is returned by Enqueue when the delivery queue is saturated.
// The notification stays persisted undelivered; the redelivery sweep picks it
// up on its next pass.
var ErrQueueFull = errors.New("notify: delivery queue full")

type deliveryJob struct {
	item     *models.NotificationItem
	channels []models.DeliveryChannel
}

// Dispatcher owns the immediate-delivery worker pool. Workers send the
// message synchronously, then mark the item delivered and push it to live
// clients. A failed send leaves the item undelivered for the sweep to retry.
type Dispatcher struct {
	notifications store.NotificationRepository
	preferences   store.PreferenceRepository
	sender        Sender
	broadcaster   Broadcaster

	queue       chan deliveryJob
	workers     int
	sendTimeout time.Duration
	now         func() time.Time
}

// NewDispatcher creates a dispatcher with a bounded queue.
func NewDispatcher(stores *store.Stores, sender Sender, broadcaster Broadcaster, cfg config.DeliveryConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		notifications: stores.Notifications,
		preferences:   stores.Preferences,
		sender:        sender,
		broadcaster:   broadcaster,
		queue:         make(chan deliveryJob, queueSize),
		workers:       workers,
		sendTimeout:   sendTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue hands a persisted notification to the worker pool. It never blocks;
// a saturated queue returns ErrQueueFull.
func (d *Dispatcher) Enqueue(n *models.NotificationItem, channels []models.DeliveryChannel) error {
	select {
	case d.queue <- deliveryJob{item: n, channels: channels}:
		metrics.DeliveryQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// Serve runs the worker pool until the context is canceled. It is shaped for
// a suture supervisor: it blocks for the lifetime of the service and returns
// the context error on shutdown.
func (d *Dispatcher) Serve(ctx context.Context) error {
	logging.Info().Int("workers", d.workers).Msg("delivery dispatcher starting")

	done := make(chan struct{})
	for i := 0; i < d.workers; i++ {
		go d.worker(ctx, done)
	}

	<-ctx.Done()
	close(done)
	return ctx.Err()
}

func (d *Dispatcher) worker(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case job := <-d.queue:
			metrics.DeliveryQueueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, job)
		}
	}
}

// deliver sends one notification and records the outcome. The delivered flag
// and timestamp are written together, only after the send succeeded.
func (d *Dispatcher) deliver(ctx context.Context, job deliveryJob) {
	n := job.item

	msg, err := d.buildMessage(ctx, n, job.channels)
	if err != nil {
		logging.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("message build failed")
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err = d.sender.Send(sendCtx, msg)
	cancel()
	if err != nil {
		logging.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Str("owner_id", n.OwnerID.String()).
			Msg("delivery failed, leaving undelivered for redelivery sweep")
		return
	}

	n.MarkDelivered(d.now())
	if err := d.notifications.Update(ctx, n); err != nil {
		logging.Error().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("delivered flag persist failed")
	}

	d.pushLive(ctx, n)
}

// pushLive forwards the delivered notification and the owner's fresh unread
// count to connected websocket clients.
func (d *Dispatcher) pushLive(ctx context.Context, n *models.NotificationItem) {
	if d.broadcaster == nil {
		return
	}
	d.broadcaster.PushNotification(n.OwnerID, n)
	count, err := d.notifications.CountUnread(ctx, n.OwnerID)
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", n.OwnerID.String()).Msg("unread count failed")
		return
	}
	d.broadcaster.PushUnreadCount(n.OwnerID, count)
}

// buildMessage assembles the outbound message, resolving the owner's contact
// endpoints from preferences.
func (d *Dispatcher) buildMessage(ctx context.Context, n *models.NotificationItem, channels []models.DeliveryChannel) (*models.Message, error) {
	var email, webhookURL string
	prefs, err := d.preferences.Get(ctx, n.OwnerID)
	switch {
	case err == nil:
		email = prefs.Email
		webhookURL = prefs.WebhookURL
	case errors.Is(err, store.ErrNotFound):
		// Owner never saved preferences; in-app delivery still works.
	default:
		return nil, fmt.Errorf("load contact preferences: %w", err)
	}

	content := models.MessageContent{
		Subject:   n.Title,
		Body:      n.Description,
		ActionURL: n.ActionURL,
	}
	if len(n.Extra) > 0 {
		content.Variables = make(map[string]any, len(n.Extra))
		for k, v := range n.Extra {
			content.Variables[k] = v
		}
	}

	notifID := n.ID
	return &models.Message{
		ID:       uuid.New(),
		Type:     models.MessageTypeForEvent(n.Event),
		Priority: n.Priority,
		Recipient: models.Recipient{
			OwnerID:    n.OwnerID,
			Email:      email,
			WebhookURL: webhookURL,
			Channels:   channels,
		},
		Content:        content,
		Status:         models.MessageQueued,
		NotificationID: &notifID,
		CreatedAt:      d.now(),
	}, nil
}
