// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
)

type eventAcceptedResponse struct {
	EventID uuid.UUID `json:"event_id"`
}

// EventPublish accepts a lifecycle event and hands it to the bus. The
// response is 202: matching and filtering happen asynchronously in the
// pipeline consumer.
func (h *Handler) EventPublish(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var event models.Event
	if !decodeJSON(w, r, &event) {
		return
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		rw.BadRequest(err.Error())
		return
	}

	if err := h.publisher.Publish(r.Context(), &event); err != nil {
		logging.Error().Err(err).Str("event_id", event.ID.String()).Msg("event publish failed")
		rw.InternalError("Could not accept event")
		return
	}

	rw.writeJSON(http.StatusAccepted, APIResponse{
		Success: true,
		Data:    eventAcceptedResponse{EventID: event.ID},
	})
}

// TestNotification creates and immediately dispatches a notification to the
// caller, bypassing matching and filtering. Lets owners verify their
// channel configuration end to end.
func (h *Handler) TestNotification(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	n := &models.NotificationItem{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Event:       models.EventSystemAlert,
		Priority:    models.PriorityLow,
		SourceID:    uuid.New(),
		SourceType:  "system",
		Title:       "Test notification",
		Description: "This is a test notification from Herald.",
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.stores.Notifications.Create(r.Context(), n); err != nil {
		rw.StoreError(err)
		return
	}
	if err := h.enqueuer.Enqueue(n, []models.DeliveryChannel{models.ChannelInApp}); err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("test notification enqueue failed")
		rw.InternalError("Delivery queue is full")
		return
	}

	rw.Created(n)
}

type channelsResponse struct {
	Channels []models.DeliveryChannel `json:"channels"`
}

// ChannelList reports which delivery channels this deployment has configured.
func (h *Handler) ChannelList(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(channelsResponse{
		Channels: h.channels.AvailableChannels(),
	})
}
