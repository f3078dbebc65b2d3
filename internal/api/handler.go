// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
	"github.com/herald-notify/herald/internal/websocket"
)

// EventPublisher accepts lifecycle events for the pipeline. Satisfied by
// eventbus.Bus.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.Event) error
}

// Enqueuer hands a persisted notification to the dispatcher. Satisfied by
// notify.Dispatcher.
type Enqueuer interface {
	Enqueue(n *models.NotificationItem, channels []models.DeliveryChannel) error
}

// ChannelLister reports which delivery channels are configured. Satisfied by
// delivery.Manager.
type ChannelLister interface {
	AvailableChannels() []models.DeliveryChannel
}

// Handler implements all API endpoints.
type Handler struct {
	stores    *store.Stores
	publisher EventPublisher
	hub       *websocket.Hub
	enqueuer  Enqueuer
	channels  ChannelLister

	wsConfig        config.WebSocketConfig
	defaultPageSize int
	maxPageSize     int
}

// NewHandler wires the API over the stores and pipeline entry points.
func NewHandler(
	stores *store.Stores,
	publisher EventPublisher,
	hub *websocket.Hub,
	enqueuer Enqueuer,
	channels ChannelLister,
	apiCfg config.APIConfig,
	wsCfg config.WebSocketConfig,
) *Handler {
	defaultPage := apiCfg.DefaultPageSize
	if defaultPage <= 0 {
		defaultPage = 20
	}
	maxPage := apiCfg.MaxPageSize
	if maxPage <= 0 {
		maxPage = 100
	}

	return &Handler{
		stores:          stores,
		publisher:       publisher,
		hub:             hub,
		enqueuer:        enqueuer,
		channels:        channels,
		wsConfig:        wsCfg,
		defaultPageSize: defaultPage,
		maxPageSize:     maxPage,
	}
}

// ownerID returns the authenticated owner, writing a 401 when the auth
// middleware did not run.
func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := OwnerFromContext(r.Context())
	if !ok {
		NewResponseWriter(w, r).Unauthorized("Authentication required")
	}
	return id, ok
}

// pathUUID parses the named Chi URL parameter as a UUID.
func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// parsePagination reads limit/offset query parameters, clamping the limit to
// the configured maximum.
func (h *Handler) parsePagination(r *http.Request) (limit, offset int) {
	limit = h.defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > h.maxPageSize {
		limit = h.maxPageSize
	}

	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// decodeJSON decodes the request body, writing a 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		NewResponseWriter(w, r).BadRequest("Invalid JSON body")
		return false
	}
	return true
}
