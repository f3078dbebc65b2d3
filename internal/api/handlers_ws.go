// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/websocket"
)

// WebSocket upgrades the connection and registers a live push client for the
// authenticated owner. The current unread count is pushed immediately after
// registration so clients render the badge without a separate request.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeInternalError, "Live push is not available")
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:  h.wsConfig.ReadBufferSize,
		WriteBufferSize: h.wsConfig.WriteBufferSize,
		CheckOrigin:     checkSameHostOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("websocket upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, ownerID, h.wsConfig)
	h.hub.Register <- client
	client.Start()

	h.pushUnreadCount(r, ownerID)
}

// checkSameHostOrigin accepts requests without an Origin header
// (non-browser clients) and browser requests from the serving host.
func checkSameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// pushUnreadCount sends the owner's current unread count to their live
// connections. Best effort: a store failure is logged, never surfaced.
func (h *Handler) pushUnreadCount(r *http.Request, ownerID uuid.UUID) {
	if h.hub == nil || h.hub.OwnerClientCount(ownerID) == 0 {
		return
	}
	count, err := h.stores.Notifications.CountUnread(r.Context(), ownerID)
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).Msg("unread count lookup failed")
		return
	}
	h.hub.PushUnreadCount(ownerID, count)
}
