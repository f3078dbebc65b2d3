// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"net/http"

	"github.com/google/uuid"
)

// readinessProbeOwner is a throwaway owner used to exercise one cheap read
// against the store backend.
var readinessProbeOwner = uuid.Nil

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"websocket_connections"`
}

// Health reports overall service status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.hub != nil {
		resp.Connections = h.hub.ClientCount()
	}
	NewResponseWriter(w, r).Success(resp)
}

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HealthReady is the readiness probe. The stores are constructed before the
// server starts listening, so reachability of the repository layer is the
// readiness condition.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.stores == nil || h.stores.Notifications == nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeInternalError, "Stores not ready")
		return
	}
	if _, err := h.stores.Notifications.CountUnread(r.Context(), readinessProbeOwner); err != nil {
		NewResponseWriter(w, r).Error(http.StatusServiceUnavailable, ErrCodeStoreError, "Store not reachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
