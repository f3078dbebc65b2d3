// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/herald-notify/herald/internal/store"
)

// NotificationList returns the owner's notifications, newest first.
func (h *Handler) NotificationList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	limit, offset := h.parsePagination(r)
	items, total, err := h.stores.Notifications.ListByOwner(r.Context(), ownerID, limit, offset)
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.SuccessWithPagination(items, &PaginationMeta{
		Total:   total,
		Count:   len(items),
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(items) < total,
	})
}

// NotificationGet returns one notification owned by the caller.
func (h *Handler) NotificationGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid notification ID")
		return
	}

	n, err := h.stores.Notifications.GetByID(r.Context(), ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Notification not found")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(n)
}

type unreadCountResponse struct {
	Count int `json:"count"`
}

// NotificationUnreadCount returns the owner's unread total.
func (h *Handler) NotificationUnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	count, err := h.stores.Notifications.CountUnread(r.Context(), ownerID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(unreadCountResponse{Count: count})
}

// NotificationMarkRead marks one notification read and pushes the new unread
// count to the owner's live connections.
func (h *Handler) NotificationMarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid notification ID")
		return
	}

	err = h.stores.Notifications.MarkRead(r.Context(), ownerID, id, time.Now().UTC())
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Notification not found")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	h.pushUnreadCount(r, ownerID)
	rw.NoContent()
}

type markAllReadResponse struct {
	Updated int `json:"updated"`
}

// NotificationMarkAllRead marks every unread notification read.
func (h *Handler) NotificationMarkAllRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	updated, err := h.stores.Notifications.MarkAllRead(r.Context(), ownerID, time.Now().UTC())
	if err != nil {
		rw.StoreError(err)
		return
	}

	h.pushUnreadCount(r, ownerID)
	rw.Success(markAllReadResponse{Updated: updated})
}

// NotificationDelete removes one notification owned by the caller.
func (h *Handler) NotificationDelete(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid notification ID")
		return
	}

	err = h.stores.Notifications.Delete(r.Context(), ownerID, id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Notification not found")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}

	h.pushUnreadCount(r, ownerID)
	rw.NoContent()
}
