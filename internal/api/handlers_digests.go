// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"errors"
	"net/http"

	"github.com/herald-notify/herald/internal/store"
)

// DigestList returns the owner's digests, newest first.
func (h *Handler) DigestList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	limit, _ := h.parsePagination(r)
	digests, err := h.stores.Digests.ListByOwner(r.Context(), ownerID, limit)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(digests)
}

// DigestGet returns one digest owned by the caller.
func (h *Handler) DigestGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid digest ID")
		return
	}

	d, err := h.stores.Digests.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Digest not found")
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}
	if d.OwnerID != ownerID {
		rw.NotFound("Digest not found")
		return
	}
	rw.Success(d)
}
