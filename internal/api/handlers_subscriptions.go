// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
	"github.com/herald-notify/herald/internal/validation"
)

// SubscriptionList returns all of the owner's subscriptions.
func (h *Handler) SubscriptionList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	subs, err := h.stores.Subscriptions.ListByOwner(r.Context(), ownerID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(subs)
}

// SubscriptionCreate creates a subscription for the authenticated owner.
func (h *Handler) SubscriptionCreate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var sub models.Subscription
	if !decodeJSON(w, r, &sub) {
		return
	}
	if verr := validation.ValidateStruct(&sub); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	now := time.Now().UTC()
	sub.ID = uuid.New()
	sub.OwnerID = ownerID
	sub.IsActive = true
	sub.CreatedAt = now
	sub.UpdatedAt = now
	if sub.Frequency == "" {
		sub.Frequency = models.FrequencyImmediate
	}

	if err := h.stores.Subscriptions.Create(r.Context(), &sub); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Created(&sub)
}

// SubscriptionGet returns one subscription owned by the caller.
func (h *Handler) SubscriptionGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	sub, ok := h.loadOwnedSubscription(w, r, ownerID)
	if !ok {
		return
	}
	rw.Success(sub)
}

// SubscriptionUpdate replaces the mutable fields of a subscription. Identity
// fields (ID, owner, creation time) are preserved from the stored record.
func (h *Handler) SubscriptionUpdate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	existing, ok := h.loadOwnedSubscription(w, r, ownerID)
	if !ok {
		return
	}

	var update models.Subscription
	if !decodeJSON(w, r, &update) {
		return
	}
	if verr := validation.ValidateStruct(&update); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	update.ID = existing.ID
	update.OwnerID = existing.OwnerID
	update.CreatedAt = existing.CreatedAt
	update.UpdatedAt = time.Now().UTC()
	if update.Frequency == "" {
		update.Frequency = existing.Frequency
	}

	if err := h.stores.Subscriptions.Update(r.Context(), &update); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(&update)
}

// SubscriptionDelete removes a subscription owned by the caller.
func (h *Handler) SubscriptionDelete(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	existing, ok := h.loadOwnedSubscription(w, r, ownerID)
	if !ok {
		return
	}

	if err := h.stores.Subscriptions.Delete(r.Context(), existing.ID); err != nil {
		rw.StoreError(err)
		return
	}
	rw.NoContent()
}

// loadOwnedSubscription fetches the {id} subscription and enforces ownership.
// A subscription belonging to another owner reads as not found, so IDs do
// not leak across owners.
func (h *Handler) loadOwnedSubscription(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) (*models.Subscription, bool) {
	rw := NewResponseWriter(w, r)

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid subscription ID")
		return nil, false
	}

	sub, err := h.stores.Subscriptions.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Subscription not found")
		return nil, false
	}
	if err != nil {
		rw.StoreError(err)
		return nil, false
	}
	if sub.OwnerID != ownerID {
		rw.NotFound("Subscription not found")
		return nil, false
	}
	return sub, true
}
