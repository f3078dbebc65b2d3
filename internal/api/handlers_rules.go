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

// RuleList returns the owner's rules in evaluation order (oldest first).
func (h *Handler) RuleList(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	rules, err := h.stores.Rules.ListByOwner(r.Context(), ownerID)
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(rules)
}

// RuleCreate creates a rule for the authenticated owner. Creation time sets
// the rule's position in the evaluation order permanently.
func (h *Handler) RuleCreate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var rule models.Rule
	if !decodeJSON(w, r, &rule) {
		return
	}
	if verr := validation.ValidateStruct(&rule); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}

	now := time.Now().UTC()
	rule.ID = uuid.New()
	rule.OwnerID = ownerID
	rule.IsActive = true
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := h.stores.Rules.Create(r.Context(), &rule); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Created(&rule)
}

// RuleGet returns one rule owned by the caller.
func (h *Handler) RuleGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	rule, ok := h.loadOwnedRule(w, r, ownerID)
	if !ok {
		return
	}
	rw.Success(rule)
}

// RuleUpdate replaces the mutable fields of a rule. CreatedAt is preserved
// so updates do not reorder the evaluation sequence.
func (h *Handler) RuleUpdate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	existing, ok := h.loadOwnedRule(w, r, ownerID)
	if !ok {
		return
	}

	var update models.Rule
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

	if err := h.stores.Rules.Update(r.Context(), &update); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(&update)
}

// RuleDelete removes a rule owned by the caller.
func (h *Handler) RuleDelete(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	existing, ok := h.loadOwnedRule(w, r, ownerID)
	if !ok {
		return
	}

	if err := h.stores.Rules.Delete(r.Context(), existing.ID); err != nil {
		rw.StoreError(err)
		return
	}
	rw.NoContent()
}

func (h *Handler) loadOwnedRule(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) (*models.Rule, bool) {
	rw := NewResponseWriter(w, r)

	id, err := pathUUID(r, "id")
	if err != nil {
		rw.BadRequest("Invalid rule ID")
		return nil, false
	}

	rule, err := h.stores.Rules.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		rw.NotFound("Rule not found")
		return nil, false
	}
	if err != nil {
		rw.StoreError(err)
		return nil, false
	}
	if rule.OwnerID != ownerID {
		rw.NotFound("Rule not found")
		return nil, false
	}
	return rule, true
}
