// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
	"github.com/herald-notify/herald/internal/validation"
)

// PreferencesGet returns the owner's preferences, or the defaults when they
// have never saved any. The response always carries a full event map so
// clients can render the settings page without merging.
func (h *Handler) PreferencesGet(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	prefs, err := h.stores.Preferences.Get(r.Context(), ownerID)
	if errors.Is(err, store.ErrNotFound) {
		rw.Success(models.DefaultPreferences(ownerID))
		return
	}
	if err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(prefs)
}

// PreferencesPut replaces the owner's preferences wholesale. The owner ID
// comes from the token, never the body.
func (h *Handler) PreferencesPut(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var prefs models.Preferences
	if !decodeJSON(w, r, &prefs) {
		return
	}

	if verr := validation.ValidateStruct(&prefs); verr != nil {
		apiErr := verr.ToAPIError()
		rw.ValidationError(apiErr.Message, apiErr.Details)
		return
	}
	if (prefs.QuietHoursStart == nil) != (prefs.QuietHoursEnd == nil) {
		rw.BadRequest("quiet_hours_start and quiet_hours_end must be set together")
		return
	}

	prefs.OwnerID = ownerID
	if prefs.Timezone == "" {
		prefs.Timezone = "UTC"
	}
	prefs.UpdatedAt = time.Now().UTC()

	if err := h.stores.Preferences.Put(r.Context(), &prefs); err != nil {
		rw.StoreError(err)
		return
	}
	rw.Success(&prefs)
}
