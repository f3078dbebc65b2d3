// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// Suppression reasons reported in Decision.Reason and metric labels.
const (
	ReasonQuietHours  = "quiet_hours"
	ReasonRateLimited = "rate_limited"
	ReasonDuplicate   = "duplicate"
)

// Decision is the smart filter verdict for one candidate notification.
// DeferToBatch redirects an otherwise-suppressed item into the owner's digest
// instead of dropping it.
type Decision struct {
	Allow        bool
	DeferToBatch bool
	Reason       string
}

// SmartFilter applies owner-level noise controls: quiet hours, hourly rate
// limiting, and duplicate suppression. Security-class events are exempt from
// all three.
type SmartFilter struct {
	notifications store.NotificationRepository

	// now is replaceable in tests.
	now func() time.Time
}

// NewSmartFilter creates a smart filter backed by the notification store.
func NewSmartFilter(notifications store.NotificationRepository) *SmartFilter {
	return &SmartFilter{
		notifications: notifications,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Check evaluates the filter stages in order: quiet hours, rate limit,
// duplicate suppression. The first stage that objects decides the outcome.
// Store errors suppress the rate and dedup stages open (the notification
// passes) so a degraded store never silences deliveries.
func (f *SmartFilter) Check(ctx context.Context, event *models.Event, ownerID uuid.UUID, prefs *models.Preferences, priority models.Priority) Decision {
	if event.Type.IsSecurityClass() {
		return Decision{Allow: true}
	}

	now := f.now()

	if d, done := f.checkQuietHours(now, prefs, priority); done {
		return d
	}

	if d, done := f.checkRateLimit(ctx, now, ownerID, prefs, priority); done {
		return d
	}

	if d, done := f.checkDuplicate(ctx, now, event, ownerID, prefs); done {
		return d
	}

	return Decision{Allow: true}
}

// checkQuietHours suppresses or defers notifications that arrive inside the
// owner's quiet window. Batching owners get the item deferred into their
// digest; otherwise high priority passes and the rest are dropped.
func (f *SmartFilter) checkQuietHours(now time.Time, prefs *models.Preferences, priority models.Priority) (Decision, bool) {
	if !prefs.QuietHoursConfigured() {
		return Decision{}, false
	}
	if !inQuietWindow(now, prefs) {
		return Decision{}, false
	}

	if prefs.EnableBatching {
		return Decision{Allow: true, DeferToBatch: true, Reason: ReasonQuietHours}, true
	}
	if priority == models.PriorityHigh {
		return Decision{Allow: true}, true
	}
	return Decision{Allow: false, Reason: ReasonQuietHours}, true
}

// inQuietWindow reports whether now falls inside the owner's quiet hours,
// evaluated in the owner's timezone. Start > End denotes an overnight window
// (for example 22:00 to 07:00). Unknown timezones fall back to UTC.
func inQuietWindow(now time.Time, prefs *models.Preferences) bool {
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	start := *prefs.QuietHoursStart
	end := *prefs.QuietHoursEnd
	if start == end {
		return false
	}
	if start < end {
		return minute >= start && minute < end
	}
	// Overnight window.
	return minute >= start || minute < end
}

// checkRateLimit counts notifications created for the owner in the trailing
// hour against MaxNotificationsPerHour. High priority bypasses the limit so
// replies and gifts still land during bursts.
func (f *SmartFilter) checkRateLimit(ctx context.Context, now time.Time, ownerID uuid.UUID, prefs *models.Preferences, priority models.Priority) (Decision, bool) {
	if prefs.MaxNotificationsPerHour <= 0 {
		return Decision{}, false
	}
	if priority == models.PriorityHigh {
		return Decision{}, false
	}

	count, err := f.notifications.CountCreatedSince(ctx, ownerID, now.Add(-time.Hour))
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).
			Msg("rate limit count failed, passing notification through")
		return Decision{}, false
	}
	if count >= prefs.MaxNotificationsPerHour {
		return Decision{Allow: false, Reason: ReasonRateLimited}, true
	}
	return Decision{}, false
}

// checkDuplicate suppresses a notification when one for the same (owner,
// event type, source) was already created inside the dedup window.
func (f *SmartFilter) checkDuplicate(ctx context.Context, now time.Time, event *models.Event, ownerID uuid.UUID, prefs *models.Preferences) (Decision, bool) {
	if prefs.DedupWindow <= 0 {
		return Decision{}, false
	}

	exists, err := f.notifications.ExistsSimilarSince(ctx, ownerID, event.Type, event.SourceID, now.Add(-prefs.DedupWindow))
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).
			Msg("dedup lookup failed, passing notification through")
		return Decision{}, false
	}
	if exists {
		return Decision{Allow: false, Reason: ReasonDuplicate}, true
	}
	return Decision{}, false
}
