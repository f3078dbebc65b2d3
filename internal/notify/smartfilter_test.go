// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
)

// fixedClock pins the filter's view of "now" for deterministic windows.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func intPtr(v int) *int { return &v }

func TestSmartFilterQuietHours(t *testing.T) {
	// 23:30 UTC, inside a 22:00-07:00 overnight window.
	night := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	// 12:00 UTC, outside it.
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	quietPrefs := func(batching bool) *models.Preferences {
		p := models.DefaultPreferences(uuid.New())
		p.QuietHoursStart = intPtr(22 * 60)
		p.QuietHoursEnd = intPtr(7 * 60)
		p.EnableBatching = batching
		return p
	}

	tests := []struct {
		name         string
		now          time.Time
		prefs        *models.Preferences
		eventType    models.EventType
		priority     models.Priority
		wantAllow    bool
		wantDefer    bool
		wantReason   string
	}{
		{
			name:      "outside window passes",
			now:       noon,
			prefs:     quietPrefs(false),
			eventType: models.EventKudosReceived,
			priority:  models.PriorityLow,
			wantAllow: true,
		},
		{
			name:       "inside window with batching defers",
			now:        night,
			prefs:      quietPrefs(true),
			eventType:  models.EventKudosReceived,
			priority:   models.PriorityLow,
			wantAllow:  true,
			wantDefer:  true,
			wantReason: ReasonQuietHours,
		},
		{
			name:       "inside window low priority dropped",
			now:        night,
			prefs:      quietPrefs(false),
			eventType:  models.EventKudosReceived,
			priority:   models.PriorityLow,
			wantAllow:  false,
			wantReason: ReasonQuietHours,
		},
		{
			name:      "inside window high priority passes",
			now:       night,
			prefs:     quietPrefs(false),
			eventType: models.EventCommentReceived,
			priority:  models.PriorityHigh,
			wantAllow: true,
		},
		{
			name:      "security event exempt",
			now:       night,
			prefs:     quietPrefs(false),
			eventType: models.EventAccountSecurity,
			priority:  models.PriorityLow,
			wantAllow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stores := newTestStores()
			filter := NewSmartFilter(stores.Notifications)
			filter.now = fixedClock(tt.now)

			event := models.NewEvent(tt.eventType, uuid.New(), "work")
			d := filter.Check(context.Background(), event, tt.prefs.OwnerID, tt.prefs, tt.priority)

			if d.Allow != tt.wantAllow {
				t.Errorf("Allow = %v, want %v", d.Allow, tt.wantAllow)
			}
			if d.DeferToBatch != tt.wantDefer {
				t.Errorf("DeferToBatch = %v, want %v", d.DeferToBatch, tt.wantDefer)
			}
			if tt.wantReason != "" && d.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.wantReason)
			}
		})
	}
}

func TestSmartFilterQuietHoursHonorsTimezone(t *testing.T) {
	// 03:00 UTC is 22:00 the previous evening in New York (EST, UTC-5),
	// inside a 21:00-08:00 local quiet window.
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)

	prefs := models.DefaultPreferences(uuid.New())
	prefs.Timezone = "America/New_York"
	prefs.QuietHoursStart = intPtr(21 * 60)
	prefs.QuietHoursEnd = intPtr(8 * 60)
	prefs.EnableBatching = false

	stores := newTestStores()
	filter := NewSmartFilter(stores.Notifications)
	filter.now = fixedClock(now)

	event := models.NewEvent(models.EventKudosReceived, uuid.New(), "work")
	d := filter.Check(context.Background(), event, prefs.OwnerID, prefs, models.PriorityLow)
	if d.Allow {
		t.Fatalf("expected suppression inside local quiet window, got allow")
	}
	if d.Reason != ReasonQuietHours {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonQuietHours)
	}
}

func TestSmartFilterRateLimit(t *testing.T) {
	stores := newTestStores()
	filter := NewSmartFilter(stores.Notifications)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	filter.now = fixedClock(now)

	ownerID := uuid.New()
	prefs := models.DefaultPreferences(ownerID)
	prefs.MaxNotificationsPerHour = 2

	// Fill the hourly window.
	for i := 0; i < 2; i++ {
		n := &models.NotificationItem{
			ID:        uuid.New(),
			OwnerID:   ownerID,
			Event:     models.EventKudosReceived,
			SourceID:  uuid.New(),
			CreatedAt: now.Add(-10 * time.Minute),
		}
		if err := stores.Notifications.Create(context.Background(), n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	event := models.NewEvent(models.EventBookmarkAdded, uuid.New(), "work")

	d := filter.Check(context.Background(), event, ownerID, prefs, models.PriorityLow)
	if d.Allow {
		t.Fatalf("expected rate limit suppression, got allow")
	}
	if d.Reason != ReasonRateLimited {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonRateLimited)
	}

	// High priority bypasses the limit.
	d = filter.Check(context.Background(), event, ownerID, prefs, models.PriorityHigh)
	if !d.Allow {
		t.Fatalf("high priority should bypass rate limit, got %q", d.Reason)
	}
}

func TestSmartFilterDuplicateSuppression(t *testing.T) {
	stores := newTestStores()
	filter := NewSmartFilter(stores.Notifications)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	filter.now = fixedClock(now)

	ownerID := uuid.New()
	sourceID := uuid.New()
	prefs := models.DefaultPreferences(ownerID)
	prefs.DedupWindow = time.Hour

	existing := &models.NotificationItem{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Event:     models.EventWorkUpdated,
		SourceID:  sourceID,
		CreatedAt: now.Add(-30 * time.Minute),
	}
	if err := stores.Notifications.Create(context.Background(), existing); err != nil {
		t.Fatalf("create notification: %v", err)
	}

	dup := models.NewEvent(models.EventWorkUpdated, sourceID, "work")
	d := filter.Check(context.Background(), dup, ownerID, prefs, models.PriorityMedium)
	if d.Allow {
		t.Fatalf("expected duplicate suppression, got allow")
	}
	if d.Reason != ReasonDuplicate {
		t.Fatalf("Reason = %q, want %q", d.Reason, ReasonDuplicate)
	}

	// Different source is not a duplicate.
	other := models.NewEvent(models.EventWorkUpdated, uuid.New(), "work")
	if d := filter.Check(context.Background(), other, ownerID, prefs, models.PriorityMedium); !d.Allow {
		t.Fatalf("different source suppressed: %q", d.Reason)
	}

	// Outside the window is not a duplicate either.
	filter.now = fixedClock(now.Add(2 * time.Hour))
	if d := filter.Check(context.Background(), dup, ownerID, prefs, models.PriorityMedium); !d.Allow {
		t.Fatalf("expired duplicate suppressed: %q", d.Reason)
	}
}

func TestInQuietWindowBoundaries(t *testing.T) {
	prefs := models.DefaultPreferences(uuid.New())
	prefs.QuietHoursStart = intPtr(22 * 60)
	prefs.QuietHoursEnd = intPtr(7 * 60)

	day := func(h, m int) time.Time {
		return time.Date(2026, 3, 14, h, m, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"at start", day(22, 0), true},
		{"just before start", day(21, 59), false},
		{"midnight", day(0, 0), true},
		{"just before end", day(6, 59), true},
		{"at end", day(7, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inQuietWindow(tt.now, prefs); got != tt.want {
				t.Errorf("inQuietWindow(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}
