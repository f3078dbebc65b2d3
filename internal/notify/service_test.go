// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// captureEnqueuer records immediate dispatches.
type captureEnqueuer struct {
	mu    sync.Mutex
	items []*models.NotificationItem
	chans [][]models.DeliveryChannel
	err   error
}

func (c *captureEnqueuer) Enqueue(n *models.NotificationItem, channels []models.DeliveryChannel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.items = append(c.items, n)
	c.chans = append(c.chans, channels)
	return nil
}

func (c *captureEnqueuer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// captureBatcher records digest handoffs.
type captureBatcher struct {
	mu    sync.Mutex
	items []*models.NotificationItem
	freqs []models.Frequency
}

func (c *captureBatcher) Add(_ context.Context, n *models.NotificationItem, freq models.Frequency) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
	c.freqs = append(c.freqs, freq)
	return nil
}

func (c *captureBatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

type pipelineFixture struct {
	stores     *store.Stores
	service    *Service
	dispatcher *captureEnqueuer
	batcher    *captureBatcher
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	stores := newTestStores()
	dispatcher := &captureEnqueuer{}
	batcher := &captureBatcher{}
	service := NewService(stores, dispatcher, batcher, config.PipelineConfig{OwnerWorkers: 2})
	return &pipelineFixture{stores: stores, service: service, dispatcher: dispatcher, batcher: batcher}
}

func (f *pipelineFixture) ownerNotifications(t *testing.T, ownerID uuid.UUID) []*models.NotificationItem {
	t.Helper()
	items, _, err := f.stores.Notifications.ListByOwner(context.Background(), ownerID, 100, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return items
}

func TestProcessEventImmediateDelivery(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	event.Title = "Chapter 12 posted"

	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	items := f.ownerNotifications(t, ownerID)
	if len(items) != 1 {
		t.Fatalf("persisted %d notifications, want 1", len(items))
	}
	if items[0].Title != "Chapter 12 posted" || items[0].Event != models.EventWorkUpdated {
		t.Errorf("unexpected notification: %+v", items[0])
	}
	if items[0].IsDelivered {
		t.Error("notification marked delivered before dispatch completed")
	}

	// work_updated defaults to immediate on email and in-app.
	if f.dispatcher.count() != 1 {
		t.Fatalf("dispatched %d, want 1", f.dispatcher.count())
	}
	if f.batcher.count() != 0 {
		t.Fatalf("batched %d, want 0", f.batcher.count())
	}
	if got := f.dispatcher.chans[0]; len(got) != 2 {
		t.Errorf("channels = %v, want email and in_app", got)
	}
}

func TestProcessEventLowPriorityGoesToDigest(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventKudosReceived},
		IsActive: true,
	})

	event := models.NewEvent(models.EventKudosReceived, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if f.dispatcher.count() != 0 {
		t.Fatalf("dispatched %d, want 0", f.dispatcher.count())
	}
	if f.batcher.count() != 1 {
		t.Fatalf("batched %d, want 1", f.batcher.count())
	}
	// kudos_received defaults to the daily digest.
	if f.batcher.freqs[0] != models.FrequencyDaily {
		t.Errorf("frequency = %s, want daily", f.batcher.freqs[0])
	}
}

func TestProcessEventSubscriptionFrequencyOverride(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:   ownerID,
		Type:      models.SubscriptionWork,
		TargetID:  workID,
		Events:    []models.EventType{models.EventWorkUpdated},
		Frequency: models.FrequencyWeekly,
		IsActive:  true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	// The preference says immediate, but the subscription pins weekly.
	if f.batcher.count() != 1 {
		t.Fatalf("batched %d, want 1", f.batcher.count())
	}
	if f.batcher.freqs[0] != models.FrequencyWeekly {
		t.Errorf("frequency = %s, want weekly", f.batcher.freqs[0])
	}
}

func TestProcessEventDisabledPreferenceSkips(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	prefs := models.DefaultPreferences(ownerID)
	pref := prefs.EventPreferences[models.EventWorkUpdated]
	pref.Enabled = false
	prefs.EventPreferences[models.EventWorkUpdated] = pref
	if err := f.stores.Preferences.Put(context.Background(), prefs); err != nil {
		t.Fatalf("put preferences: %v", err)
	}

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := len(f.ownerNotifications(t, ownerID)); got != 0 {
		t.Fatalf("persisted %d notifications, want 0", got)
	}
}

func TestProcessEventActorNotNotified(t *testing.T) {
	f := newPipeline(t)
	authorID := uuid.New()
	workID := uuid.New()

	// The author subscribes to their own work; their own update must not
	// notify them.
	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  authorID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	event.ActorID = &authorID
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := len(f.ownerNotifications(t, authorID)); got != 0 {
		t.Fatalf("author notified about their own action: %d notifications", got)
	}
}

func TestProcessEventContentFilterApplied(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	authorID := uuid.New()
	completed := true

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionAuthor,
		TargetID: authorID,
		Events:   []models.EventType{models.EventNewWork},
		IsActive: true,
		Filters:  models.ContentFilters{Completed: &completed, Tags: []string{"fluff"}},
	})

	// In-progress work: filtered out.
	wip := models.NewEvent(models.EventNewWork, uuid.New(), "work")
	wip.AuthorIDs = []uuid.UUID{authorID}
	wip.Tags = []string{"Fluff"}
	wip.IsCompleted = false
	if err := f.service.ProcessEvent(context.Background(), wip); err != nil {
		t.Fatalf("process event: %v", err)
	}
	if got := len(f.ownerNotifications(t, ownerID)); got != 0 {
		t.Fatalf("filtered event produced %d notifications", got)
	}

	// Completed and tagged: passes.
	done := models.NewEvent(models.EventNewWork, uuid.New(), "work")
	done.AuthorIDs = []uuid.UUID{authorID}
	done.Tags = []string{"Fluff"}
	done.IsCompleted = true
	if err := f.service.ProcessEvent(context.Background(), done); err != nil {
		t.Fatalf("process event: %v", err)
	}
	if got := len(f.ownerNotifications(t, ownerID)); got != 1 {
		t.Fatalf("passing event produced %d notifications, want 1", got)
	}
}

func TestProcessEventOneNotificationPerOwner(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()
	authorID := uuid.New()

	// Owner subscribed to both the work and its author.
	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})
	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionAuthor,
		TargetID: authorID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	event.AuthorIDs = []uuid.UUID{authorID}
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := len(f.ownerNotifications(t, ownerID)); got != 1 {
		t.Fatalf("persisted %d notifications, want 1", got)
	}
}

func TestProcessEventDuplicateSuppressedOnSecondPass(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	// Replayed event within the dedup window.
	replay := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), replay); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if got := len(f.ownerNotifications(t, ownerID)); got != 1 {
		t.Fatalf("persisted %d notifications, want 1 (replay suppressed)", got)
	}
}

func TestProcessEventDirectRecipients(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()

	event := models.NewEvent(models.EventAccountSecurity, uuid.New(), "account")
	event.Title = "New login from unrecognized device"
	event.RecipientIDs = []uuid.UUID{ownerID}

	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	items := f.ownerNotifications(t, ownerID)
	if len(items) != 1 {
		t.Fatalf("persisted %d notifications, want 1", len(items))
	}
	if items[0].Priority != models.PriorityHigh {
		t.Errorf("Priority = %s, want high", items[0].Priority)
	}
	if f.dispatcher.count() != 1 {
		t.Fatalf("dispatched %d, want 1", f.dispatcher.count())
	}
}

func TestProcessEventRuleBlocksNotification(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})
	mustCreateRule(t, f.stores, &models.Rule{
		OwnerID:  ownerID,
		Name:     "mute this work",
		Events:   []models.EventType{models.EventWorkUpdated},
		Action:   models.RuleBlock,
		IsActive: true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	if got := len(f.ownerNotifications(t, ownerID)); got != 0 {
		t.Fatalf("blocked event persisted %d notifications", got)
	}
	if f.dispatcher.count() != 0 {
		t.Fatalf("blocked event dispatched %d", f.dispatcher.count())
	}
}

func TestProcessEventRuleModifiesNotification(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})
	low := models.PriorityLow
	mustCreateRule(t, f.stores, &models.Rule{
		OwnerID:     ownerID,
		Name:        "downrank updates",
		Events:      []models.EventType{models.EventWorkUpdated},
		Action:      models.RuleModify,
		SetPriority: &low,
		PrefixTitle: "[muted-ish] ",
		IsActive:    true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	event.Title = "Update"
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	items := f.ownerNotifications(t, ownerID)
	if len(items) != 1 {
		t.Fatalf("persisted %d notifications, want 1", len(items))
	}
	if items[0].Priority != models.PriorityLow {
		t.Errorf("Priority = %s, want low", items[0].Priority)
	}
	if items[0].Title != "[muted-ish] Update" {
		t.Errorf("Title = %q", items[0].Title)
	}
}

func TestProcessEventQuietHoursDefersToDigest(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	prefs := models.DefaultPreferences(ownerID)
	prefs.QuietHoursStart = intPtr(22 * 60)
	prefs.QuietHoursEnd = intPtr(7 * 60)
	if err := f.stores.Preferences.Put(context.Background(), prefs); err != nil {
		t.Fatalf("put preferences: %v", err)
	}

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:  ownerID,
		Type:     models.SubscriptionWork,
		TargetID: workID,
		Events:   []models.EventType{models.EventWorkUpdated},
		IsActive: true,
	})

	// Pin the pipeline clock to the middle of the quiet window.
	f.service.filter.now = fixedClock(time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC))

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	// An immediate-frequency notification lands in the daily digest instead.
	if f.dispatcher.count() != 0 {
		t.Fatalf("dispatched %d during quiet hours", f.dispatcher.count())
	}
	if f.batcher.count() != 1 {
		t.Fatalf("batched %d, want 1", f.batcher.count())
	}
	if f.batcher.freqs[0] != models.FrequencyDaily {
		t.Errorf("frequency = %s, want daily", f.batcher.freqs[0])
	}
}

func TestProcessEventFrequencyNeverPersistsWithoutDelivery(t *testing.T) {
	f := newPipeline(t)
	ownerID := uuid.New()
	workID := uuid.New()

	mustCreateSubscription(t, f.stores, &models.Subscription{
		OwnerID:   ownerID,
		Type:      models.SubscriptionWork,
		TargetID:  workID,
		Events:    []models.EventType{models.EventWorkUpdated},
		Frequency: models.FrequencyNever,
		IsActive:  true,
	})

	event := models.NewEvent(models.EventWorkUpdated, workID, "work")
	if err := f.service.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process event: %v", err)
	}

	items := f.ownerNotifications(t, ownerID)
	if len(items) != 1 {
		t.Fatalf("persisted %d notifications, want 1", len(items))
	}
	if f.dispatcher.count() != 0 || f.batcher.count() != 0 {
		t.Fatalf("never-frequency item was routed: dispatched=%d batched=%d",
			f.dispatcher.count(), f.batcher.count())
	}

	// The persisted record is the whole delivery: the item is delivered at
	// creation, so the redelivery sweep must never pick it up later.
	if !items[0].IsDelivered || items[0].DeliveredAt == nil {
		t.Error("never-frequency item not marked delivered at creation")
	}
	sweeper := NewSweeper(f.stores, f.dispatcher, config.PipelineConfig{RedeliveryBatchSize: 10})
	sweeper.now = fixedClock(time.Now().UTC().Add(time.Hour))
	sweeper.Sweep(context.Background())
	if f.dispatcher.count() != 0 {
		t.Fatalf("redelivery sweep re-dispatched %d never-frequency item(s)", f.dispatcher.count())
	}
}

func TestProcessEventInvalidEventRejected(t *testing.T) {
	f := newPipeline(t)
	event := &models.Event{Type: models.EventWorkUpdated}
	if err := f.service.ProcessEvent(context.Background(), event); err == nil {
		t.Fatal("expected validation error for event without source")
	}
}

func TestResolveFrequency(t *testing.T) {
	prefs := models.DefaultPreferences(uuid.New())
	subWeekly := &models.Subscription{Frequency: models.FrequencyWeekly}
	subNever := &models.Subscription{Frequency: models.FrequencyNever}

	tests := []struct {
		name         string
		sub          *models.Subscription
		prefFreq     models.Frequency
		deferToBatch bool
		want         models.Frequency
	}{
		{"preference wins without subscription", nil, models.FrequencyImmediate, false, models.FrequencyImmediate},
		{"subscription overrides preference", subWeekly, models.FrequencyImmediate, false, models.FrequencyWeekly},
		{"never short-circuits deferral", subNever, models.FrequencyImmediate, true, models.FrequencyNever},
		{"deferral redirects immediate to batch frequency", nil, models.FrequencyImmediate, true, models.FrequencyDaily},
		{"deferral keeps already-batched frequency", nil, models.FrequencyWeekly, true, models.FrequencyWeekly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveFrequency(tt.sub, models.EventPreference{Frequency: tt.prefFreq}, prefs, tt.deferToBatch)
			if got != tt.want {
				t.Errorf("resolveFrequency = %s, want %s", got, tt.want)
			}
		})
	}
}
