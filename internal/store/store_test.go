// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// backends returns both repository implementations so every test runs
// against memory and Badger.
func backends(t *testing.T) map[string]*Stores {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return map[string]*Stores{
		"memory": NewMemoryStores(),
		"badger": NewBadgerStores(db),
	}
}

func newSubscription(ownerID uuid.UUID, subType models.SubscriptionType, targetID uuid.UUID, createdAt time.Time) *models.Subscription {
	return &models.Subscription{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Type:      subType,
		TargetID:  targetID,
		Events:    []models.EventType{models.EventWorkUpdated},
		Frequency: models.FrequencyImmediate,
		IsActive:  true,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestSubscriptionCRUD(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Subscriptions
			owner := uuid.New()
			target := uuid.New()

			sub := newSubscription(owner, models.SubscriptionWork, target, time.Now().UTC())
			if err := repo.Create(ctx, sub); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := repo.GetByID(ctx, sub.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.TargetID != target {
				t.Errorf("expected target %s, got %s", target, got.TargetID)
			}

			got.IsActive = false
			if err := repo.Update(ctx, got); err != nil {
				t.Fatalf("update: %v", err)
			}

			updated, err := repo.GetByID(ctx, sub.ID)
			if err != nil {
				t.Fatalf("get after update: %v", err)
			}
			if updated.IsActive {
				t.Error("expected subscription to be inactive after update")
			}

			if err := repo.Delete(ctx, sub.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := repo.GetByID(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestSubscriptionFindByTarget(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Subscriptions
			target := uuid.New()
			base := time.Now().UTC()

			first := newSubscription(uuid.New(), models.SubscriptionAuthor, target, base)
			second := newSubscription(uuid.New(), models.SubscriptionAuthor, target, base.Add(time.Second))
			other := newSubscription(uuid.New(), models.SubscriptionWork, target, base)

			for _, sub := range []*models.Subscription{first, second, other} {
				if err := repo.Create(ctx, sub); err != nil {
					t.Fatalf("create: %v", err)
				}
			}

			found, err := repo.FindByTarget(ctx, models.SubscriptionAuthor, target)
			if err != nil {
				t.Fatalf("find by target: %v", err)
			}
			if len(found) != 2 {
				t.Fatalf("expected 2 author subscriptions, got %d", len(found))
			}
			if found[0].ID != first.ID {
				t.Error("expected oldest subscription first")
			}

			// Type change must move the subscription to the new index.
			second.Type = models.SubscriptionSeries
			if err := repo.Update(ctx, second); err != nil {
				t.Fatalf("update type: %v", err)
			}

			found, err = repo.FindByTarget(ctx, models.SubscriptionAuthor, target)
			if err != nil {
				t.Fatalf("find after re-key: %v", err)
			}
			if len(found) != 1 {
				t.Errorf("expected 1 author subscription after type change, got %d", len(found))
			}

			series, err := repo.FindByTarget(ctx, models.SubscriptionSeries, target)
			if err != nil {
				t.Fatalf("find series: %v", err)
			}
			if len(series) != 1 {
				t.Errorf("expected 1 series subscription after type change, got %d", len(series))
			}
		})
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Preferences
			owner := uuid.New()

			if _, err := repo.Get(ctx, owner); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for unsaved owner, got %v", err)
			}

			prefs := models.DefaultPreferences(owner)
			prefs.MaxNotificationsPerHour = 5
			if err := repo.Put(ctx, prefs); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := repo.Get(ctx, owner)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.MaxNotificationsPerHour != 5 {
				t.Errorf("expected rate limit 5, got %d", got.MaxNotificationsPerHour)
			}
			if len(got.EventPreferences) == 0 {
				t.Error("expected event preferences to round-trip")
			}
		})
	}
}

func newNotification(ownerID uuid.UUID, eventType models.EventType, sourceID uuid.UUID, createdAt time.Time) *models.NotificationItem {
	return &models.NotificationItem{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Event:      eventType,
		Priority:   models.PriorityMedium,
		SourceID:   sourceID,
		SourceType: "work",
		Title:      "Updated",
		CreatedAt:  createdAt,
	}
}

func TestNotificationListOrderingAndPaging(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Notifications
			owner := uuid.New()
			base := time.Now().UTC()

			for i := 0; i < 5; i++ {
				n := newNotification(owner, models.EventWorkUpdated, uuid.New(), base.Add(time.Duration(i)*time.Second))
				if err := repo.Create(ctx, n); err != nil {
					t.Fatalf("create: %v", err)
				}
			}

			page, total, err := repo.ListByOwner(ctx, owner, 2, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if total != 5 {
				t.Errorf("expected total 5, got %d", total)
			}
			if len(page) != 2 {
				t.Fatalf("expected page of 2, got %d", len(page))
			}
			if !page[0].CreatedAt.After(page[1].CreatedAt) {
				t.Error("expected newest-first ordering")
			}

			rest, _, err := repo.ListByOwner(ctx, owner, 10, 4)
			if err != nil {
				t.Fatalf("list offset: %v", err)
			}
			if len(rest) != 1 {
				t.Errorf("expected 1 item at offset 4, got %d", len(rest))
			}
		})
	}
}

func TestNotificationReadState(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Notifications
			owner := uuid.New()
			now := time.Now().UTC()

			first := newNotification(owner, models.EventKudosReceived, uuid.New(), now)
			second := newNotification(owner, models.EventKudosReceived, uuid.New(), now)
			for _, n := range []*models.NotificationItem{first, second} {
				if err := repo.Create(ctx, n); err != nil {
					t.Fatalf("create: %v", err)
				}
			}

			if count, _ := repo.CountUnread(ctx, owner); count != 2 {
				t.Errorf("expected 2 unread, got %d", count)
			}

			if err := repo.MarkRead(ctx, owner, first.ID, now); err != nil {
				t.Fatalf("mark read: %v", err)
			}
			if count, _ := repo.CountUnread(ctx, owner); count != 1 {
				t.Errorf("expected 1 unread after mark read, got %d", count)
			}

			marked, err := repo.MarkAllRead(ctx, owner, now)
			if err != nil {
				t.Fatalf("mark all read: %v", err)
			}
			if marked != 1 {
				t.Errorf("expected 1 newly marked, got %d", marked)
			}
			if count, _ := repo.CountUnread(ctx, owner); count != 0 {
				t.Errorf("expected 0 unread, got %d", count)
			}
		})
	}
}

func TestNotificationDedupAndRateQueries(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Notifications
			owner := uuid.New()
			source := uuid.New()
			now := time.Now().UTC()

			n := newNotification(owner, models.EventWorkUpdated, source, now.Add(-30*time.Minute))
			if err := repo.Create(ctx, n); err != nil {
				t.Fatalf("create: %v", err)
			}

			exists, err := repo.ExistsSimilarSince(ctx, owner, models.EventWorkUpdated, source, now.Add(-time.Hour))
			if err != nil {
				t.Fatalf("exists similar: %v", err)
			}
			if !exists {
				t.Error("expected duplicate within window to be found")
			}

			exists, err = repo.ExistsSimilarSince(ctx, owner, models.EventWorkUpdated, source, now.Add(-10*time.Minute))
			if err != nil {
				t.Fatalf("exists similar narrow: %v", err)
			}
			if exists {
				t.Error("expected no duplicate outside window")
			}

			count, err := repo.CountCreatedSince(ctx, owner, now.Add(-time.Hour))
			if err != nil {
				t.Fatalf("count since: %v", err)
			}
			if count != 1 {
				t.Errorf("expected 1 in window, got %d", count)
			}
		})
	}
}

func TestNotificationListUndelivered(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Notifications
			owner := uuid.New()
			now := time.Now().UTC()

			stale := newNotification(owner, models.EventWorkUpdated, uuid.New(), now.Add(-10*time.Minute))
			fresh := newNotification(owner, models.EventWorkUpdated, uuid.New(), now)
			delivered := newNotification(owner, models.EventWorkUpdated, uuid.New(), now.Add(-10*time.Minute))
			delivered.MarkDelivered(now)
			digestID := uuid.New()
			batched := newNotification(owner, models.EventKudosReceived, uuid.New(), now.Add(-10*time.Minute))
			batched.DigestID = &digestID

			for _, n := range []*models.NotificationItem{stale, fresh, delivered, batched} {
				if err := repo.Create(ctx, n); err != nil {
					t.Fatalf("create: %v", err)
				}
			}

			out, err := repo.ListUndelivered(ctx, now.Add(-time.Minute), 10)
			if err != nil {
				t.Fatalf("list undelivered: %v", err)
			}
			if len(out) != 1 {
				t.Fatalf("expected only the stale undelivered item, got %d", len(out))
			}
			if out[0].ID != stale.ID {
				t.Errorf("expected stale item, got %s", out[0].ID)
			}
		})
	}
}

func TestRuleOrdering(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Rules
			owner := uuid.New()
			base := time.Now().UTC()

			newer := &models.Rule{
				ID: uuid.New(), OwnerID: owner, Name: "newer",
				Action: models.RuleBlock, IsActive: true,
				CreatedAt: base.Add(time.Second),
			}
			older := &models.Rule{
				ID: uuid.New(), OwnerID: owner, Name: "older",
				Action: models.RuleAllow, IsActive: true,
				CreatedAt: base,
			}

			for _, rule := range []*models.Rule{newer, older} {
				if err := repo.Create(ctx, rule); err != nil {
					t.Fatalf("create: %v", err)
				}
			}

			rules, err := repo.ListByOwner(ctx, owner)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(rules) != 2 {
				t.Fatalf("expected 2 rules, got %d", len(rules))
			}
			if rules[0].Name != "older" {
				t.Error("expected oldest rule first")
			}
		})
	}
}

func TestDigestLifecycle(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Digests
			owner := uuid.New()
			now := time.Now().UTC()

			d := &models.Digest{
				ID:          uuid.New(),
				OwnerID:     owner,
				Type:        models.FrequencyDaily,
				Status:      models.DigestPending,
				WindowStart: now,
				WindowEnd:   now.Add(24 * time.Hour),
				CreatedAt:   now,
			}
			if err := repo.Create(ctx, d); err != nil {
				t.Fatalf("create: %v", err)
			}

			d.Status = models.DigestSent
			sentAt := now.Add(24 * time.Hour)
			d.SentAt = &sentAt
			if err := repo.Update(ctx, d); err != nil {
				t.Fatalf("update: %v", err)
			}

			got, err := repo.GetByID(ctx, d.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != models.DigestSent {
				t.Errorf("expected sent status, got %s", got.Status)
			}

			list, err := repo.ListByOwner(ctx, owner, 10)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 {
				t.Errorf("expected 1 digest, got %d", len(list))
			}
		})
	}
}

func TestDigestListPending(t *testing.T) {
	for name, stores := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := stores.Digests
			now := time.Now().UTC()

			mk := func(status models.DigestStatus, createdAt time.Time) *models.Digest {
				d := &models.Digest{
					ID:          uuid.New(),
					OwnerID:     uuid.New(),
					Type:        models.FrequencyDaily,
					Status:      status,
					WindowStart: createdAt,
					WindowEnd:   createdAt.Add(24 * time.Hour),
					CreatedAt:   createdAt,
				}
				if err := repo.Create(ctx, d); err != nil {
					t.Fatalf("create: %v", err)
				}
				return d
			}

			older := mk(models.DigestPending, now.Add(-2*time.Hour))
			newer := mk(models.DigestPending, now.Add(-time.Hour))
			mk(models.DigestSent, now.Add(-3*time.Hour))
			mk(models.DigestFailed, now.Add(-3*time.Hour))

			pending, err := repo.ListPending(ctx)
			if err != nil {
				t.Fatalf("list pending: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("expected 2 pending digests, got %d", len(pending))
			}
			if pending[0].ID != older.ID || pending[1].ID != newer.ID {
				t.Errorf("pending digests not ordered oldest first")
			}
		})
	}
}
