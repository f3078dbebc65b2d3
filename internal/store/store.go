// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package store defines the repository interfaces the pipeline depends on and
// provides two implementations: in-memory (tests, development) and BadgerDB
// (production persistence).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SubscriptionRepository persists subscriptions with a by-target index for
// matcher lookups.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Subscription, error)

	// FindByTarget returns all subscriptions (active or not) whose type and
	// target match. The matcher discards inactive ones; keeping them visible
	// here lets the API list them.
	FindByTarget(ctx context.Context, subType models.SubscriptionType, targetID uuid.UUID) ([]*models.Subscription, error)
}

// PreferenceRepository persists owner preferences. Get returns ErrNotFound
// for owners who never saved preferences; callers fall back to defaults.
type PreferenceRepository interface {
	Get(ctx context.Context, ownerID uuid.UUID) (*models.Preferences, error)
	Put(ctx context.Context, prefs *models.Preferences) error
}

// NotificationRepository persists notification items and answers the queries
// the smart filter, dispatcher, and API need.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.NotificationItem) error
	Update(ctx context.Context, n *models.NotificationItem) error
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*models.NotificationItem, error)

	// ListByOwner returns a page ordered by CreatedAt descending, plus the
	// owner's total count.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.NotificationItem, int, error)

	CountUnread(ctx context.Context, ownerID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, ownerID, id uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, ownerID uuid.UUID, at time.Time) (int, error)

	// CountCreatedSince supports the per-owner hourly rate limit window.
	CountCreatedSince(ctx context.Context, ownerID uuid.UUID, since time.Time) (int, error)

	// ExistsSimilarSince supports duplicate suppression: same owner, event
	// type, and source within the window.
	ExistsSimilarSince(ctx context.Context, ownerID uuid.UUID, eventType models.EventType, sourceID uuid.UUID, since time.Time) (bool, error)

	// ListUndelivered returns persisted items with IsDelivered=false created
	// before olderThan, for the redelivery sweep. Items routed to digests
	// (DigestID set) are excluded.
	ListUndelivered(ctx context.Context, olderThan time.Time, limit int) ([]*models.NotificationItem, error)
}

// DigestRepository persists digests through their lifecycle. Delete exists
// for discarding digests that closed empty; sent and failed digests are kept.
type DigestRepository interface {
	Create(ctx context.Context, d *models.Digest) error
	Update(ctx context.Context, d *models.Digest) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Digest, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Digest, error)

	// ListPending returns digests still collecting items, for restoring the
	// batch processor's open set after a restart.
	ListPending(ctx context.Context) ([]*models.Digest, error)
}

// RuleRepository persists owner-authored rules.
type RuleRepository interface {
	Create(ctx context.Context, r *models.Rule) error
	Update(ctx context.Context, r *models.Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Rule, error)

	// ListByOwner returns rules ordered by CreatedAt ascending, the order the
	// rule engine evaluates them in.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Rule, error)
}

// Stores bundles all repositories behind one wiring point.
type Stores struct {
	Subscriptions SubscriptionRepository
	Preferences   PreferenceRepository
	Notifications NotificationRepository
	Digests       DigestRepository
	Rules         RuleRepository
}
