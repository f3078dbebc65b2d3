// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
)

// NewMemoryStores returns a full set of in-memory repositories.
// Suitable for tests and single-node development; data does not survive
// restarts.
func NewMemoryStores() *Stores {
	return &Stores{
		Subscriptions: NewMemorySubscriptionRepository(),
		Preferences:   NewMemoryPreferenceRepository(),
		Notifications: NewMemoryNotificationRepository(),
		Digests:       NewMemoryDigestRepository(),
		Rules:         NewMemoryRuleRepository(),
	}
}

// MemorySubscriptionRepository is a map-backed SubscriptionRepository.
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]models.Subscription
}

// NewMemorySubscriptionRepository creates an empty in-memory subscription repository.
func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[uuid.UUID]models.Subscription)}
}

func (r *MemorySubscriptionRepository) Create(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID] = *sub
	return nil
}

func (r *MemorySubscriptionRepository) Update(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	r.subs[sub.ID] = *sub
	return nil
}

func (r *MemorySubscriptionRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

func (r *MemorySubscriptionRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (r *MemorySubscriptionRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, sub := range r.subs {
		if sub.OwnerID == ownerID {
			s := sub
			out = append(out, &s)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func (r *MemorySubscriptionRepository) FindByTarget(_ context.Context, subType models.SubscriptionType, targetID uuid.UUID) ([]*models.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Subscription
	for _, sub := range r.subs {
		if sub.Type == subType && sub.TargetID == targetID {
			s := sub
			out = append(out, &s)
		}
	}
	sortSubscriptions(out)
	return out, nil
}

func sortSubscriptions(subs []*models.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID.String() < subs[j].ID.String()
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

// MemoryPreferenceRepository is a map-backed PreferenceRepository.
type MemoryPreferenceRepository struct {
	mu    sync.RWMutex
	prefs map[uuid.UUID]models.Preferences
}

// NewMemoryPreferenceRepository creates an empty in-memory preference repository.
func NewMemoryPreferenceRepository() *MemoryPreferenceRepository {
	return &MemoryPreferenceRepository{prefs: make(map[uuid.UUID]models.Preferences)}
}

func (r *MemoryPreferenceRepository) Get(_ context.Context, ownerID uuid.UUID) (*models.Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prefs[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPreferenceRepository) Put(_ context.Context, prefs *models.Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefs[prefs.OwnerID] = *prefs
	return nil
}

// MemoryNotificationRepository is a map-backed NotificationRepository.
type MemoryNotificationRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]models.NotificationItem
}

// NewMemoryNotificationRepository creates an empty in-memory notification repository.
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{items: make(map[uuid.UUID]models.NotificationItem)}
}

func (r *MemoryNotificationRepository) Create(_ context.Context, n *models.NotificationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[n.ID] = *n
	return nil
}

func (r *MemoryNotificationRepository) Update(_ context.Context, n *models.NotificationItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[n.ID]; !ok {
		return ErrNotFound
	}
	r.items[n.ID] = *n
	return nil
}

func (r *MemoryNotificationRepository) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[id]
	if !ok || n.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemoryNotificationRepository) GetByID(_ context.Context, ownerID, id uuid.UUID) (*models.NotificationItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[id]
	if !ok || n.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (r *MemoryNotificationRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.NotificationItem, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*models.NotificationItem
	for _, n := range r.items {
		if n.OwnerID == ownerID {
			item := n
			all = append(all, &item)
		}
	}

	// Newest first, ID as tie-breaker for deterministic pages.
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID.String() > all[j].ID.String()
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryNotificationRepository) CountUnread(_ context.Context, ownerID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.items {
		if n.OwnerID == ownerID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, ownerID, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok || n.OwnerID != ownerID {
		return ErrNotFound
	}
	n.MarkRead(at)
	r.items[id] = n
	return nil
}

func (r *MemoryNotificationRepository) MarkAllRead(_ context.Context, ownerID uuid.UUID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for id, n := range r.items {
		if n.OwnerID == ownerID && !n.IsRead {
			n.MarkRead(at)
			r.items[id] = n
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) CountCreatedSince(_ context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, n := range r.items {
		if n.OwnerID == ownerID && !n.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) ExistsSimilarSince(_ context.Context, ownerID uuid.UUID, eventType models.EventType, sourceID uuid.UUID, since time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.items {
		if n.OwnerID == ownerID && n.Event == eventType && n.SourceID == sourceID && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryNotificationRepository) ListUndelivered(_ context.Context, olderThan time.Time, limit int) ([]*models.NotificationItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.NotificationItem
	for _, n := range r.items {
		if !n.IsDelivered && n.DigestID == nil && n.CreatedAt.Before(olderThan) {
			item := n
			out = append(out, &item)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryDigestRepository is a map-backed DigestRepository.
type MemoryDigestRepository struct {
	mu      sync.RWMutex
	digests map[uuid.UUID]models.Digest
}

// NewMemoryDigestRepository creates an empty in-memory digest repository.
func NewMemoryDigestRepository() *MemoryDigestRepository {
	return &MemoryDigestRepository{digests: make(map[uuid.UUID]models.Digest)}
}

func (r *MemoryDigestRepository) Create(_ context.Context, d *models.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.digests[d.ID] = *d
	return nil
}

func (r *MemoryDigestRepository) Update(_ context.Context, d *models.Digest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.digests[d.ID]; !ok {
		return ErrNotFound
	}
	r.digests[d.ID] = *d
	return nil
}

func (r *MemoryDigestRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.digests[id]; !ok {
		return ErrNotFound
	}
	delete(r.digests, id)
	return nil
}

func (r *MemoryDigestRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Digest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.digests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *MemoryDigestRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*models.Digest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Digest
	for _, d := range r.digests {
		if d.OwnerID == ownerID {
			digest := d
			out = append(out, &digest)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryDigestRepository) ListPending(_ context.Context) ([]*models.Digest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Digest
	for _, d := range r.digests {
		if d.Status == models.DigestPending {
			digest := d
			out = append(out, &digest)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MemoryRuleRepository is a map-backed RuleRepository.
type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[uuid.UUID]models.Rule
}

// NewMemoryRuleRepository creates an empty in-memory rule repository.
func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[uuid.UUID]models.Rule)}
}

func (r *MemoryRuleRepository) Create(_ context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = *rule
	return nil
}

func (r *MemoryRuleRepository) Update(_ context.Context, rule *models.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return ErrNotFound
	}
	r.rules[rule.ID] = *rule
	return nil
}

func (r *MemoryRuleRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *MemoryRuleRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rule, nil
}

func (r *MemoryRuleRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Rule
	for _, rule := range r.rules {
		if rule.OwnerID == ownerID {
			rl := rule
			out = append(out, &rl)
		}
	}

	// Oldest first: the rule engine's evaluation order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
