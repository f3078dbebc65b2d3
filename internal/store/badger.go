// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
)

// Key prefixes for BadgerDB storage. Secondary-index keys store the primary
// key as their value so lookups are one extra Get, never a scan.
const (
	subKeyPrefix       = "sub:"
	subOwnerKeyPrefix  = "sub_owner:"
	subTargetKeyPrefix = "sub_target:"

	prefKeyPrefix = "pref:"

	notifKeyPrefix = "notif:"

	digestKeyPrefix      = "digest:"
	digestOwnerKeyPrefix = "digest_owner:"

	ruleKeyPrefix      = "rule:"
	ruleOwnerKeyPrefix = "rule_owner:"
)

// OpenBadger opens (or creates) a BadgerDB instance at path with Herald's
// defaults. The caller owns the returned handle and must Close it.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

// NewBadgerStores returns a full set of BadgerDB-backed repositories sharing
// one database handle.
func NewBadgerStores(db *badger.DB) *Stores {
	return &Stores{
		Subscriptions: NewBadgerSubscriptionRepository(db),
		Preferences:   NewBadgerPreferenceRepository(db),
		Notifications: NewBadgerNotificationRepository(db),
		Digests:       NewBadgerDigestRepository(db),
		Rules:         NewBadgerRuleRepository(db),
	}
}

// RunGC runs the Badger value log garbage collector on an interval until the
// context is cancelled. Badger requires the caller to drive GC.
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration) {
	logger := logging.WithComponent("store")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ErrNoRewrite just means nothing to collect.
			if err := db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logger.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}

func getJSON[T any](txn *badger.Txn, key string) (*T, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	var out T
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	}); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// iteratePrefix calls fn with each value under prefix until fn returns false.
func iteratePrefix(txn *badger.Txn, prefix string, fn func(val []byte) (bool, error)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		var keepGoing bool
		err := it.Item().Value(func(val []byte) error {
			var innerErr error
			keepGoing, innerErr = fn(val)
			return innerErr
		})
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

// BadgerSubscriptionRepository implements SubscriptionRepository on BadgerDB.
type BadgerSubscriptionRepository struct {
	db *badger.DB
}

// NewBadgerSubscriptionRepository creates a BadgerDB-backed subscription repository.
func NewBadgerSubscriptionRepository(db *badger.DB) *BadgerSubscriptionRepository {
	return &BadgerSubscriptionRepository{db: db}
}

func subKey(id uuid.UUID) string { return subKeyPrefix + id.String() }

func subOwnerKey(ownerID, id uuid.UUID) string {
	return subOwnerKeyPrefix + ownerID.String() + ":" + id.String()
}

func subTargetKey(subType models.SubscriptionType, targetID, id uuid.UUID) string {
	return subTargetKeyPrefix + string(subType) + ":" + targetID.String() + ":" + id.String()
}

func (r *BadgerSubscriptionRepository) Create(_ context.Context, sub *models.Subscription) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, subKey(sub.ID), sub); err != nil {
			return err
		}
		idVal := []byte(sub.ID.String())
		if err := txn.Set([]byte(subOwnerKey(sub.OwnerID, sub.ID)), idVal); err != nil {
			return fmt.Errorf("set owner index: %w", err)
		}
		if err := txn.Set([]byte(subTargetKey(sub.Type, sub.TargetID, sub.ID)), idVal); err != nil {
			return fmt.Errorf("set target index: %w", err)
		}
		return nil
	})
}

func (r *BadgerSubscriptionRepository) Update(_ context.Context, sub *models.Subscription) error {
	return r.db.Update(func(txn *badger.Txn) error {
		prev, err := getJSON[models.Subscription](txn, subKey(sub.ID))
		if err != nil {
			return err
		}

		// Re-key the target index when type or target changed.
		if prev.Type != sub.Type || prev.TargetID != sub.TargetID {
			if err := txn.Delete([]byte(subTargetKey(prev.Type, prev.TargetID, sub.ID))); err != nil {
				return fmt.Errorf("delete stale target index: %w", err)
			}
			if err := txn.Set([]byte(subTargetKey(sub.Type, sub.TargetID, sub.ID)), []byte(sub.ID.String())); err != nil {
				return fmt.Errorf("set target index: %w", err)
			}
		}

		return setJSON(txn, subKey(sub.ID), sub)
	})
}

func (r *BadgerSubscriptionRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		sub, err := getJSON[models.Subscription](txn, subKey(id))
		if err != nil {
			return err
		}

		if err := txn.Delete([]byte(subKey(id))); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		if err := txn.Delete([]byte(subOwnerKey(sub.OwnerID, id))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete owner index: %w", err)
		}
		if err := txn.Delete([]byte(subTargetKey(sub.Type, sub.TargetID, id))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete target index: %w", err)
		}
		return nil
	})
}

func (r *BadgerSubscriptionRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub *models.Subscription
	err := r.db.View(func(txn *badger.Txn) error {
		var innerErr error
		sub, innerErr = getJSON[models.Subscription](txn, subKey(id))
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *BadgerSubscriptionRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Subscription, error) {
	return r.collectByIndex(subOwnerKeyPrefix + ownerID.String() + ":")
}

func (r *BadgerSubscriptionRepository) FindByTarget(_ context.Context, subType models.SubscriptionType, targetID uuid.UUID) ([]*models.Subscription, error) {
	return r.collectByIndex(subTargetKeyPrefix + string(subType) + ":" + targetID.String() + ":")
}

func (r *BadgerSubscriptionRepository) collectByIndex(indexPrefix string) ([]*models.Subscription, error) {
	var out []*models.Subscription

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, indexPrefix, func(val []byte) (bool, error) {
			sub, err := getJSON[models.Subscription](txn, subKeyPrefix+string(val))
			if errors.Is(err, ErrNotFound) {
				// Index entry outlived the record; skip.
				return true, nil
			}
			if err != nil {
				return false, err
			}
			out = append(out, sub)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sortSubscriptions(out)
	return out, nil
}

// BadgerPreferenceRepository implements PreferenceRepository on BadgerDB.
type BadgerPreferenceRepository struct {
	db *badger.DB
}

// NewBadgerPreferenceRepository creates a BadgerDB-backed preference repository.
func NewBadgerPreferenceRepository(db *badger.DB) *BadgerPreferenceRepository {
	return &BadgerPreferenceRepository{db: db}
}

func (r *BadgerPreferenceRepository) Get(_ context.Context, ownerID uuid.UUID) (*models.Preferences, error) {
	var prefs *models.Preferences
	err := r.db.View(func(txn *badger.Txn) error {
		var innerErr error
		prefs, innerErr = getJSON[models.Preferences](txn, prefKeyPrefix+ownerID.String())
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (r *BadgerPreferenceRepository) Put(_ context.Context, prefs *models.Preferences) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, prefKeyPrefix+prefs.OwnerID.String(), prefs)
	})
}

// BadgerNotificationRepository implements NotificationRepository on BadgerDB.
// Items are keyed notif:<owner>:<id> so all per-owner queries are prefix scans.
type BadgerNotificationRepository struct {
	db *badger.DB
}

// NewBadgerNotificationRepository creates a BadgerDB-backed notification repository.
func NewBadgerNotificationRepository(db *badger.DB) *BadgerNotificationRepository {
	return &BadgerNotificationRepository{db: db}
}

func notifKey(ownerID, id uuid.UUID) string {
	return notifKeyPrefix + ownerID.String() + ":" + id.String()
}

func notifOwnerPrefix(ownerID uuid.UUID) string {
	return notifKeyPrefix + ownerID.String() + ":"
}

func (r *BadgerNotificationRepository) Create(_ context.Context, n *models.NotificationItem) error {
	return r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, notifKey(n.OwnerID, n.ID), n)
	})
}

func (r *BadgerNotificationRepository) Update(_ context.Context, n *models.NotificationItem) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := notifKey(n.OwnerID, n.ID)
		if _, err := getJSON[models.NotificationItem](txn, key); err != nil {
			return err
		}
		return setJSON(txn, key, n)
	})
}

func (r *BadgerNotificationRepository) Delete(_ context.Context, ownerID, id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := notifKey(ownerID, id)
		if _, err := getJSON[models.NotificationItem](txn, key); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
}

func (r *BadgerNotificationRepository) GetByID(_ context.Context, ownerID, id uuid.UUID) (*models.NotificationItem, error) {
	var n *models.NotificationItem
	err := r.db.View(func(txn *badger.Txn) error {
		var innerErr error
		n, innerErr = getJSON[models.NotificationItem](txn, notifKey(ownerID, id))
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *BadgerNotificationRepository) collectByOwner(ownerID uuid.UUID, keep func(*models.NotificationItem) bool) ([]*models.NotificationItem, error) {
	var out []*models.NotificationItem

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, notifOwnerPrefix(ownerID), func(val []byte) (bool, error) {
			var n models.NotificationItem
			if err := json.Unmarshal(val, &n); err != nil {
				return false, fmt.Errorf("decode notification: %w", err)
			}
			if keep == nil || keep(&n) {
				out = append(out, &n)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BadgerNotificationRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.NotificationItem, int, error) {
	all, err := r.collectByOwner(ownerID, nil)
	if err != nil {
		return nil, 0, err
	}

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

func (r *BadgerNotificationRepository) CountUnread(_ context.Context, ownerID uuid.UUID) (int, error) {
	items, err := r.collectByOwner(ownerID, func(n *models.NotificationItem) bool {
		return !n.IsRead
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *BadgerNotificationRepository) MarkRead(_ context.Context, ownerID, id uuid.UUID, at time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		key := notifKey(ownerID, id)
		n, err := getJSON[models.NotificationItem](txn, key)
		if err != nil {
			return err
		}
		n.MarkRead(at)
		return setJSON(txn, key, n)
	})
}

func (r *BadgerNotificationRepository) MarkAllRead(_ context.Context, ownerID uuid.UUID, at time.Time) (int, error) {
	unread, err := r.collectByOwner(ownerID, func(n *models.NotificationItem) bool {
		return !n.IsRead
	})
	if err != nil {
		return 0, err
	}

	count := 0
	err = r.db.Update(func(txn *badger.Txn) error {
		for _, n := range unread {
			n.MarkRead(at)
			if err := setJSON(txn, notifKey(n.OwnerID, n.ID), n); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *BadgerNotificationRepository) CountCreatedSince(_ context.Context, ownerID uuid.UUID, since time.Time) (int, error) {
	items, err := r.collectByOwner(ownerID, func(n *models.NotificationItem) bool {
		return !n.CreatedAt.Before(since)
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *BadgerNotificationRepository) ExistsSimilarSince(_ context.Context, ownerID uuid.UUID, eventType models.EventType, sourceID uuid.UUID, since time.Time) (bool, error) {
	found := false

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, notifOwnerPrefix(ownerID), func(val []byte) (bool, error) {
			var n models.NotificationItem
			if err := json.Unmarshal(val, &n); err != nil {
				return false, fmt.Errorf("decode notification: %w", err)
			}
			if n.Event == eventType && n.SourceID == sourceID && !n.CreatedAt.Before(since) {
				found = true
				return false, nil
			}
			return true, nil
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *BadgerNotificationRepository) ListUndelivered(_ context.Context, olderThan time.Time, limit int) ([]*models.NotificationItem, error) {
	var out []*models.NotificationItem

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, notifKeyPrefix, func(val []byte) (bool, error) {
			var n models.NotificationItem
			if err := json.Unmarshal(val, &n); err != nil {
				return false, fmt.Errorf("decode notification: %w", err)
			}
			if !n.IsDelivered && n.DigestID == nil && n.CreatedAt.Before(olderThan) {
				item := n
				out = append(out, &item)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BadgerDigestRepository implements DigestRepository on BadgerDB.
type BadgerDigestRepository struct {
	db *badger.DB
}

// NewBadgerDigestRepository creates a BadgerDB-backed digest repository.
func NewBadgerDigestRepository(db *badger.DB) *BadgerDigestRepository {
	return &BadgerDigestRepository{db: db}
}

func digestKey(id uuid.UUID) string { return digestKeyPrefix + id.String() }

func digestOwnerKey(ownerID, id uuid.UUID) string {
	return digestOwnerKeyPrefix + ownerID.String() + ":" + id.String()
}

func (r *BadgerDigestRepository) Create(_ context.Context, d *models.Digest) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, digestKey(d.ID), d); err != nil {
			return err
		}
		return txn.Set([]byte(digestOwnerKey(d.OwnerID, d.ID)), []byte(d.ID.String()))
	})
}

func (r *BadgerDigestRepository) Update(_ context.Context, d *models.Digest) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := getJSON[models.Digest](txn, digestKey(d.ID)); err != nil {
			return err
		}
		return setJSON(txn, digestKey(d.ID), d)
	})
}

func (r *BadgerDigestRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		d, err := getJSON[models.Digest](txn, digestKey(id))
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(digestKey(id))); err != nil {
			return fmt.Errorf("delete digest: %w", err)
		}
		if err := txn.Delete([]byte(digestOwnerKey(d.OwnerID, id))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete owner index: %w", err)
		}
		return nil
	})
}

func (r *BadgerDigestRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Digest, error) {
	var d *models.Digest
	err := r.db.View(func(txn *badger.Txn) error {
		var innerErr error
		d, innerErr = getJSON[models.Digest](txn, digestKey(id))
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *BadgerDigestRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*models.Digest, error) {
	var out []*models.Digest

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, digestOwnerKeyPrefix+ownerID.String()+":", func(val []byte) (bool, error) {
			d, err := getJSON[models.Digest](txn, digestKeyPrefix+string(val))
			if errors.Is(err, ErrNotFound) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			out = append(out, d)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPending scans the digest prefix. Pending digests number at most a
// handful per active owner, so a full prefix scan stays cheap.
func (r *BadgerDigestRepository) ListPending(_ context.Context) ([]*models.Digest, error) {
	var out []*models.Digest

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, digestKeyPrefix, func(val []byte) (bool, error) {
			var d models.Digest
			if err := json.Unmarshal(val, &d); err != nil {
				return false, fmt.Errorf("decode digest: %w", err)
			}
			if d.Status == models.DigestPending {
				out = append(out, &d)
			}
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// BadgerRuleRepository implements RuleRepository on BadgerDB.
type BadgerRuleRepository struct {
	db *badger.DB
}

// NewBadgerRuleRepository creates a BadgerDB-backed rule repository.
func NewBadgerRuleRepository(db *badger.DB) *BadgerRuleRepository {
	return &BadgerRuleRepository{db: db}
}

func ruleKey(id uuid.UUID) string { return ruleKeyPrefix + id.String() }

func ruleOwnerKey(ownerID, id uuid.UUID) string {
	return ruleOwnerKeyPrefix + ownerID.String() + ":" + id.String()
}

func (r *BadgerRuleRepository) Create(_ context.Context, rule *models.Rule) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, ruleKey(rule.ID), rule); err != nil {
			return err
		}
		return txn.Set([]byte(ruleOwnerKey(rule.OwnerID, rule.ID)), []byte(rule.ID.String()))
	})
}

func (r *BadgerRuleRepository) Update(_ context.Context, rule *models.Rule) error {
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := getJSON[models.Rule](txn, ruleKey(rule.ID)); err != nil {
			return err
		}
		return setJSON(txn, ruleKey(rule.ID), rule)
	})
}

func (r *BadgerRuleRepository) Delete(_ context.Context, id uuid.UUID) error {
	return r.db.Update(func(txn *badger.Txn) error {
		rule, err := getJSON[models.Rule](txn, ruleKey(id))
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(ruleKey(id))); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		if err := txn.Delete([]byte(ruleOwnerKey(rule.OwnerID, id))); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete owner index: %w", err)
		}
		return nil
	})
}

func (r *BadgerRuleRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Rule, error) {
	var rule *models.Rule
	err := r.db.View(func(txn *badger.Txn) error {
		var innerErr error
		rule, innerErr = getJSON[models.Rule](txn, ruleKey(id))
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *BadgerRuleRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Rule, error) {
	var out []*models.Rule

	err := r.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, ruleOwnerKeyPrefix+ownerID.String()+":", func(val []byte) (bool, error) {
			rule, err := getJSON[models.Rule](txn, ruleKeyPrefix+string(val))
			if errors.Is(err, ErrNotFound) {
				return true, nil
			}
			if err != nil {
				return false, err
			}
			out = append(out, rule)
			return true, nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
