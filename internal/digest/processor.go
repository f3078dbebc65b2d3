// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package digest batches low-urgency notifications into per-owner digests and
// delivers each digest as one message when its window closes.
package digest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/notify"
	"github.com/herald-notify/herald/internal/store"
)

// openKey identifies one owner's open digest for one batching frequency.
type openKey struct {
	ownerID   uuid.UUID
	frequency models.Frequency
}

// Processor collects batched notifications into open digests and closes them
// when their window elapses or they hit the item cap. Open digests are
// persisted as pending on creation, so a restart can restore them.
type Processor struct {
	stores *store.Stores
	sender notify.Sender

	batchedWindow time.Duration
	itemCap       int

	mu   sync.Mutex
	open map[openKey]*models.Digest
	now  func() time.Time
}

// NewProcessor creates a digest processor over the given stores and sender.
func NewProcessor(stores *store.Stores, sender notify.Sender, cfg config.DigestConfig) *Processor {
	batchedWindow := cfg.BatchedWindow
	if batchedWindow <= 0 {
		batchedWindow = time.Hour
	}
	itemCap := cfg.MaxItems
	if itemCap <= 0 {
		itemCap = 100
	}
	return &Processor{
		stores:        stores,
		sender:        sender,
		batchedWindow: batchedWindow,
		itemCap:       itemCap,
		open:          make(map[openKey]*models.Digest),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// windowLength maps a batching frequency to its digest window.
func (p *Processor) windowLength(freq models.Frequency) time.Duration {
	switch freq {
	case models.FrequencyWeekly:
		return 7 * 24 * time.Hour
	case models.FrequencyBatched:
		return p.batchedWindow
	default:
		return 24 * time.Hour
	}
}

// Add appends a persisted notification to the owner's open digest for the
// given frequency, opening one when none exists. Hitting the item cap closes
// and sends the digest immediately. Implements notify.Batcher.
func (p *Processor) Add(ctx context.Context, n *models.NotificationItem, frequency models.Frequency) error {
	p.mu.Lock()

	key := openKey{ownerID: n.OwnerID, frequency: frequency}
	d, ok := p.open[key]
	if !ok {
		var err error
		d, err = p.openDigest(ctx, key)
		if err != nil {
			p.mu.Unlock()
			return err
		}
	}

	n.DigestID = &d.ID
	if err := p.stores.Notifications.Update(ctx, n); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("link notification to digest: %w", err)
	}

	d.Items = append(d.Items, *n)
	if err := p.stores.Digests.Update(ctx, d); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("update digest: %w", err)
	}

	var full *models.Digest
	if len(d.Items) >= p.itemCap {
		delete(p.open, key)
		full = d
	}
	p.mu.Unlock()

	if full != nil {
		logging.Info().
			Str("digest_id", full.ID.String()).
			Int("items", len(full.Items)).
			Msg("digest hit item cap, closing early")
		p.closeAndSend(ctx, full)
	}
	return nil
}

// openDigest creates and persists a new pending digest. Caller holds the lock.
func (p *Processor) openDigest(ctx context.Context, key openKey) (*models.Digest, error) {
	now := p.now()
	d := &models.Digest{
		ID:          uuid.New(),
		OwnerID:     key.ownerID,
		Type:        key.frequency,
		Status:      models.DigestPending,
		WindowStart: now,
		WindowEnd:   now.Add(p.windowLength(key.frequency)),
		CreatedAt:   now,
	}
	if err := p.stores.Digests.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create digest: %w", err)
	}
	p.open[key] = d
	metrics.DigestsOpen.Inc()
	return d, nil
}

// CloseElapsed closes and sends every open digest whose window has ended.
// Sends run concurrently, capped by maxConcurrent.
func (p *Processor) CloseElapsed(ctx context.Context, maxConcurrent int) {
	now := p.now()

	p.mu.Lock()
	var due []*models.Digest
	for key, d := range p.open {
		if !d.WindowEnd.After(now) {
			due = append(due, d)
			delete(p.open, key)
		}
	}
	p.mu.Unlock()

	if len(due) == 0 {
		return
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	for _, d := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(d *models.Digest) {
			defer wg.Done()
			defer func() { <-sem }()
			p.closeAndSend(ctx, d)
		}(d)
	}
	wg.Wait()
}

// Restore reloads pending digests from the store into the open set, for
// process restarts. When two pending digests exist for the same key the
// oldest stays open and the rest are closed and sent right away.
func (p *Processor) Restore(ctx context.Context) error {
	pending, err := p.stores.Digests.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("list pending digests: %w", err)
	}

	var extra []*models.Digest
	p.mu.Lock()
	for _, d := range pending {
		key := openKey{ownerID: d.OwnerID, frequency: d.Type}
		if _, ok := p.open[key]; ok {
			extra = append(extra, d)
			continue
		}
		p.open[key] = d
		metrics.DigestsOpen.Inc()
	}
	p.mu.Unlock()

	for _, d := range extra {
		p.closeAndSend(ctx, d)
	}

	logging.Info().Int("restored", len(pending)-len(extra)).Msg("pending digests restored")
	return nil
}

// OpenCount returns the number of currently open digests.
func (p *Processor) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.open)
}

// closeAndSend finalizes one digest. Empty digests are discarded; non-empty
// ones are rendered, sent as a single message, and their items marked
// delivered only after the send succeeded.
func (p *Processor) closeAndSend(ctx context.Context, d *models.Digest) {
	defer metrics.DigestsOpen.Dec()

	if len(d.Items) == 0 {
		if err := p.stores.Digests.Delete(ctx, d.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			logging.Warn().Err(err).Str("digest_id", d.ID.String()).Msg("empty digest delete failed")
		}
		metrics.RecordDigestClosed("discarded_empty", 0)
		return
	}

	msg, err := p.buildMessage(ctx, d)
	if err != nil {
		logging.Error().Err(err).Str("digest_id", d.ID.String()).Msg("digest message build failed")
		p.markFailed(ctx, d)
		return
	}

	if err := p.sender.Send(ctx, msg); err != nil {
		logging.Error().Err(err).
			Str("digest_id", d.ID.String()).
			Str("owner_id", d.OwnerID.String()).
			Msg("digest delivery failed")
		p.markFailed(ctx, d)
		return
	}

	now := p.now()
	d.Status = models.DigestSent
	d.SentAt = &now
	if err := p.stores.Digests.Update(ctx, d); err != nil {
		logging.Error().Err(err).Str("digest_id", d.ID.String()).Msg("digest status persist failed")
	}

	for i := range d.Items {
		item := d.Items[i]
		item.MarkDelivered(now)
		if err := p.stores.Notifications.Update(ctx, &item); err != nil {
			logging.Warn().Err(err).
				Str("notification_id", item.ID.String()).
				Msg("digest item delivered flag persist failed")
		}
	}

	metrics.RecordDigestClosed("sent", len(d.Items))
	logging.Info().
		Str("digest_id", d.ID.String()).
		Str("owner_id", d.OwnerID.String()).
		Int("items", len(d.Items)).
		Msg("digest sent")
}

func (p *Processor) markFailed(ctx context.Context, d *models.Digest) {
	d.Status = models.DigestFailed
	if err := p.stores.Digests.Update(ctx, d); err != nil {
		logging.Error().Err(err).Str("digest_id", d.ID.String()).Msg("digest failure persist failed")
	}
	metrics.RecordDigestClosed("failed", len(d.Items))
}

// buildMessage renders the digest and addresses it. Email is used when the
// owner has one configured; in-app is always included.
func (p *Processor) buildMessage(ctx context.Context, d *models.Digest) (*models.Message, error) {
	var email string
	prefs, err := p.stores.Preferences.Get(ctx, d.OwnerID)
	switch {
	case err == nil:
		email = prefs.Email
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("load contact preferences: %w", err)
	}

	channels := []models.DeliveryChannel{models.ChannelInApp}
	if email != "" {
		channels = append(channels, models.ChannelEmail)
	}

	subject, text, html := render(d)

	digestID := d.ID
	return &models.Message{
		ID:       uuid.New(),
		Type:     models.MessageDigest,
		Priority: models.PriorityMedium,
		Recipient: models.Recipient{
			OwnerID:  d.OwnerID,
			Email:    email,
			Channels: channels,
		},
		Content: models.MessageContent{
			Subject:  subject,
			Body:     text,
			HTMLBody: html,
		},
		Status:    models.MessageQueued,
		DigestID:  &digestID,
		CreatedAt: p.now(),
	}, nil
}
