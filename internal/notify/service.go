// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// Enqueuer accepts a persisted notification for immediate delivery. The
// Dispatcher in this package is the production implementation.
type Enqueuer interface {
	Enqueue(n *models.NotificationItem, channels []models.DeliveryChannel) error
}

// Batcher routes a persisted notification into the owner's open digest for
// the given batching frequency.
type Batcher interface {
	Add(ctx context.Context, n *models.NotificationItem, frequency models.Frequency) error
}

// Service runs the full event processing pipeline: match, content filter,
// preference resolution, smart filter, rules, persistence, and the
// immediate-versus-digest delivery branch.
type Service struct {
	stores     *store.Stores
	matcher    *Matcher
	filter     *SmartFilter
	rules      *RuleEngine
	dispatcher Enqueuer
	batcher    Batcher
	cfg        config.PipelineConfig
}

// NewService wires the pipeline stages over the given stores and sinks.
func NewService(stores *store.Stores, dispatcher Enqueuer, batcher Batcher, cfg config.PipelineConfig) *Service {
	return &Service{
		stores:     stores,
		matcher:    NewMatcher(stores.Subscriptions),
		filter:     NewSmartFilter(stores.Notifications),
		rules:      NewRuleEngine(stores.Rules),
		dispatcher: dispatcher,
		batcher:    batcher,
		cfg:        cfg,
	}
}

// ownerTarget pairs an owner with the subscription that governs frequency for
// this event. Sub is nil for direct recipients (system and security events).
type ownerTarget struct {
	ownerID uuid.UUID
	sub     *models.Subscription
}

// ProcessEvent runs one event through the pipeline. Per-owner processing is
// isolated: a failure for one owner is logged and counted but never aborts
// fan-out to the rest. The returned error covers only event-level failures
// (validation, matching).
func (s *Service) ProcessEvent(ctx context.Context, event *models.Event) error {
	start := time.Now()

	if err := event.Validate(); err != nil {
		metrics.RecordEvent(string(event.Type), "invalid", 0)
		return fmt.Errorf("invalid event: %w", err)
	}

	matched, err := s.matcher.Match(ctx, event)
	if err != nil {
		metrics.RecordStage("match", "error")
		metrics.RecordEvent(string(event.Type), "error", 0)
		return fmt.Errorf("match event %s: %w", event.ID, err)
	}
	metrics.RecordStage("match", "pass")

	targets := s.collectTargets(event, matched)
	if len(targets) == 0 {
		metrics.RecordEvent(string(event.Type), "no_recipients", time.Since(start))
		return nil
	}

	var failed atomic.Int64
	workers := s.cfg.OwnerWorkers
	if workers <= 0 {
		workers = 4
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, t := range targets {
		wg.Add(1)
		sem <- struct{}{}
		go func(t ownerTarget) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.processOwner(ctx, event, t); err != nil {
				failed.Add(1)
				logging.Error().Err(err).
					Str("event_id", event.ID.String()).
					Str("event_type", string(event.Type)).
					Str("owner_id", t.ownerID.String()).
					Msg("owner notification processing failed")
			}
		}(t)
	}
	wg.Wait()

	result := "ok"
	if failed.Load() > 0 {
		result = "partial_error"
	}
	metrics.RecordEvent(string(event.Type), result, time.Since(start))

	logging.Debug().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Int("targets", len(targets)).
		Int64("failed", failed.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("event processed")
	return nil
}

// collectTargets applies per-subscription content filters, groups passing
// subscriptions by owner (the oldest one governs frequency), and appends the
// event's direct recipients. The event's actor is never notified about their
// own action via subscriptions; direct recipients are exempt because security
// notices must reach the account holder even when they triggered them.
func (s *Service) collectTargets(event *models.Event, matched []*models.Subscription) []ownerTarget {
	byOwner := make(map[uuid.UUID]*models.Subscription)
	for _, sub := range matched {
		if event.ActorID != nil && sub.OwnerID == *event.ActorID {
			continue
		}
		if !sub.Filters.Matches(event) {
			metrics.RecordStage("content_filter", "skip")
			continue
		}
		metrics.RecordStage("content_filter", "pass")

		governing, ok := byOwner[sub.OwnerID]
		if !ok || sub.CreatedAt.Before(governing.CreatedAt) {
			byOwner[sub.OwnerID] = sub
		}
	}

	targets := make([]ownerTarget, 0, len(byOwner)+len(event.RecipientIDs))
	for ownerID, sub := range byOwner {
		targets = append(targets, ownerTarget{ownerID: ownerID, sub: sub})
	}
	for _, id := range event.RecipientIDs {
		if id == uuid.Nil {
			continue
		}
		if _, ok := byOwner[id]; ok {
			continue
		}
		targets = append(targets, ownerTarget{ownerID: id})
	}
	return targets
}

// processOwner runs the per-owner stages: preferences, smart filter, rules,
// persistence, and the delivery branch. The notification is persisted exactly
// once, before delivery, so a delivery failure never loses it.
func (s *Service) processOwner(ctx context.Context, event *models.Event, t ownerTarget) error {
	prefs, err := s.loadPreferences(ctx, t.ownerID)
	if err != nil {
		metrics.RecordStage("preferences", "error")
		return fmt.Errorf("load preferences: %w", err)
	}

	evPref, ok := prefs.EventPreferenceFor(event.Type)
	if !ok || !evPref.Enabled {
		metrics.RecordStage("preferences", "skip")
		return nil
	}
	metrics.RecordStage("preferences", "pass")

	decision := s.filter.Check(ctx, event, t.ownerID, prefs, evPref.Priority)
	if !decision.Allow {
		metrics.RecordStage("smart_filter", "suppressed")
		logging.Debug().
			Str("owner_id", t.ownerID.String()).
			Str("event_type", string(event.Type)).
			Str("reason", decision.Reason).
			Msg("notification suppressed by smart filter")
		return nil
	}
	metrics.RecordStage("smart_filter", "pass")

	draft := buildNotification(event, t.ownerID, evPref.Priority)

	outcome := s.rules.Evaluate(ctx, t.ownerID, event, draft)
	switch outcome.Action {
	case models.RuleBlock:
		metrics.RecordStage("rules", "blocked")
		logging.Debug().
			Str("owner_id", t.ownerID.String()).
			Str("rule", outcome.MatchedRule.Name).
			Msg("notification blocked by rule")
		return nil
	case models.RuleModify:
		draft = outcome.Modified
		metrics.RecordStage("rules", "pass")
	default:
		metrics.RecordStage("rules", "pass")
	}

	freq := resolveFrequency(t.sub, evPref, prefs, decision.DeferToBatch)
	if freq == models.FrequencyNever {
		// The persisted record is the only delivery a "never" item gets.
		// Marked delivered up front so the redelivery sweep never picks it up.
		draft.MarkDelivered(time.Now().UTC())
	}

	if err := s.stores.Notifications.Create(ctx, draft); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}
	metrics.RecordNotificationCreated(string(event.Type), string(freq))

	return s.route(ctx, draft, freq, evPref.Channels, prefs)
}

// route executes the frequency branch for a persisted notification.
func (s *Service) route(ctx context.Context, n *models.NotificationItem, freq models.Frequency, channels []models.DeliveryChannel, prefs *models.Preferences) error {
	switch {
	case freq == models.FrequencyNever:
		// Persisted for in-app listing, never pushed out.
		return nil
	case freq.IsBatched():
		if !prefs.EnableBatching {
			return s.dispatcher.Enqueue(n, channels)
		}
		if err := s.batcher.Add(ctx, n, freq); err != nil {
			return fmt.Errorf("add to digest: %w", err)
		}
		return nil
	default:
		return s.dispatcher.Enqueue(n, channels)
	}
}

// loadPreferences returns the owner's saved preferences, or the defaults when
// none were ever saved.
func (s *Service) loadPreferences(ctx context.Context, ownerID uuid.UUID) (*models.Preferences, error) {
	prefs, err := s.stores.Preferences.Get(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultPreferences(ownerID), nil
	}
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// resolveFrequency picks the delivery frequency for a notification. A
// subscription-level frequency overrides the event preference; a smart filter
// batch deferral redirects an immediate notification into the owner's batch
// frequency digest.
func resolveFrequency(sub *models.Subscription, evPref models.EventPreference, prefs *models.Preferences, deferToBatch bool) models.Frequency {
	freq := evPref.Frequency
	if sub != nil && sub.Frequency != "" {
		freq = sub.Frequency
	}
	if freq == models.FrequencyNever {
		return freq
	}
	if deferToBatch && !freq.IsBatched() {
		bf := prefs.BatchFrequency
		if !bf.IsBatched() {
			bf = models.FrequencyDaily
		}
		return bf
	}
	return freq
}

// buildNotification creates the draft item for one owner from an event.
func buildNotification(event *models.Event, ownerID uuid.UUID, priority models.Priority) *models.NotificationItem {
	n := &models.NotificationItem{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Event:       event.Type,
		Priority:    priority,
		SourceID:    event.SourceID,
		SourceType:  event.SourceType,
		Title:       event.Title,
		Description: event.Description,
		ActionURL:   event.ActionURL,
		ActorID:     event.ActorID,
		ActorName:   event.ActorName,
		CreatedAt:   time.Now().UTC(),
	}
	if len(event.Extra) > 0 {
		n.Extra = make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			n.Extra[k] = v
		}
	}
	return n
}
