// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package notify implements the event processing pipeline: subscription
// matching, content filtering, preference resolution, smart filtering, rule
// evaluation, persistence, and delivery dispatch.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// targetRef names one subscription target an event can resolve to.
type targetRef struct {
	Type models.SubscriptionType
	ID   uuid.UUID
}

// resolver extracts subscription targets of one kind from an event.
type resolver func(event *models.Event) []targetRef

func workTargets(event *models.Event) []targetRef {
	if event.SourceType != "work" || event.SourceID == uuid.Nil {
		return nil
	}
	return []targetRef{{Type: models.SubscriptionWork, ID: event.SourceID}}
}

func authorTargets(event *models.Event) []targetRef {
	refs := make([]targetRef, 0, len(event.AuthorIDs))
	for _, id := range event.AuthorIDs {
		refs = append(refs, targetRef{Type: models.SubscriptionAuthor, ID: id})
	}
	return refs
}

func seriesTargets(event *models.Event) []targetRef {
	refs := make([]targetRef, 0, len(event.SeriesIDs))
	for _, id := range event.SeriesIDs {
		refs = append(refs, targetRef{Type: models.SubscriptionSeries, ID: id})
	}
	return refs
}

func tagTargets(event *models.Event) []targetRef {
	refs := make([]targetRef, 0, len(event.TagIDs))
	for _, id := range event.TagIDs {
		refs = append(refs, targetRef{Type: models.SubscriptionTag, ID: id})
	}
	return refs
}

// resolutionTable maps each subscribable event type to the target kinds it
// resolves to. Event types absent from the table match no subscriptions;
// direct-recipient events (system, security) are routed via RecipientIDs by
// the service instead.
var resolutionTable = map[models.EventType][]resolver{
	models.EventWorkUpdated:     {workTargets, authorTargets, seriesTargets, tagTargets},
	models.EventWorkCompleted:   {workTargets, authorTargets, seriesTargets, tagTargets},
	models.EventNewWork:         {authorTargets, seriesTargets, tagTargets},
	models.EventSeriesUpdated:   {seriesTargets, authorTargets},
	// Comment events resolve to the work only: an author subscription means
	// "tell me what this author publishes", not "tell me about every comment
	// thread on their works".
	models.EventCommentReceived: {workTargets},
	models.EventCommentReplied:  {workTargets},
	models.EventKudosReceived:   {workTargets, authorTargets},
	models.EventBookmarkAdded:   {workTargets, authorTargets},
	models.EventGiftReceived:    {workTargets, authorTargets},
}

// Matcher resolves an event to the subscriptions it can notify.
type Matcher struct {
	subs store.SubscriptionRepository
}

// NewMatcher creates a matcher over a subscription repository.
func NewMatcher(subs store.SubscriptionRepository) *Matcher {
	return &Matcher{subs: subs}
}

// Match returns all active subscriptions whose target the event resolves to
// and whose event allowlist contains the event type. Content filters are NOT
// applied here; that is the next pipeline stage. Unknown event types match
// nothing.
func (m *Matcher) Match(ctx context.Context, event *models.Event) ([]*models.Subscription, error) {
	resolvers, ok := resolutionTable[event.Type]
	if !ok {
		return nil, nil
	}

	seen := make(map[uuid.UUID]bool)
	var matched []*models.Subscription

	for _, resolve := range resolvers {
		for _, ref := range resolve(event) {
			subs, err := m.subs.FindByTarget(ctx, ref.Type, ref.ID)
			if err != nil {
				return nil, fmt.Errorf("find subscriptions for %s %s: %w", ref.Type, ref.ID, err)
			}
			for _, sub := range subs {
				if seen[sub.ID] {
					continue
				}
				seen[sub.ID] = true

				if !sub.IsActive || !sub.WantsEvent(event.Type) {
					continue
				}
				matched = append(matched, sub)
			}
		}
	}

	return matched, nil
}
