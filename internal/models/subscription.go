// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionType identifies what kind of target a subscription tracks.
type SubscriptionType string

const (
	SubscriptionWork   SubscriptionType = "work"
	SubscriptionAuthor SubscriptionType = "author"
	SubscriptionSeries SubscriptionType = "series"
	SubscriptionTag    SubscriptionType = "tag"
)

// Frequency controls when a created notification is delivered.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyBatched   Frequency = "batched"
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyNever     Frequency = "never"
)

// IsBatched reports whether the frequency routes notifications through the
// digest batch processor rather than immediate dispatch.
func (f Frequency) IsBatched() bool {
	return f == FrequencyBatched || f == FrequencyDaily || f == FrequencyWeekly
}

// ContentFilters narrows which events a subscription matches. A nil/empty
// field means "no constraint"; pointer fields make the absent case explicit.
type ContentFilters struct {
	// Completed, if set, must equal the event's completion flag exactly.
	Completed *bool `json:"completed,omitempty"`

	// Rating, if non-empty, requires the event's rating (when present) to
	// be a member.
	Rating []string `json:"rating,omitempty"`

	// Tags, if non-empty, requires at least one case-insensitive overlap
	// with the event's tags.
	Tags []string `json:"tags,omitempty"`

	// MinWords/MaxWords bound the event's word count inclusively.
	MinWords *int `json:"min_words,omitempty"`
	MaxWords *int `json:"max_words,omitempty"`
}

// Matches evaluates the filters against an event. Absent fields pass.
func (f *ContentFilters) Matches(event *Event) bool {
	if f == nil {
		return true
	}

	if f.Completed != nil && *f.Completed != event.IsCompleted {
		return false
	}

	if len(f.Rating) > 0 && event.Rating != "" {
		allowed := false
		for _, r := range f.Rating {
			if strings.EqualFold(r, event.Rating) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(f.Tags) > 0 {
		if !hasTagOverlap(f.Tags, event.Tags) {
			return false
		}
	}

	if f.MinWords != nil && event.WordCount < *f.MinWords {
		return false
	}
	if f.MaxWords != nil && event.WordCount > *f.MaxWords {
		return false
	}

	return true
}

// hasTagOverlap reports whether any wanted tag appears in the event tags,
// case-insensitively.
func hasTagOverlap(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

// Subscription is an owner's standing interest in a target (work, author,
// series, or tag) plus an event allowlist and content filters. Subscriptions
// are soft-disabled via IsActive, never silently deleted while referenced.
type Subscription struct {
	ID         uuid.UUID        `json:"id"`
	OwnerID    uuid.UUID        `json:"owner_id"`
	Type       SubscriptionType `json:"type" validate:"required,oneof=work author series tag"`
	TargetID   uuid.UUID        `json:"target_id" validate:"required"`
	TargetName string           `json:"target_name,omitempty"`
	Events     []EventType      `json:"events" validate:"required,min=1"`
	Frequency  Frequency        `json:"frequency,omitempty"`
	IsActive   bool             `json:"is_active"`
	Filters    ContentFilters   `json:"filters"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// WantsEvent reports whether the subscription's event allowlist contains the
// given event type.
func (s *Subscription) WantsEvent(eventType EventType) bool {
	for _, e := range s.Events {
		if e == eventType {
			return true
		}
	}
	return false
}
