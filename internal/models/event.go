// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of content-lifecycle occurrence that can
// trigger notifications.
type EventType string

const (
	EventWorkUpdated      EventType = "work_updated"
	EventWorkCompleted    EventType = "work_completed"
	EventSeriesUpdated    EventType = "series_updated"
	EventNewWork          EventType = "new_work"
	EventCommentReceived  EventType = "comment_received"
	EventCommentReplied   EventType = "comment_replied"
	EventKudosReceived    EventType = "kudos_received"
	EventBookmarkAdded    EventType = "bookmark_added"
	EventGiftReceived     EventType = "gift_received"
	EventCollectionInvite EventType = "collection_invite"
	EventSystemAlert      EventType = "system_alert"
	EventAccountSecurity  EventType = "account_security"
	EventPasswordReset    EventType = "password_reset"
)

// IsSecurityClass reports whether the event type carries account-security
// semantics. Security-class notifications must never be silently dropped,
// regardless of quiet hours or rate limits.
func (t EventType) IsSecurityClass() bool {
	return t == EventAccountSecurity || t == EventPasswordReset
}

// Event is an immutable record describing something that happened to a piece
// of content. Events are constructed once per occurrence by their producers
// and are not persisted by the notification pipeline itself.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	SourceID    uuid.UUID `json:"source_id"`
	SourceType  string    `json:"source_type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ActionURL   string    `json:"action_url"`

	// ActorID is nil for system-originated events.
	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	ActorName string         `json:"actor_name"`
	Extra     map[string]any `json:"extra,omitempty"`

	// RecipientIDs addresses owners directly, bypassing subscription
	// matching. Used by system, security, and invite events. Direct
	// recipients still go through preferences, the smart filter, and rules.
	RecipientIDs []uuid.UUID `json:"recipient_ids,omitempty"`

	// Content metadata used by subscription matching and content filters.
	// TagIDs drive tag-subscription matching; Tags (canonical names) drive
	// content filter overlap checks.
	AuthorIDs   []uuid.UUID `json:"author_ids,omitempty"`
	SeriesIDs   []uuid.UUID `json:"series_ids,omitempty"`
	TagIDs      []uuid.UUID `json:"tag_ids,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Rating      string      `json:"rating,omitempty"`
	WordCount   int         `json:"word_count,omitempty"`
	IsCompleted bool        `json:"is_completed,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an event with a unique ID and UTC timestamp.
func NewEvent(eventType EventType, sourceID uuid.UUID, sourceType string) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		SourceID:   sourceID,
		SourceType: sourceType,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate checks required fields and returns an error if validation fails.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.SourceID == uuid.Nil {
		return fmt.Errorf("event source_id is required")
	}
	if e.SourceType == "" {
		return fmt.Errorf("event source_type is required")
	}
	if e.WordCount < 0 {
		return fmt.Errorf("event word_count must be non-negative, got %d", e.WordCount)
	}
	return nil
}
