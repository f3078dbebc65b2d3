// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications for rate limiting and digest rendering.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank maps a priority to a sortable weight (higher wins).
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// DeliveryChannel identifies an outbound delivery mechanism.
type DeliveryChannel string

const (
	ChannelEmail   DeliveryChannel = "email"
	ChannelInApp   DeliveryChannel = "in_app"
	ChannelWebhook DeliveryChannel = "webhook"
)

// NotificationItem is a single created notification for one owner. It is
// created once per (event, matching subscription) pair and mutated in place
// for read/delivered state, never regenerated for the same cause.
//
// Invariant: IsDelivered and DeliveredAt are set together with the delivery
// attempt outcome, never partially.
type NotificationItem struct {
	ID       uuid.UUID `json:"id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Event    EventType `json:"event"`
	Priority Priority  `json:"priority"`

	SourceID    uuid.UUID `json:"source_id"`
	SourceType  string    `json:"source_type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ActionURL   string    `json:"action_url"`

	ActorID   *uuid.UUID     `json:"actor_id,omitempty"`
	ActorName string         `json:"actor_name,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`

	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	IsDelivered bool       `json:"is_delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	DigestID    *uuid.UUID `json:"digest_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// MarkDelivered records a successful delivery. The flag and timestamp are
// always written together.
func (n *NotificationItem) MarkDelivered(at time.Time) {
	n.IsDelivered = true
	n.DeliveredAt = &at
}

// MarkRead records that the owner has seen the notification.
func (n *NotificationItem) MarkRead(at time.Time) {
	n.IsRead = true
	n.ReadAt = &at
}

// Clone returns a shallow copy with its own Extra map, so rule and filter
// modifications never mutate the original draft.
func (n *NotificationItem) Clone() *NotificationItem {
	clone := *n
	if n.Extra != nil {
		clone.Extra = make(map[string]any, len(n.Extra))
		for k, v := range n.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// DigestStatus tracks a digest through its lifecycle.
type DigestStatus string

const (
	DigestPending DigestStatus = "pending"
	DigestSent    DigestStatus = "sent"
	DigestFailed  DigestStatus = "failed"
)

// Digest groups notifications for one owner over one batching window and is
// delivered as a single message at window close.
type Digest struct {
	ID          uuid.UUID          `json:"id"`
	OwnerID     uuid.UUID          `json:"owner_id"`
	Type        Frequency          `json:"type"`
	Status      DigestStatus       `json:"status"`
	Items       []NotificationItem `json:"items"`
	WindowStart time.Time          `json:"window_start"`
	WindowEnd   time.Time          `json:"window_end"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
