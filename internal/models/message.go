// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies outbound messages for channel formatting.
type MessageType string

const (
	MessageNotification MessageType = "notification"
	MessageDigest       MessageType = "digest"
	MessageSecurity     MessageType = "security"
	MessageSystem       MessageType = "system"
)

// MessageTypeForEvent maps an event type to the outbound message class.
func MessageTypeForEvent(eventType EventType) MessageType {
	switch {
	case eventType.IsSecurityClass():
		return MessageSecurity
	case eventType == EventSystemAlert:
		return MessageSystem
	default:
		return MessageNotification
	}
}

// MessageStatus tracks an outbound message through delivery.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageScheduled MessageStatus = "scheduled"
	MessageSent      MessageStatus = "sent"
	MessageFailed    MessageStatus = "failed"
)

// Recipient addresses one delivery target across channels.
type Recipient struct {
	OwnerID    uuid.UUID         `json:"owner_id"`
	Email      string            `json:"email,omitempty"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Channels   []DeliveryChannel `json:"channels"`
}

// MessageContent is the channel-agnostic payload. Channels pick the body
// variant they can render; HTMLBody may be empty.
type MessageContent struct {
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	HTMLBody  string         `json:"html_body,omitempty"`
	ActionURL string         `json:"action_url,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Message is one outbound delivery unit, fanned out to each of the
// recipient's channels by the delivery manager.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Type      MessageType    `json:"type"`
	Priority  Priority       `json:"priority"`
	Recipient Recipient      `json:"recipient"`
	Content   MessageContent `json:"content"`
	Status    MessageStatus  `json:"status"`

	// NotificationID links back to the persisted item, nil for digests.
	NotificationID *uuid.UUID `json:"notification_id,omitempty"`
	// DigestID links back to the digest, nil for single notifications.
	DigestID *uuid.UUID `json:"digest_id,omitempty"`

	// ScheduledFor delays dispatch until the given time when set.
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}
