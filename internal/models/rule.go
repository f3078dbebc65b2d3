// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleActionType is what a matched rule does to the draft notification.
type RuleActionType string

const (
	RuleAllow  RuleActionType = "allow"
	RuleBlock  RuleActionType = "block"
	RuleModify RuleActionType = "modify"
)

// Rule is an owner-authored post-filter. Rules are evaluated in CreatedAt
// order and the first active rule whose conditions all match decides the
// outcome. A rule with no conditions matches everything.
type Rule struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Name    string    `json:"name" validate:"required,max=128"`

	// Conditions. Empty slices and nil pointers are "no constraint".
	Events      []EventType `json:"events,omitempty"`
	SourceTypes []string    `json:"source_types,omitempty"`
	ActorIDs    []uuid.UUID `json:"actor_ids,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	MinWords    *int        `json:"min_words,omitempty"`
	MaxWords    *int        `json:"max_words,omitempty"`

	Action RuleActionType `json:"action" validate:"required,oneof=allow block modify"`

	// SetPriority, when the action is modify, overrides the draft priority.
	SetPriority *Priority `json:"set_priority,omitempty"`
	// PrefixTitle, when the action is modify, is prepended to the title.
	PrefixTitle string `json:"prefix_title,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleOutcome is the rule engine's decision for one draft notification.
type RuleOutcome struct {
	Action RuleActionType
	// Modified is the replacement draft when Action is RuleModify.
	Modified *NotificationItem
	// MatchedRule is the rule that decided, nil when no rule matched.
	MatchedRule *Rule
}
