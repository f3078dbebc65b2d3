// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package notify

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
	"github.com/herald-notify/herald/internal/store"
)

// RuleEngine evaluates owner-authored rules against a draft notification.
// First match wins, in rule creation order. The engine fails open: if rules
// cannot be loaded the draft is allowed unchanged, since losing user rules
// must degrade to default behavior rather than dropping notifications.
type RuleEngine struct {
	rules store.RuleRepository
}

// NewRuleEngine creates a rule engine over a rule repository.
func NewRuleEngine(rules store.RuleRepository) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// Evaluate runs the owner's active rules in creation order and returns the
// first matching rule's outcome. No match means allow.
func (e *RuleEngine) Evaluate(ctx context.Context, ownerID uuid.UUID, event *models.Event, draft *models.NotificationItem) models.RuleOutcome {
	rules, err := e.rules.ListByOwner(ctx, ownerID)
	if err != nil {
		logging.Warn().Err(err).Str("owner_id", ownerID.String()).
			Msg("rule load failed, allowing notification unmodified")
		return models.RuleOutcome{Action: models.RuleAllow}
	}

	for _, rule := range rules {
		if !rule.IsActive || !ruleMatches(rule, event) {
			continue
		}
		switch rule.Action {
		case models.RuleBlock:
			return models.RuleOutcome{Action: models.RuleBlock, MatchedRule: rule}
		case models.RuleModify:
			return models.RuleOutcome{
				Action:      models.RuleModify,
				Modified:    applyModifications(rule, draft),
				MatchedRule: rule,
			}
		default:
			return models.RuleOutcome{Action: models.RuleAllow, MatchedRule: rule}
		}
	}

	return models.RuleOutcome{Action: models.RuleAllow}
}

// ruleMatches checks every configured condition; all must hold. A rule with
// no conditions matches everything.
func ruleMatches(rule *models.Rule, event *models.Event) bool {
	if len(rule.Events) > 0 && !containsEventType(rule.Events, event.Type) {
		return false
	}
	if len(rule.SourceTypes) > 0 && !containsFold(rule.SourceTypes, event.SourceType) {
		return false
	}
	if len(rule.ActorIDs) > 0 {
		if event.ActorID == nil || !containsUUID(rule.ActorIDs, *event.ActorID) {
			return false
		}
	}
	if len(rule.Tags) > 0 && !anyTagFold(rule.Tags, event.Tags) {
		return false
	}
	if rule.MinWords != nil && event.WordCount < *rule.MinWords {
		return false
	}
	if rule.MaxWords != nil && event.WordCount > *rule.MaxWords {
		return false
	}
	return true
}

// applyModifications returns a modified clone of the draft. The original is
// never mutated.
func applyModifications(rule *models.Rule, draft *models.NotificationItem) *models.NotificationItem {
	modified := draft.Clone()
	if rule.SetPriority != nil {
		modified.Priority = *rule.SetPriority
	}
	if rule.PrefixTitle != "" {
		modified.Title = rule.PrefixTitle + modified.Title
	}
	return modified
}

func containsEventType(list []models.EventType, want models.EventType) bool {
	for _, t := range list {
		if t == want {
			return true
		}
	}
	return false
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}

func containsUUID(list []uuid.UUID, want uuid.UUID) bool {
	for _, id := range list {
		if id == want {
			return true
		}
	}
	return false
}

func anyTagFold(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}
