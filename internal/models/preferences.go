// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package models

import (
	"time"

	"github.com/google/uuid"
)

// EventPreference controls how one event type is handled for one owner.
type EventPreference struct {
	Enabled   bool              `json:"enabled"`
	Priority  Priority          `json:"priority"`
	Frequency Frequency         `json:"frequency"`
	Channels  []DeliveryChannel `json:"channels"`
}

// Preferences holds an owner's notification settings. Missing owners are
// served DefaultPreferences; a missing event entry means the owner has never
// configured that type and it is treated as disabled by the resolution stage.
type Preferences struct {
	OwnerID          uuid.UUID                     `json:"owner_id"`
	EventPreferences map[EventType]EventPreference `json:"event_preferences"`

	// Contact endpoints used by the delivery channels.
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	WebhookURL string `json:"webhook_url,omitempty" validate:"omitempty,url"`

	// QuietHoursStart/End are minutes of day in the owner's timezone. Both
	// nil means quiet hours are off. Start > End denotes an overnight window.
	QuietHoursStart *int   `json:"quiet_hours_start,omitempty" validate:"omitempty,min=0,max=1439"`
	QuietHoursEnd   *int   `json:"quiet_hours_end,omitempty" validate:"omitempty,min=0,max=1439"`
	Timezone        string `json:"timezone"`

	EnableBatching          bool          `json:"enable_batching"`
	BatchFrequency          Frequency     `json:"batch_frequency"`
	MaxNotificationsPerHour int           `json:"max_notifications_per_hour" validate:"min=0"`
	DedupWindow             time.Duration `json:"dedup_window"`

	UpdatedAt time.Time `json:"updated_at"`
}

// QuietHoursConfigured reports whether both window bounds are set.
func (p *Preferences) QuietHoursConfigured() bool {
	return p.QuietHoursStart != nil && p.QuietHoursEnd != nil
}

// EventPreferenceFor returns the preference entry for an event type and
// whether one exists.
func (p *Preferences) EventPreferenceFor(eventType EventType) (EventPreference, bool) {
	pref, ok := p.EventPreferences[eventType]
	return pref, ok
}

// DefaultPreferences returns the settings applied to owners who have never
// saved preferences. Digest-friendly events default to daily batching, social
// and security events to immediate delivery.
func DefaultPreferences(ownerID uuid.UUID) *Preferences {
	return &Preferences{
		OwnerID: ownerID,
		EventPreferences: map[EventType]EventPreference{
			EventWorkUpdated: {
				Enabled:   true,
				Priority:  PriorityMedium,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventWorkCompleted: {
				Enabled:   true,
				Priority:  PriorityMedium,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventSeriesUpdated: {
				Enabled:   true,
				Priority:  PriorityMedium,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventNewWork: {
				Enabled:   true,
				Priority:  PriorityMedium,
				Frequency: FrequencyDaily,
				Channels:  []DeliveryChannel{ChannelInApp},
			},
			EventCommentReceived: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventCommentReplied: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventKudosReceived: {
				Enabled:   true,
				Priority:  PriorityLow,
				Frequency: FrequencyDaily,
				Channels:  []DeliveryChannel{ChannelInApp},
			},
			EventBookmarkAdded: {
				Enabled:   true,
				Priority:  PriorityLow,
				Frequency: FrequencyDaily,
				Channels:  []DeliveryChannel{ChannelInApp},
			},
			EventGiftReceived: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventCollectionInvite: {
				Enabled:   true,
				Priority:  PriorityMedium,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelInApp},
			},
			EventSystemAlert: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventAccountSecurity: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail, ChannelInApp},
			},
			EventPasswordReset: {
				Enabled:   true,
				Priority:  PriorityHigh,
				Frequency: FrequencyImmediate,
				Channels:  []DeliveryChannel{ChannelEmail},
			},
		},
		Timezone:                "UTC",
		EnableBatching:          true,
		BatchFrequency:          FrequencyDaily,
		MaxNotificationsPerHour: 10,
		DedupWindow:             time.Hour,
		UpdatedAt:               time.Now().UTC(),
	}
}
