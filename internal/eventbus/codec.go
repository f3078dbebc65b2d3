// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/herald-notify/herald/internal/models"
)

// Metadata keys carried on bus messages for routing and observability.
const (
	MetadataEventType  = "event_type"
	MetadataSourceType = "source_type"
)

// Encode serializes an event into a Watermill message. The event ID doubles
// as the message UUID so brokers with message-ID deduplication drop replays.
func Encode(event *models.Event) (*message.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID.String(), data)
	msg.Metadata.Set(MetadataEventType, string(event.Type))
	msg.Metadata.Set(MetadataSourceType, event.SourceType)
	return msg, nil
}

// Decode deserializes a bus message back into an event.
func Decode(msg *message.Message) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event %s: %w", msg.UUID, err)
	}
	return &event, nil
}
