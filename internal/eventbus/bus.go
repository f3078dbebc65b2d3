// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package eventbus carries content-lifecycle events from producers to the
// notification pipeline. In-process producers (the process-event endpoint,
// test tooling) publish on a Watermill gochannel bus; an optional NATS
// JetStream subscriber feeds the same consumer for cross-service ingestion.
package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
)

// TopicEvents is the topic all lifecycle events flow through.
const TopicEvents = "herald.events"

// Bus is the in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. Subscribers registered after a publish
// do not see earlier messages; the consumer must be running before
// producers start.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			NewLoggerAdapter(),
		),
	}
}

// Publish validates and enqueues an event for the pipeline.
func (b *Bus) Publish(_ context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	msg, err := Encode(event)
	if err != nil {
		return err
	}
	if err := b.pubsub.Publish(TopicEvents, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}
	metrics.BusEventsPublished.Inc()
	return nil
}

// Subscribe returns the message stream for the events topic. Implements
// message.Subscriber for the consumer.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down; in-flight messages are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
