// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
)

// Processor handles one decoded event. Satisfied by notify.Service.
type Processor interface {
	ProcessEvent(ctx context.Context, event *models.Event) error
}

// Consumer drains a subscriber and runs each event through the processor.
// Messages are acked on success and nacked on processing failure so durable
// brokers redeliver them. Undecodable messages are acked and counted; they
// would fail on every redelivery.
type Consumer struct {
	subscriber message.Subscriber
	processor  Processor
	topic      string
}

// NewConsumer creates a consumer over the given subscriber.
func NewConsumer(subscriber message.Subscriber, processor Processor, topic string) *Consumer {
	if topic == "" {
		topic = TopicEvents
	}
	return &Consumer{
		subscriber: subscriber,
		processor:  processor,
		topic:      topic,
	}
}

// Serve consumes until the context is canceled or the subscription closes.
// Shaped for a suture supervisor.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, err)
	}
	logging.Info().Str("topic", c.topic).Msg("event consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				logging.Info().Str("topic", c.topic).Msg("event subscription closed")
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *message.Message) {
	event, err := Decode(msg)
	if err != nil {
		metrics.BusParseFailures.Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable bus message")
		msg.Ack()
		return
	}

	if err := c.processor.ProcessEvent(ctx, event); err != nil {
		logging.Error().Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", string(event.Type)).
			Msg("event processing failed, nacking for redelivery")
		msg.Nack()
		return
	}

	metrics.BusEventsConsumed.Inc()
	msg.Ack()
}
