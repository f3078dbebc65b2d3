// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package delivery

import (
	"context"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
)

// InAppChannel is the in-app delivery target. The notification item is
// already persisted by the pipeline before dispatch and is what the API and
// websocket surface serve, so there is nothing to transmit here; the channel
// exists so in-app counts as a successful delivery attempt.
type InAppChannel struct{}

// NewInAppChannel creates the in-app channel.
func NewInAppChannel() *InAppChannel {
	return &InAppChannel{}
}

func (c *InAppChannel) Name() models.DeliveryChannel { return models.ChannelInApp }

func (c *InAppChannel) SupportsHTML() bool { return false }

func (c *InAppChannel) Validate(recipient models.Recipient) error {
	return nil
}

func (c *InAppChannel) Send(_ context.Context, msg *models.Message) error {
	logging.Trace().
		Str("message_id", msg.ID.String()).
		Str("owner_id", msg.Recipient.OwnerID.String()).
		Msg("in-app delivery recorded")
	return nil
}
