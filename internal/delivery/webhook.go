// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/herald-notify/herald/internal/config"
	"github.com/herald-notify/herald/internal/models"
)

// WebhookChannel POSTs a JSON payload to the owner's configured endpoint.
type WebhookChannel struct {
	client *http.Client
}

// webhookPayload is the wire shape posted to webhook endpoints.
type webhookPayload struct {
	MessageID string             `json:"message_id"`
	Type      models.MessageType `json:"type"`
	Priority  models.Priority    `json:"priority"`
	Subject   string             `json:"subject"`
	Body      string             `json:"body"`
	ActionURL string             `json:"action_url,omitempty"`
	Variables map[string]any     `json:"variables,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewWebhookChannel creates the webhook channel from delivery configuration.
func NewWebhookChannel(cfg config.DeliveryConfig) *WebhookChannel {
	timeout := cfg.WebhookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *WebhookChannel) Name() models.DeliveryChannel { return models.ChannelWebhook }

func (c *WebhookChannel) SupportsHTML() bool { return false }

func (c *WebhookChannel) Validate(recipient models.Recipient) error {
	return ValidateWebhookURL(recipient.WebhookURL)
}

// Send posts the payload. Network failures, 429, and 5xx responses are
// transient; other non-2xx responses are permanent.
func (c *WebhookChannel) Send(ctx context.Context, msg *models.Message) error {
	payload := webhookPayload{
		MessageID: msg.ID.String(),
		Type:      msg.Type,
		Priority:  msg.Priority,
		Subject:   msg.Content.Subject,
		Body:      msg.Content.Body,
		ActionURL: msg.Content.ActionURL,
		Variables: msg.Content.Variables,
		CreatedAt: msg.CreatedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, msg.Recipient.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "herald-notify/1.0")
	req.Header.Set("X-Herald-Message-ID", msg.ID.String())

	resp, err := c.client.Do(req)
	if err != nil {
		return Transient(fmt.Errorf("post webhook: %w", err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Transient(fmt.Errorf("webhook returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}
