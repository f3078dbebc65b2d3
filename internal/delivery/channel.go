// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package delivery implements the outbound channels (email, webhook, in-app)
// and the manager that fans a message out across them with per-channel rate
// limiting, circuit breaking, and retry.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/herald-notify/herald/internal/models"
)

// Channel is one outbound delivery mechanism. Channels return an error for
// failed sends; wrap transient failures in Transient so the manager retries
// them.
type Channel interface {
	// Name returns the channel identifier.
	Name() models.DeliveryChannel

	// Validate checks the recipient carries what the channel needs (an email
	// address, a webhook URL). Called before Send; a validation failure is
	// permanent.
	Validate(recipient models.Recipient) error

	// Send delivers one message to the recipient.
	Send(ctx context.Context, msg *models.Message) error

	// SupportsHTML reports whether the channel can render HTML bodies.
	SupportsHTML() bool
}

// transientError marks a failure as retryable.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps an error so the manager retries the send.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether the error was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Registry holds the enabled channels.
type Registry struct {
	channels map[models.DeliveryChannel]Channel
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[models.DeliveryChannel]Channel)}
}

// Register adds a channel. Later registrations replace earlier ones.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Get retrieves a channel by name.
func (r *Registry) Get(name models.DeliveryChannel) (Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// List returns the names of all registered channels.
func (r *Registry) List() []models.DeliveryChannel {
	names := make([]models.DeliveryChannel, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// ValidateEmail checks an email address has the minimal user@domain.tld
// shape. Full RFC validation is the mail server's job.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email domain: %s", parts[1])
	}
	return nil
}

// ValidateWebhookURL checks a webhook endpoint is an absolute http(s) URL.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}
