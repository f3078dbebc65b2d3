// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the configuration for invalid or inconsistent values.
// It is called by Load() after all layers are merged; call it directly only
// when constructing a Config by hand (tests, embedded usage).
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateNATS(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateAPI()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %v", c.Server.Timeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("server.environment must be 'development' or 'production', got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "memory":
		return nil
	case "badger":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger backend")
		}
		return nil
	default:
		return fmt.Errorf("store.backend must be 'memory' or 'badger', got %q", c.Store.Backend)
	}
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats.url is not a valid URL: %w", err)
	}
	if !strings.HasPrefix(u.Scheme, "nats") {
		return fmt.Errorf("nats.url must use the nats:// scheme, got %q", u.Scheme)
	}
	if c.NATS.SubscribersCount < 1 {
		return fmt.Errorf("nats.subscribers_count must be at least 1, got %d", c.NATS.SubscribersCount)
	}
	if c.NATS.StreamName == "" {
		return fmt.Errorf("nats.stream_name is required when nats is enabled")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.OwnerWorkers < 1 {
		return fmt.Errorf("pipeline.owner_workers must be at least 1, got %d", c.Pipeline.OwnerWorkers)
	}
	if c.Pipeline.RedeliveryInterval <= 0 {
		return fmt.Errorf("pipeline.redelivery_interval must be positive, got %v", c.Pipeline.RedeliveryInterval)
	}
	if c.Digest.CheckInterval <= 0 {
		return fmt.Errorf("digest.check_interval must be positive, got %v", c.Digest.CheckInterval)
	}
	if c.Digest.MaxItems < 1 {
		return fmt.Errorf("digest.max_items must be at least 1, got %d", c.Digest.MaxItems)
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.Workers < 1 {
		return fmt.Errorf("delivery.workers must be at least 1, got %d", c.Delivery.Workers)
	}
	if c.Delivery.RetryAttempts < 0 {
		return fmt.Errorf("delivery.retry_attempts must be non-negative, got %d", c.Delivery.RetryAttempts)
	}
	if c.Delivery.EmailEnabled && c.Delivery.SMTPAddr == "" {
		return fmt.Errorf("delivery.smtp_addr is required when the email channel is enabled")
	}
	if c.Delivery.RatePerSecond <= 0 {
		return fmt.Errorf("delivery.rate_per_second must be positive, got %v", c.Delivery.RatePerSecond)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	// Production requires real credentials; development may run open for
	// local testing.
	if c.IsProduction() {
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("security.jwt_secret is required in production")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in production")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPasswordHash == "" {
			return fmt.Errorf("security.admin_username and security.admin_password_hash are required in production")
		}
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("security.session_timeout must be positive, got %v", c.Security.SessionTimeout)
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}
