// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an optional
// YAML config file, and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access from
// multiple goroutines.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	NATS      NATSConfig      `koanf:"nats"` // Optional: cross-service event ingestion via NATS JetStream
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Digest    DigestConfig    `koanf:"digest"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production
}

// StoreConfig selects and configures the repository backend.
type StoreConfig struct {
	// Backend is "memory" or "badger".
	Backend string `koanf:"backend"`
	// Path is the BadgerDB directory (badger backend only).
	Path string `koanf:"path"`
	// GCInterval controls how often the Badger value log GC runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// NATSConfig configures the optional NATS JetStream event subscriber.
// When disabled, events are accepted only via the in-process bus and the
// process-event API endpoint.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	StreamName       string        `koanf:"stream_name"`
	SubjectPrefix    string        `koanf:"subject_prefix"`
	DurableName      string        `koanf:"durable_name"`
	QueueGroup       string        `koanf:"queue_group"`
	SubscribersCount int           `koanf:"subscribers_count"`
	AckWaitTimeout   time.Duration `koanf:"ack_wait_timeout"`
	CloseTimeout     time.Duration `koanf:"close_timeout"`
}

// PipelineConfig tunes the event processing pipeline.
type PipelineConfig struct {
	// OwnerWorkers caps concurrent per-owner fan-out goroutines per event.
	OwnerWorkers int `koanf:"owner_workers"`
	// RedeliveryInterval controls the undelivered-notification sweep.
	RedeliveryInterval time.Duration `koanf:"redelivery_interval"`
	// RedeliveryBatchSize caps items re-dispatched per sweep.
	RedeliveryBatchSize int `koanf:"redelivery_batch_size"`
	// RedeliveryMinAge keeps the sweep from racing in-flight first attempts.
	RedeliveryMinAge time.Duration `koanf:"redelivery_min_age"`
}

// DigestConfig tunes the batch processor and its scheduler.
type DigestConfig struct {
	// CheckInterval is how often elapsed digest windows are closed.
	CheckInterval time.Duration `koanf:"check_interval"`
	// BatchedWindow is the window length for the generic "batched" frequency.
	BatchedWindow time.Duration `koanf:"batched_window"`
	// MaxItems caps items per digest; overflow starts a new digest.
	MaxItems int `koanf:"max_items"`
	// MaxConcurrentSends caps concurrent digest deliveries per close cycle.
	MaxConcurrentSends int `koanf:"max_concurrent_sends"`
}

// DeliveryConfig tunes the outbound channel manager.
type DeliveryConfig struct {
	Workers       int           `koanf:"workers"`
	QueueSize     int           `koanf:"queue_size"`
	RetryAttempts int           `koanf:"retry_attempts"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	SendTimeout   time.Duration `koanf:"send_timeout"`

	// Per-channel token bucket rate limits.
	RatePerSecond float64 `koanf:"rate_per_second"`
	RateBurst     int     `koanf:"rate_burst"`

	// Circuit breaker settings applied per channel.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`

	// Email channel.
	EmailEnabled bool   `koanf:"email_enabled"`
	SMTPAddr     string `koanf:"smtp_addr"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPUseTLS   bool   `koanf:"smtp_use_tls"`
	EmailFrom    string `koanf:"email_from"`
	FromName     string `koanf:"from_name"`

	// Webhook channel.
	WebhookEnabled bool          `koanf:"webhook_enabled"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
}

// WebSocketConfig tunes the live push hub.
type WebSocketConfig struct {
	ReadBufferSize  int           `koanf:"read_buffer_size"`
	WriteBufferSize int           `koanf:"write_buffer_size"`
	SendBufferSize  int           `koanf:"send_buffer_size"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	PongTimeout     time.Duration `koanf:"pong_timeout"`
	PingInterval    time.Duration `koanf:"ping_interval"`
}

// APIConfig holds API pagination limits.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// SecurityConfig holds authentication and rate limiting configuration.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// AdminUsername/AdminPasswordHash guard the management API.
	// AdminPasswordHash is a bcrypt hash, never a plaintext password.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
