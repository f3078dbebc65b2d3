// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/herald/config.yaml",
	"/etc/herald/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8710,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development", // set ENVIRONMENT=production for production checks
		},
		Store: StoreConfig{
			Backend:    "memory",
			Path:       "/data/herald",
			GCInterval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:          false, // in-process bus only by default
			URL:              "nats://127.0.0.1:4222",
			StreamName:       "HERALD_EVENTS",
			SubjectPrefix:    "herald.events",
			DurableName:      "herald-pipeline",
			QueueGroup:       "pipeline",
			// A single queue-group consumer keeps events for one owner in
			// persisted order. Raising this trades that ordering for
			// throughput.
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			CloseTimeout:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			OwnerWorkers:        8,
			RedeliveryInterval:  5 * time.Minute,
			RedeliveryBatchSize: 100,
			RedeliveryMinAge:    time.Minute,
		},
		Digest: DigestConfig{
			CheckInterval:      time.Minute,
			BatchedWindow:      time.Hour,
			MaxItems:           50,
			MaxConcurrentSends: 5,
		},
		Delivery: DeliveryConfig{
			Workers:            4,
			QueueSize:          256,
			RetryAttempts:      3,
			RetryDelay:         2 * time.Second,
			SendTimeout:        15 * time.Second,
			RatePerSecond:      10,
			RateBurst:          20,
			BreakerMaxFailures: 5,
			BreakerTimeout:     time.Minute,
			EmailEnabled:       false,
			SMTPAddr:           "",
			EmailFrom:          "herald@localhost",
			WebhookEnabled:     false,
			WebhookTimeout:     10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  64,
			WriteTimeout:    10 * time.Second,
			PongTimeout:     60 * time.Second,
			PingInterval:    54 * time.Second,
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			SessionTimeout:    24 * time.Hour,
			AdminUsername:     "",
			AdminPasswordHash: "",
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			TrustedProxies:    []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// HTTP_PORT -> server.port
	// DIGEST_CHECK_INTERVAL -> digest.check_interval
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

// processSliceFields converts comma-separated string values to slices for known
// slice fields. Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - STORE_BACKEND -> store.backend
//   - NATS_URL -> nats.url
//   - JWT_SECRET -> security.jwt_secret
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Store mappings
		"store_backend":    "store.backend",
		"store_path":       "store.path",
		"store_gc_interval": "store.gc_interval",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_stream":         "nats.stream_name",
		"nats_subject_prefix": "nats.subject_prefix",
		"nats_durable_name":   "nats.durable_name",
		"nats_queue_group":    "nats.queue_group",
		"nats_subscribers":    "nats.subscribers_count",
		"nats_ack_wait":       "nats.ack_wait_timeout",
		"nats_close_timeout":  "nats.close_timeout",

		// Pipeline mappings
		"pipeline_owner_workers":         "pipeline.owner_workers",
		"pipeline_redelivery_interval":   "pipeline.redelivery_interval",
		"pipeline_redelivery_batch_size": "pipeline.redelivery_batch_size",
		"pipeline_redelivery_min_age":    "pipeline.redelivery_min_age",

		// Digest mappings
		"digest_check_interval":  "digest.check_interval",
		"digest_batched_window":  "digest.batched_window",
		"digest_max_items":       "digest.max_items",
		"digest_max_concurrent":  "digest.max_concurrent_sends",

		// Delivery mappings
		"delivery_workers":         "delivery.workers",
		"delivery_queue_size":      "delivery.queue_size",
		"delivery_retry_attempts":  "delivery.retry_attempts",
		"delivery_retry_delay":     "delivery.retry_delay",
		"delivery_send_timeout":    "delivery.send_timeout",
		"delivery_rate_per_second": "delivery.rate_per_second",
		"delivery_rate_burst":      "delivery.rate_burst",
		"delivery_breaker_max_failures": "delivery.breaker_max_failures",
		"delivery_breaker_timeout":      "delivery.breaker_timeout",
		"email_enabled":            "delivery.email_enabled",
		"smtp_addr":                "delivery.smtp_addr",
		"email_from":               "delivery.email_from",
		"webhook_enabled":          "delivery.webhook_enabled",
		"webhook_timeout":          "delivery.webhook_timeout",

		// WebSocket mappings
		"ws_read_buffer_size":  "websocket.read_buffer_size",
		"ws_write_buffer_size": "websocket.write_buffer_size",
		"ws_send_buffer_size":  "websocket.send_buffer_size",
		"ws_write_timeout":     "websocket.write_timeout",
		"ws_pong_timeout":      "websocket.pong_timeout",
		"ws_ping_interval":     "websocket.ping_interval",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Security mappings
		"jwt_secret":          "security.jwt_secret",
		"session_timeout":     "security.session_timeout",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",
		"trusted_proxies":     "security.trusted_proxies",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them.
	// This prevents random environment variables from polluting config.
	return ""
}

// WatchConfigFile sets up a file watcher for hot-reload capability.
// The caller is responsible for mutex protection when accessing configuration
// during reloads.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)

	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
