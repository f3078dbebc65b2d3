// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Event pipeline throughput and stage outcomes
// - Notification creation and delivery
// - Digest batching
// - WebSocket connections
// - API endpoint latency and throughput
// - Store operation performance

var (
	// Pipeline Metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_events_processed_total",
			Help: "Total number of events run through the pipeline",
		},
		[]string{"event_type", "result"}, // result: "ok", "invalid", "error"
	)

	EventProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_event_processing_duration_seconds",
			Help:    "Duration of full event fan-out in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	PipelineStageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_pipeline_stage_outcomes_total",
			Help: "Per-stage outcomes during owner fan-out",
		},
		// stage: "match", "content_filter", "preferences", "smart_filter", "rules"
		// outcome: "pass", "skip", "suppressed", "blocked", "error"
		[]string{"stage", "outcome"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_notifications_created_total",
			Help: "Total number of notifications persisted",
		},
		[]string{"event_type", "frequency"},
	)

	// Delivery Metrics
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_deliveries_total",
			Help: "Total delivery attempts by channel and status",
		},
		[]string{"channel", "status"}, // status: "sent", "failed", "rejected"
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_delivery_duration_seconds",
			Help:    "Channel send duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	DeliveryQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_delivery_queue_depth",
			Help: "Current number of messages waiting in the delivery queue",
		},
	)

	RedeliverySweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_redelivery_sweeps_total",
			Help: "Total redelivery sweep runs",
		},
	)

	RedeliveredNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_redelivered_notifications_total",
			Help: "Total notifications re-dispatched by the redelivery sweep",
		},
	)

	// Digest Metrics
	DigestsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_digests_open",
			Help: "Current number of open digest windows",
		},
	)

	DigestsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_digests_closed_total",
			Help: "Total digests closed by outcome",
		},
		[]string{"outcome"}, // "sent", "failed", "discarded_empty"
	)

	DigestItems = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "herald_digest_items",
			Help:    "Items per sent digest",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)

	// WebSocket Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "herald_websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_websocket_pushes_total",
			Help: "Total live pushes by kind",
		},
		[]string{"kind"}, // "notification", "unread_count"
	)

	WSDroppedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_websocket_dropped_clients_total",
			Help: "Clients deregistered due to full buffers or dead connections",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "herald_store_operation_duration_seconds",
			Help:    "Repository operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"repository", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "herald_store_operation_errors_total",
			Help: "Total repository operation errors",
		},
		[]string{"repository", "operation"},
	)

	// Event Bus Metrics
	BusEventsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_bus_events_published_total",
			Help: "Events published to the bus",
		},
	)

	BusEventsConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_bus_events_consumed_total",
			Help: "Events consumed from the bus",
		},
	)

	BusParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "herald_bus_parse_failures_total",
			Help: "Bus messages that failed to deserialize",
		},
	)
)

// RecordEvent records an event pipeline run.
func RecordEvent(eventType, result string, duration time.Duration) {
	EventsProcessed.WithLabelValues(eventType, result).Inc()
	if result == "ok" {
		EventProcessingDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	}
}

// RecordStage records a per-owner stage outcome.
func RecordStage(stage, outcome string) {
	PipelineStageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordNotificationCreated records a persisted notification.
func RecordNotificationCreated(eventType, frequency string) {
	NotificationsCreated.WithLabelValues(eventType, frequency).Inc()
}

// RecordDelivery records a channel delivery attempt.
func RecordDelivery(channel, status string, duration time.Duration) {
	DeliveriesTotal.WithLabelValues(channel, status).Inc()
	if status == "sent" {
		DeliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
	}
}

// RecordDigestClosed records the outcome of a closed digest window.
func RecordDigestClosed(outcome string, items int) {
	DigestsClosed.WithLabelValues(outcome).Inc()
	if outcome == "sent" {
		DigestItems.Observe(float64(items))
	}
}

// RecordAPIRequest records metrics for an API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordStoreOperation records a repository operation.
func RecordStoreOperation(repository, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(repository, operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(repository, operation).Inc()
	}
}
