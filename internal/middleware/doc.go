// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package middleware provides http.HandlerFunc middleware shared across the
// API: request ID propagation, Prometheus instrumentation, and response
// compression. Chi-native middleware (CORS, rate limiting) lives in the api
// package; these are kept handler-shaped so they compose outside Chi too.
package middleware
