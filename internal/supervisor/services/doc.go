// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package services adapts Herald components to the suture v4 supervision
// model. Most pipeline components already expose a context-aware
// Serve(ctx) error and only need naming; the HTTP server needs its
// ListenAndServe/Shutdown lifecycle translated.
package services
