// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package supervisor provides Suture-based process supervision for Herald.
//
// The tree has three layers: pipeline (event consumers, dispatcher, sweeper,
// digest scheduler, store GC), messaging (WebSocket hub), and api (HTTP
// server). A crash in one layer restarts only that service; the other layers
// keep running.
package supervisor
