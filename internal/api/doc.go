// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package api is Herald's HTTP surface: owner-scoped management of
// notifications, preferences, subscriptions, rules, and digests, plus event
// intake, live WebSocket push, and health/metrics endpoints.
//
// Routing uses Chi with go-chi/cors and go-chi/httprate. All data endpoints
// require a bearer JWT scoped to one owner; tokens are minted by the login
// endpoint after verifying the admin credentials, modelling an upstream
// platform exchanging service credentials for owner-scoped tokens.
package api
