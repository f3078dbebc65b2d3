// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

/*
Package models defines Herald's domain types, shared by the pipeline, the
stores, and the API.

The types fall into two groups:

Inbound: Event is a content-lifecycle occurrence (work updated, comment
posted, kudos received, series advanced) carrying the facets subscriptions
match on: authors, series, tags, rating, word count.

Outbound: NotificationItem is one owner-scoped notification produced by the
pipeline; Digest batches items for non-immediate frequencies; Message is the
channel-agnostic payload handed to delivery.

Subscription, Preferences, and Rule hold the per-owner configuration that
drives matching and filtering. Validation tags on these types are enforced by
the validation package at the API boundary; Validate methods cover invariants
tags cannot express.
*/
package models
