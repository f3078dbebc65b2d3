// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

// Package websocket implements the live push hub. Connected clients are
// keyed by owner; the hub satisfies notify.Broadcaster, pushing delivered
// notifications and unread-count updates to every connection the addressed
// owner holds. Pushes are best-effort: the persisted notification store is
// the source of truth and slow clients are dropped rather than letting them
// stall delivery.
package websocket
