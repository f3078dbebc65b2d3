// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package delivery

import (
	"sync"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/models"
)

// defaultStatusCapacity bounds the status registry. Delivery status is
// in-flight process state, not durable data; the durable outcome lives on the
// NotificationItem (IsDelivered) and the Digest (Status).
const defaultStatusCapacity = 1024

// statusRegistry remembers the last known status of recent outbound messages
// so callers can look a message up by ID after Send or Schedule returns. Once
// full, recording a new message evicts the oldest tracked one.
type statusRegistry struct {
	mu     sync.Mutex
	status map[uuid.UUID]models.MessageStatus
	ring   []uuid.UUID
	next   int
}

func newStatusRegistry(capacity int) *statusRegistry {
	if capacity <= 0 {
		capacity = defaultStatusCapacity
	}
	return &statusRegistry{
		status: make(map[uuid.UUID]models.MessageStatus, capacity),
		ring:   make([]uuid.UUID, capacity),
	}
}

// Set records the status for a message, evicting the oldest tracked message
// when the registry is full. Updating an already-tracked message never evicts.
func (r *statusRegistry) Set(id uuid.UUID, status models.MessageStatus) {
	if id == uuid.Nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, tracked := r.status[id]; !tracked {
		if evict := r.ring[r.next]; evict != uuid.Nil {
			delete(r.status, evict)
		}
		r.ring[r.next] = id
		r.next = (r.next + 1) % len(r.ring)
	}
	r.status[id] = status
}

// Get returns the last recorded status for a message, or false when the
// message was never tracked or has been evicted.
func (r *statusRegistry) Get(id uuid.UUID) (models.MessageStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status, ok := r.status[id]
	return status, ok
}
