// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/metrics"
	"github.com/herald-notify/herald/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	// This is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeNotification = "notification"
	MessageTypeUnreadCount  = "unread_count"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// push is a message addressed to one owner's connected clients.
type push struct {
	ownerID uuid.UUID
	message Message
}

// UnreadCountData is the payload of an unread_count message.
type UnreadCountData struct {
	Count int `json:"count"`
}

// Hub maintains the set of active clients and routes pushes to the clients
// belonging to the addressed owner. An owner may hold several connections
// (multiple tabs, devices); every one of them receives the push.
type Hub struct {
	clients    map[*Client]bool
	pushes     chan push
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		pushes:     make(chan push, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Serve runs the hub with context support for graceful shutdown. Designed
// for suture supervision: when the context is canceled all connected
// clients are closed and ctx.Err() is returned, so a supervisor restart
// never leaves orphaned connections.
//
// DETERMINISM: Uses priority-based selection to ensure predictable behavior:
// - Priority 1: Context cancellation (shutdown)
// - Priority 2: Client lifecycle events (Register/Unregister)
// - Priority 3: Push messages
// This ensures client state is always consistent before routing pushes.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: Check for shutdown (highest priority, non-blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: Handle client lifecycle events (non-blocking check)
		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
			// No lifecycle events pending
		}

		// Priority 3: Handle pushes or wait for any event (blocking)
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case p := <-h.pushes:
			h.pushToOwner(p)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Inc()
	logging.Info().
		Str("owner_id", client.ownerID.String()).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WSConnectionsActive.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()

	logging.Info().
		Str("owner_id", client.ownerID.String()).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. ctx.Err() is NOT logged as an error because context
// cancellation is expected behavior during graceful shutdown.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()
	reason := getShutdownReason(ctx)

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

// getShutdownReason determines the shutdown reason from the context error.
func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.Canceled:
		return ShutdownReasonContextCanceled
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// pushToOwner delivers a push to every connection the addressed owner holds,
// in a deterministic order.
// DETERMINISM: Sorts clients by their monotonically assigned ID so message
// delivery order is reproducible across runs and in tests.
func (h *Hub) pushToOwner(p push) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var targets []*Client
	for client := range h.clients {
		if client.ownerID == p.ownerID {
			targets = append(targets, client)
		}
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].id < targets[j].id
	})

	// Track clients to remove (can't modify map during iteration)
	var toRemove []*Client

	for _, client := range targets {
		select {
		case client.send <- p.message:
		default:
			// Channel full or closed, mark for removal
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnectionsActive.Dec()
		metrics.WSDroppedClients.Inc()
		logging.Warn().
			Str("owner_id", client.ownerID.String()).
			Msg("dropped websocket client with full send buffer")
	}
}

// closeAllClients gracefully closes all connected WebSocket clients.
// DETERMINISM: Closes clients in ID order to ensure consistent shutdown behavior.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnectionsActive.Dec()
	}
	logging.Info().Msg("closed all websocket clients during shutdown")
}

// PushNotification sends a freshly delivered notification to the owner's
// connected clients. Implements notify.Broadcaster. Non-blocking: if the
// push channel is full the push is dropped, the persisted item remains the
// source of truth.
func (h *Hub) PushNotification(ownerID uuid.UUID, n *models.NotificationItem) {
	h.enqueue(ownerID, Message{Type: MessageTypeNotification, Data: n})
}

// PushUnreadCount sends the owner's current unread count to their connected
// clients. Implements notify.Broadcaster.
func (h *Hub) PushUnreadCount(ownerID uuid.UUID, count int) {
	h.enqueue(ownerID, Message{
		Type: MessageTypeUnreadCount,
		Data: UnreadCountData{Count: count},
	})
}

func (h *Hub) enqueue(ownerID uuid.UUID, message Message) {
	select {
	case h.pushes <- push{ownerID: ownerID, message: message}:
		metrics.WSPushesTotal.WithLabelValues(message.Type).Inc()
	default:
		logging.Warn().
			Str("message_type", message.Type).
			Str("owner_id", ownerID.String()).
			Msg("push channel full, dropping live push")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OwnerClientCount returns the number of connections one owner holds.
func (h *Hub) OwnerClientCount(ownerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.ownerID == ownerID {
			n++
		}
	}
	return n
}

// MarshalMessage converts a message to JSON
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
