// Herald - Subscription Notification Fan-out and Delivery
// Copyright 2026 Herald Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/herald-notify/herald

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/herald-notify/herald/internal/logging"
	"github.com/herald-notify/herald/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// setupHub creates a hub and runs it until the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(10 * time.Millisecond)
	return hub
}

// createTestClient builds a client without a live connection; tests read
// from its send channel directly.
func createTestClient(hub *Hub, ownerID uuid.UUID, buf int) *Client {
	return &Client{
		id:      clientIDCounter.Add(1),
		ownerID: ownerID,
		hub:     hub,
		send:    make(chan Message, buf),
	}
}

// registerClient registers a client and waits for registration to complete
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for push")
		return Message{}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	checks := []struct {
		name   string
		check  bool
		errMsg string
	}{
		{"clients map", hub.clients != nil, "clients map not initialized"},
		{"push channel", hub.pushes != nil, "push channel not initialized"},
		{"Register channel", hub.Register != nil, "Register channel not initialized"},
		{"Unregister channel", hub.Unregister != nil, "Unregister channel not initialized"},
		{"empty clients", len(hub.clients) == 0, "clients map should be empty"},
	}

	for _, c := range checks {
		if !c.check {
			t.Error(c.errMsg)
		}
	}
}

func TestHubClientCount(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients initially, got %d", hub.ClientCount())
	}

	ownerID := uuid.New()
	for i := 0; i < 5; i++ {
		hub.clients[createTestClient(hub, ownerID, 8)] = true
	}

	if hub.ClientCount() != 5 {
		t.Errorf("expected 5 clients, got %d", hub.ClientCount())
	}
	if hub.OwnerClientCount(ownerID) != 5 {
		t.Errorf("expected 5 owner clients, got %d", hub.OwnerClientCount(ownerID))
	}
	if hub.OwnerClientCount(uuid.New()) != 0 {
		t.Error("unknown owner should have 0 clients")
	}
}

func TestPushNotificationRoutesToOwnerOnly(t *testing.T) {
	hub := setupHub(t)

	alice := uuid.New()
	bob := uuid.New()
	aliceTab1 := createTestClient(hub, alice, 8)
	aliceTab2 := createTestClient(hub, alice, 8)
	bobClient := createTestClient(hub, bob, 8)
	registerClient(hub, aliceTab1)
	registerClient(hub, aliceTab2)
	registerClient(hub, bobClient)

	n := &models.NotificationItem{
		ID:      uuid.New(),
		OwnerID: alice,
		Event:   models.EventCommentReceived,
		Title:   "New comment",
	}
	hub.PushNotification(alice, n)

	for _, c := range []*Client{aliceTab1, aliceTab2} {
		msg := receiveMessage(t, c)
		if msg.Type != MessageTypeNotification {
			t.Errorf("message type = %q, want %q", msg.Type, MessageTypeNotification)
		}
		got, ok := msg.Data.(*models.NotificationItem)
		if !ok || got.ID != n.ID {
			t.Errorf("push carried wrong payload: %#v", msg.Data)
		}
	}

	select {
	case msg := <-bobClient.send:
		t.Errorf("push leaked to another owner: %#v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushUnreadCount(t *testing.T) {
	hub := setupHub(t)

	ownerID := uuid.New()
	client := createTestClient(hub, ownerID, 8)
	registerClient(hub, client)

	hub.PushUnreadCount(ownerID, 7)

	msg := receiveMessage(t, client)
	if msg.Type != MessageTypeUnreadCount {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeUnreadCount)
	}
	data, ok := msg.Data.(UnreadCountData)
	if !ok || data.Count != 7 {
		t.Errorf("payload = %#v, want count 7", msg.Data)
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, uuid.New(), 8)
	registerClient(hub, client)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d after register", hub.ClientCount())
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d after unregister", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("send channel not closed on unregister")
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := setupHub(t)

	ownerID := uuid.New()
	slow := createTestClient(hub, ownerID, 1)
	registerClient(hub, slow)

	// First push fills the buffer, second finds it full and drops the client.
	hub.PushUnreadCount(ownerID, 1)
	hub.PushUnreadCount(ownerID, 2)
	time.Sleep(50 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0 after drop", hub.ClientCount())
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- hub.Serve(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(hub, uuid.New(), 8)
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not stop on cancel")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("clients not closed on shutdown: %d remain", hub.ClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("client send channel not closed on shutdown")
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("reason = %s, want %s", got, ShutdownReasonContextCanceled)
	}

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	if got := getShutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("reason = %s, want %s", got, ShutdownReasonContextDeadline)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypeUnreadCount, Data: UnreadCountData{Count: 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"unread_count","data":{"count":3}}`
	if string(data) != want {
		t.Errorf("marshaled = %s, want %s", data, want)
	}
}
