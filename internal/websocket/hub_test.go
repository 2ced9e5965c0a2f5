// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/alerting"
	"github.com/tomtom215/vigil/internal/presence"
)

func runHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.RunWithContext(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return h, cancel
}

// testClient registers a hub client without a real websocket connection.
func testClient(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		send: make(chan Message, 16),
	}
	h.Register <- c

	deadline := time.Now().Add(2 * time.Second)
	for h.GetClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return c
}

func expectMessage(t *testing.T, c *Client, wantType string) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		if msg.Type != wantType {
			t.Fatalf("message type = %q, want %q", msg.Type, wantType)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("no %q message received", wantType)
		return Message{}
	}
}

func TestHubBroadcastsAlertLifecycle(t *testing.T) {
	h, _ := runHub(t)
	c := testClient(t, h)

	alert := &alerting.Alert{
		ID:          3,
		Type:        alerting.TypeUnknownPerson,
		Priority:    alerting.PriorityMedium,
		Status:      alerting.StatusActive,
		CameraID:    "cam-lobby",
		Description: "Unknown person detected at Lobby",
	}

	h.AlertCreated(alert)
	msg := expectMessage(t, c, MessageTypeAlertCreated)
	if got, ok := msg.Data.(*alerting.Alert); !ok || got.ID != 3 {
		t.Errorf("data = %#v", msg.Data)
	}

	h.AlertEscalated(alert)
	expectMessage(t, c, MessageTypeAlertEscalated)

	h.AlertUpdated(alert)
	expectMessage(t, c, MessageTypeAlertUpdated)
}

func TestHubBroadcastsPresenceChange(t *testing.T) {
	h, _ := runHub(t)
	c := testClient(t, h)

	h.BroadcastPresenceChange(&presence.Change{
		SubjectID:   "fac-001",
		SubjectName: "Dr. Ada Chen",
		From:        presence.StatusAbsent,
		To:          presence.StatusPresent,
		CameraID:    "cam-lobby",
		Location:    "Lobby",
	})

	msg := expectMessage(t, c, MessageTypePresenceUpdate)
	data, ok := msg.Data.(PresenceUpdateData)
	if !ok {
		t.Fatalf("data = %#v", msg.Data)
	}
	if data.SubjectID != "fac-001" || data.To != "present" {
		t.Errorf("data = %+v", data)
	}

	// nil changes are ignored.
	h.BroadcastPresenceChange(nil)
}

func TestHubDropsStalledClients(t *testing.T) {
	h, _ := runHub(t)

	// A client with a zero-capacity buffer cannot accept any broadcast.
	stalled := &Client{
		id:   clientIDCounter.Add(1),
		hub:  h,
		send: make(chan Message),
	}
	h.Register <- stalled

	deadline := time.Now().Add(2 * time.Second)
	for h.GetClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	h.BroadcastJSON(MessageTypeAlertUpdated, nil)

	for h.GetClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := h.GetClientCount(); got != 0 {
		t.Errorf("client count = %d, want stalled client dropped", got)
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.RunWithContext(ctx) }()

	c := testClient(t, h)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("RunWithContext returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if h.GetClientCount() != 0 {
		t.Error("clients not closed on shutdown")
	}

	// The client's send channel is closed by shutdown.
	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed")
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePing})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"ping","data":null}` {
		t.Errorf("json = %s", data)
	}
}
