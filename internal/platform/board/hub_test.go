package board

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func newTestClient(structureID string) *client {
	return &client{structureID: structureID, send: make(chan []byte, 8)}
}

func TestHub_BroadcastReachesStructureWatchers(t *testing.T) {
	hub := newTestHub()
	cl := newTestClient("clinic_a")
	hub.register(cl)

	hub.Broadcast(Event{
		Type:        EventQueueTransition,
		StructureID: "clinic_a",
		EntryID:     "entry-1",
		Timestamp:   time.Now(),
	})

	select {
	case data := <-cl.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshaling: %v", err)
		}
		if got.Type != EventQueueTransition || got.EntryID != "entry-1" {
			t.Errorf("unexpected event: %+v", got)
		}
	default:
		t.Fatal("expected event delivered to watcher")
	}
}

func TestHub_BroadcastScopedToStructure(t *testing.T) {
	hub := newTestHub()
	a := newTestClient("clinic_a")
	b := newTestClient("clinic_b")
	hub.register(a)
	hub.register(b)

	hub.Broadcast(Event{Type: EventQueueCheckIn, StructureID: "clinic_a"})

	if len(a.send) != 1 {
		t.Errorf("clinic_a watcher should receive 1 event, got %d", len(a.send))
	}
	if len(b.send) != 0 {
		t.Errorf("clinic_b watcher should receive nothing, got %d", len(b.send))
	}
}

func TestHub_UnregisterStopsDelivery(t *testing.T) {
	hub := newTestHub()
	cl := newTestClient("clinic_a")
	hub.register(cl)
	hub.unregister(cl)

	if hub.WatcherCount("clinic_a") != 0 {
		t.Error("expected no watchers after unregister")
	}

	// Send channel must be closed.
	if _, ok := <-cl.send; ok {
		t.Error("expected send channel closed")
	}
}

func TestHub_UnregisterTwiceIsSafe(t *testing.T) {
	hub := newTestHub()
	cl := newTestClient("clinic_a")
	hub.register(cl)
	hub.unregister(cl)
	hub.unregister(cl) // must not panic on double close
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := newTestHub()
	cl := &client{structureID: "clinic_a", send: make(chan []byte)}
	hub.register(cl)

	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Type: EventQueueTransition, StructureID: "clinic_a"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_PublishImplementsPublisher(t *testing.T) {
	hub := newTestHub()
	var _ Publisher = hub

	cl := newTestClient("clinic_a")
	hub.register(cl)

	if err := hub.Publish(context.Background(), Event{Type: EventEncounterOpened, StructureID: "clinic_a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cl.send) != 1 {
		t.Errorf("expected 1 event, got %d", len(cl.send))
	}
}
