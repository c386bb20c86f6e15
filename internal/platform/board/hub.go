// Package board streams live waiting-room state to reception displays. Each
// practice structure has one board; browsers connect over WebSocket, receive
// the current snapshot, then get every queue and encounter change as it
// happens. Redis relays events between server instances and keeps the latest
// snapshot so a reconnecting display never starts blank.
package board

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event types pushed to boards.
const (
	EventSnapshot         = "snapshot"
	EventQueueTransition  = "queue.transition"
	EventQueueCheckIn     = "queue.check_in"
	EventEncounterOpened  = "encounter.opened"
	EventEncounterUpdated = "encounter.updated"
)

// Event is a single board update scoped to one structure.
type Event struct {
	Type        string          `json:"type"`
	StructureID string          `json:"structure_id"`
	EntryID     string          `json:"entry_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// Publisher pushes board events out to connected displays.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// client is one connected display.
type client struct {
	structureID string
	send        chan []byte
}

// Hub fans events out to the displays watching each structure's board.
type Hub struct {
	mu     sync.RWMutex
	boards map[string]map[*client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		boards: make(map[string]map[*client]struct{}),
		logger: logger,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.boards[c.structureID] == nil {
		h.boards[c.structureID] = make(map[*client]struct{})
	}
	h.boards[c.structureID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	watchers, ok := h.boards[c.structureID]
	if !ok {
		return
	}
	if _, ok := watchers[c]; !ok {
		return
	}
	delete(watchers, c)
	if len(watchers) == 0 {
		delete(h.boards, c.structureID)
	}
	close(c.send)
}

// Broadcast sends an event to every display watching the event's structure.
func (h *Hub) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("board: marshaling event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.boards[event.StructureID] {
		select {
		case c.send <- data:
		default:
			// Display buffer full; skip to avoid blocking.
		}
	}
}

// Publish implements Publisher by broadcasting to local watchers only.
// Use RedisPublisher when running more than one server instance.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event)
	return nil
}

// WatcherCount returns the number of displays watching a structure's board.
func (h *Hub) WatcherCount(structureID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.boards[structureID])
}
