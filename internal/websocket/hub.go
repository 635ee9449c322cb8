package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Event types pushed to live clients.
const (
	EventItemReset    = "item_reset"
	EventReminderSent = "reminder_sent"
)

// Event is a scheduler change broadcast to connected clients. Clients that
// set an owner filter only receive events for that owner.
type Event struct {
	Type    string         `json:"type"`
	ItemID  int64          `json:"item_id"`
	OwnerID int64          `json:"owner_id"`
	At      time.Time      `json:"at"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Hub maintains the set of active WebSocket clients and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast queues ev for every interested client without blocking.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.ownerID != 0 && c.ownerID != ev.OwnerID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("dropping event for slow client", "type", ev.Type, "item_id", ev.ItemID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
