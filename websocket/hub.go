package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ActivityEvent is one ledger transition pushed to connected dashboards.
type ActivityEvent struct {
	Type    string      `json:"type"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	At      time.Time   `json:"at"`
}

// Client represents a connected dashboard session.
type Client struct {
	Conn *websocket.Conn
}

// Hub maintains the set of connected admin dashboards and fans ledger
// activity out to them. It satisfies the services.ActivityNotifier interface.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
			}
			client.Conn.Close()
			h.mu.Unlock()
		}
	}
}

// Broadcast pushes a ledger activity event to every connected dashboard.
// Write failures are left to the per-connection read loop to clean up.
func (h *Hub) Broadcast(eventType, message string, data interface{}) {
	event := ActivityEvent{
		Type:    eventType,
		Message: message,
		Data:    data,
		At:      time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.Conn.WriteJSON(event)
	}
}
