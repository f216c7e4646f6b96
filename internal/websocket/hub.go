// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"simcomps-service/internal/pkg/presence"

	"go.uber.org/zap"
)

// Event is a server push frame.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Presence event types pushed to admin subscribers.
const (
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
)

// Hub owns every live websocket client. A connected client's id becomes
// the user's presence transport handle; dropping the connection clears the
// handle but does not mark the user offline. Only session death does that,
// via reconciliation.
type Hub struct {
	// Registered clients by user ID
	clients map[int64]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *Event

	presence *presence.Registry
	logger   *zap.Logger
}

func NewHub(registry *presence.Registry, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		Register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		presence:   registry,
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastToAdmins(event)
		}
	}
}

// BroadcastToAdmins queues an event for every connected admin client.
func (h *Hub) BroadcastToAdmins(event *Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast queue full, event dropped", zap.String("type", event.Type))
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	h.mu.Unlock()

	// The newest connection wins the transport handle; presence collapses
	// per user, so an older device's socket simply stops being the handle.
	h.presence.UpdateTransportHandle(client.userID, client.id)

	h.logger.Info("websocket client connected",
		zap.Int64("user_id", client.userID),
		zap.String("client_id", client.id),
	)

	h.BroadcastToAdmins(&Event{
		Type:    EventUserConnected,
		Payload: map[string]interface{}{"user_id": client.userID, "user_name": client.userName},
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if conns, ok := h.clients[client.userID]; ok {
		if conns[client] {
			delete(conns, client)
			close(client.send)
		}
		if len(conns) == 0 {
			delete(h.clients, client.userID)
		}
	}
	h.mu.Unlock()

	// Clear the handle only if this connection still owns it.
	if entry, ok := h.presence.FindByTransportHandle(client.id); ok && entry.User.ID == client.userID {
		h.presence.UpdateTransportHandle(client.userID, "")
	}

	h.logger.Info("websocket client disconnected",
		zap.Int64("user_id", client.userID),
		zap.String("client_id", client.id),
	)

	h.BroadcastToAdmins(&Event{
		Type:    EventUserDisconnected,
		Payload: map[string]interface{}{"user_id": client.userID, "user_name": client.userName},
	})
}

func (h *Hub) broadcastToAdmins(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.clients {
		for client := range conns {
			if !client.isAdmin {
				continue
			}
			select {
			case client.send <- data:
			default:
				// Slow consumer; drop the frame rather than block the hub.
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.clients {
		for client := range conns {
			close(client.send)
			client.conn.Close()
		}
		delete(h.clients, userID)
	}

	h.logger.Info("websocket hub stopped")
}
