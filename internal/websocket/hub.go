// internal/websocket/hub.go
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Message types pushed to dashboards.
const (
	TypeData          = "data"
	TypeAlert         = "alert"
	TypeAlertsCleared = "alerts_cleared"
	TypeAssessment    = "assessment"
	TypeHistory       = "history"
)

const broadcastBuffer = 256

// Envelope is the wire format of every pushed message.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then closes
// every client's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered", zap.String("remote_addr", client.remoteAddr()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Info("WebSocket client unregistered", zap.String("remote_addr", client.remoteAddr()))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					// Assume client is blocked or gone
					h.logger.Warn("WebSocket client send buffer full, removing",
						zap.String("remote_addr", client.remoteAddr()))
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	close(h.done)
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}

// RegisterClient hands a new client to the hub. After the hub has stopped the
// client's send channel is closed instead.
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues one message for every client. It never blocks the caller: when
// the queue is full the message is dropped.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	messageBytes, err := Encode(msgType, payload)
	if err != nil {
		h.logger.Error("Error marshalling broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- messageBytes:
	default:
		h.logger.Warn("Broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// BroadcastData sends a reading to all clients.
func (h *Hub) BroadcastData(reading interface{}) {
	h.Broadcast(TypeData, reading)
}

// BroadcastAlert sends an alert to all clients.
func (h *Hub) BroadcastAlert(alert interface{}) {
	h.Broadcast(TypeAlert, alert)
}

// Encode wraps payload in the standard envelope.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}
