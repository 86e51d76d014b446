// WebSocket hub - the single-subscriber push channel.
//
// Information Hiding:
// - Upgrade handshake and connection lifecycle hidden
// - At most one subscriber; a new connection replaces the old one
// - Send failures drop the event, never propagate
package notify

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub implements Notifier over a websocket with at most one subscriber.
type Hub struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	client *websocket.Conn
}

// NewHub creates an unconnected hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// The observer is a local companion UI; origin checks add nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and installs the connection as the
// subscriber, replacing any previous one.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	if h.client != nil {
		h.client.Close()
	}
	h.client = conn
	h.mu.Unlock()

	h.Send("connection", map[string]any{"status": "connected"})

	// Drain incoming frames so pings are answered; drop the subscriber on
	// read failure.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if h.client == conn {
					h.client = nil
				}
				h.mu.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// Send pushes one event to the subscriber, if any. Marshal or write
// failures drop the event.
func (h *Hub) Send(event string, payload any) {
	data, err := json.Marshal(Message{Event: event, Data: payload})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		return
	}
	if err := h.client.WriteMessage(websocket.TextMessage, data); err != nil {
		h.client.Close()
		h.client = nil
	}
}

var _ Notifier = (*Hub)(nil)
