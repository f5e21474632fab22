package websocket

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a WebSocket connection.
type Client struct {
	conn *websocket.Conn
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// Hub manages active WebSocket connections. MailSweep serves a single
// local user, so there is one flat client set; multiple connections
// (e.g. multiple tabs) all receive every message.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	maxClients int
}

// NewHub creates a new Hub with a connection limit.
func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 10
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		maxClients: maxClients,
	}
}

// Register adds a WebSocket connection.
// If the connection limit is exceeded, the new connection is closed and nil is returned.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) >= h.maxClients {
		log.Printf("websocket: exceeded max connections (%d), closing new connection", h.maxClients)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"),
			// Use zero deadline - best effort.
			// See https://pkg.go.dev/github.com/gorilla/websocket#Conn.WriteControl
			// for details.
			time.Time{},
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{conn: conn}
	h.clients[client] = struct{}{}
	return client
}

// Unregister removes a client and closes the connection.
func (h *Hub) Unregister(client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Send broadcasts a message to all active clients.
func (h *Hub) Send(msg []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("websocket: failed to write message: %v", err)
			// Best-effort cleanup: unregister this client.
			go h.Unregister(client)
		}
	}
}

// ActiveConnections returns the number of active WebSocket connections.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
