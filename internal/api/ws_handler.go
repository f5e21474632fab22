package api

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	ws "github.com/jitrc/MailSweep/internal/websocket"
)

// WebSocketHandler handles the /api/v1/ws endpoint for live scan progress.
type WebSocketHandler struct {
	hub *ws.Hub
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(hub *ws.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// MailSweep binds to localhost and serves a single local user, so
		// cross-origin checks add nothing here.
		return true
	},
}

// Handle upgrades the HTTP connection to a WebSocket and registers it with
// the Hub. The client receives every scan event from then on; it is not
// expected to send anything.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection: %v", err)
		return
	}

	client := h.hub.Register(conn)
	if client == nil {
		log.Printf("WebSocketHandler: connection rejected (max connections exceeded)")
		return
	}

	// Read loop to keep the connection open and detect disconnects.
	go h.readLoop(client)
}

// readLoop reads messages from the WebSocket until the connection is
// closed, then unregisters the client.
func (h *WebSocketHandler) readLoop(client *ws.Client) {
	conn := client.Conn()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(client)
}
