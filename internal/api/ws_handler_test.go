package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jitrc/MailSweep/internal/models"
	ws "github.com/jitrc/MailSweep/internal/websocket"
)

func TestWebSocketHandlerBroadcast(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.Send([]byte(`{"type":"folder_started","folder":"INBOX"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event models.ScanEvent
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, models.ScanEventFolderStarted, event.Type)
	assert.Equal(t, "INBOX", event.Folder)
}

func TestWebSocketHandlerUnregistersOnClose(t *testing.T) {
	hub := ws.NewHub(10)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandlerConnectionLimit(t *testing.T) {
	hub := ws.NewHub(1)
	handler := NewWebSocketHandler(hub)

	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer first.Close()

	require.Eventually(t, func() bool { return hub.ActiveConnections() == 1 },
		2*time.Second, 10*time.Millisecond)

	// The second upgrade succeeds but the hub closes it right away with a
	// policy violation.
	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation),
		"expected policy violation close, got %v", err)

	assert.Equal(t, 1, hub.ActiveConnections())
}
