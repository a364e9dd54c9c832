package ws

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// TelemetryChannel is the one broadcast channel this agent fans out.
const TelemetryChannel = "telemetry"

// NewHub constructs and starts a Hub's run loop in a background
// goroutine, returning a ready-to-use handle.
func NewHub() *Hub {
	h := newHub(64)
	go h.Run()
	return h
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeTelemetry upgrades the request to a WebSocket and registers the
// resulting client against hub, auto-subscribed to TelemetryChannel.
func ServeTelemetry(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := newClient(uuid.NewString(), hub, conn)
	hub.register <- client
	hub.Subscribe(client, TelemetryChannel)

	go client.writePump()
	go client.readPump()
}
