package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTelemetry(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/telemetry"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	return conn
}

func TestServeTelemetryBroadcastsToSubscribedClient(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeTelemetry(hub, w, r)
	}))
	defer server.Close()

	conn := dialTelemetry(t, server)
	defer conn.Close()

	// ServeTelemetry registers the client on its own goroutine; give the
	// hub's run loop a moment to process the registration before broadcasting.
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast(TelemetryChannel, map[string]int{"value": 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if msg.Type != TelemetryChannel {
		t.Errorf("Type = %q, want %q", msg.Type, TelemetryChannel)
	}
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok || payload["value"] != float64(42) {
		t.Errorf("Payload = %+v, want {value: 42}", msg.Payload)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeTelemetry(hub, w, r)
	}))
	defer server.Close()

	conn := dialTelemetry(t, server)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	unsub, err := json.Marshal(ClientMessage{Action: "unsubscribe", Channels: []string{TelemetryChannel}})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, unsub); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(TelemetryChannel, map[string]int{"value": 1})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatalf("ReadMessage() succeeded after unsubscribe, want a timeout")
	}
}

func TestBroadcastIgnoresUnsubscribedChannels(t *testing.T) {
	hub := NewHub()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeTelemetry(hub, w, r)
	}))
	defer server.Close()

	conn := dialTelemetry(t, server)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast("other-channel", map[string]int{"value": 1})

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("ReadMessage() succeeded for a channel the client never subscribed to, want a timeout")
	}
}
