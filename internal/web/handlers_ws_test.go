package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"ttrgbplus/internal/events"
)

func newTestHub() *WSHub {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSHub(logger)
}

func fanEvent(speed int) events.Event {
	return events.Event{Type: events.EventFanSpeed, Data: events.FanSpeed{Device: "1:1", Speed: speed}}
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.clients)
	hub.mu.RUnlock()
	if count != 1 {
		t.Errorf("after register: count = %d, want 1", count)
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count = len(hub.clients)
	hub.mu.RUnlock()
	if count != 0 {
		t.Errorf("after unregister: count = %d, want 0", count)
	}
}

func TestWSHubBroadcastFiltersByType(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	all := &wsClient{send: make(chan []byte, 16)}
	lightsOnly := &wsClient{send: make(chan []byte, 16), types: map[string]bool{events.EventLighting: true}}
	hub.register <- all
	hub.register <- lightsOnly
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(fanEvent(40))
	hub.Broadcast(events.Event{Type: events.EventLighting, Data: events.Lighting{Device: "1:2", Mode: "full"}})
	time.Sleep(20 * time.Millisecond)

	if n := len(all.send); n != 2 {
		t.Errorf("unfiltered client got %d messages, want 2", n)
	}
	if n := len(lightsOnly.send); n != 1 {
		t.Fatalf("filtered client got %d messages, want 1", n)
	}
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(<-lightsOnly.send, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != events.EventLighting {
		t.Errorf("type = %q", ev.Type)
	}
}

func TestWSHubSlowClientEviction(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 64)}

	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(fanEvent(10))
	time.Sleep(10 * time.Millisecond)
	hub.Broadcast(fanEvent(20))
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, slowPresent := hub.clients[slow]
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()

	if slowPresent {
		t.Error("slow client should have been evicted")
	}
	if !fastPresent {
		t.Error("fast client should still be present")
	}
}

func TestWSHubFanoutSkipsUnsubscribedFullClient(t *testing.T) {
	hub := newTestHub()
	lights := &wsClient{send: make(chan []byte), types: map[string]bool{events.EventLighting: true}}
	hub.clients[lights] = struct{}{}

	hub.fanout(fanEvent(30))
	if _, ok := hub.clients[lights]; !ok {
		t.Fatal("client dropped for an event type it did not subscribe to")
	}

	hub.fanout(events.Event{Type: events.EventLighting, Data: events.Lighting{Device: "1:1", Mode: "full"}})
	if _, ok := hub.clients[lights]; ok {
		t.Error("full client kept after a subscribed event")
	}
	if _, open := <-lights.send; open {
		t.Error("send channel not closed on drop")
	}
}

func TestWSHubBroadcastDropsWhenFull(t *testing.T) {
	hub := newTestHub()
	// Not running: nothing drains the queue.
	defer hub.Stop()

	for i := 0; i < 256; i++ {
		hub.Broadcast(fanEvent(i % 100))
	}

	done := make(chan struct{})
	go func() {
		hub.Broadcast(fanEvent(1))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Broadcast blocked when channel is full")
	}
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	hub.Stop() // idempotent
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("client.send should be closed after hub stop")
	}
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", nil},
		{"types=", nil},
		{"types=fan_speed", []string{"fan_speed"}},
		{"types=fan_speed,%20lighting,", []string{"fan_speed", "lighting"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws?"+tt.query, nil)
			got := parseTypes(r)
			if len(got) != len(tt.want) {
				t.Fatalf("types = %v, want %v", got, tt.want)
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("missing %q", w)
				}
			}
		})
	}
}

func TestWSStream(t *testing.T) {
	srv, d, _ := setupTestServer(t, "")
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?types=daemon_state"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	var msg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != snapshotType {
		t.Fatalf("first message type = %q, want snapshot", msg.Type)
	}

	// Registration races the first broadcast; retry until the hub has us.
	deadline := time.Now().Add(2 * time.Second)
	for {
		srv.wsHub.mu.RLock()
		n := len(srv.wsHub.clients)
		srv.wsHub.mu.RUnlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	defer d.Stop()

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != events.EventDaemonState || !strings.Contains(string(msg.Data), "running") {
		t.Errorf("message = %s %s", msg.Type, msg.Data)
	}
}
