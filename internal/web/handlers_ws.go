package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"ttrgbplus/internal/events"
	"ttrgbplus/internal/manager"
)

// snapshotType is the first message every client receives.
const snapshotType = "snapshot"

// WSHub manages WebSocket connections and fans bus events out to them.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan events.Event

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	types map[string]bool // nil = every event type
}

func (c *wsClient) wants(eventType string) bool {
	return c.types == nil || c.types[eventType]
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan events.Event, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop. Clients only ever leave through drop,
// which is the one place their send channel is closed.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client joined", "clients", n)
		case c := <-h.unregister:
			h.mu.Lock()
			h.drop(c)
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("ws client left", "clients", n)
		case ev := <-h.broadcast:
			h.fanout(ev)
		}
	}
}

// drop removes c and closes its send channel. h.mu must be held.
func (h *WSHub) drop(c *wsClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// fanout encodes ev once and hands it to every client subscribed to its
// type. A client whose queue is full is dropped rather than waited on.
func (h *WSHub) fanout(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("ws encode event", "type", ev.Type, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Deleting during range is allowed; c is not revisited.
			h.drop(c)
			h.logger.Warn("ws client dropped, send queue full", "event", ev.Type)
		}
	}
}

// Stop ends Run and disconnects every client. Repeated calls are no-ops.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues an event for every interested client. It never blocks
// the publisher: when the queue is full the event is dropped.
func (h *WSHub) Broadcast(ev events.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("ws broadcast channel full, dropping event", "type", ev.Type)
	}
}

// parseTypes reads ?types=fan_speed,lighting. Empty means every type.
func parseTypes(r *http.Request) map[string]bool {
	raw := r.URL.Query().Get("types")
	if raw == "" {
		return nil
	}
	types := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = true
		}
	}
	if len(types) == 0 {
		return nil
	}
	return types
}

func (s *Server) snapshot() []byte {
	groups := s.src.Groups()
	statuses := make([]manager.Status, 0, len(groups))
	for _, g := range groups {
		statuses = append(statuses, g.Status())
	}
	data, err := json.Marshal(events.Event{Type: snapshotType, Data: map[string]any{
		"running": s.src.Running(),
		"groups":  statuses,
	}})
	if err != nil {
		s.logger.Error("ws snapshot marshal", "err", err)
		return nil
	}
	return data
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	// Without allowed origins the library enforces same-origin.

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}

	conn.SetReadLimit(4096)

	client := &wsClient{
		conn:  conn,
		send:  make(chan []byte, 64),
		types: parseTypes(r),
	}
	if snap := s.snapshot(); snap != nil {
		client.send <- snap
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := client.conn.Write(ctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			return
		}
	}
	// The hub dropped this client.
	client.conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) wsReadPump(client *wsClient) {
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	// The stream is one-way; reads only detect the close.
	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			return
		}
	}
}
