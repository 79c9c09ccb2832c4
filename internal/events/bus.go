// Package events is the in-process pub/sub used to fan daemon activity out
// to the store, the MQTT bridge and WebSocket clients.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Event types
const (
	EventFanSpeed     = "fan_speed"
	EventFanTelemetry = "fan_telemetry"
	EventLighting     = "lighting"
	EventDeviceError  = "device_error"
	EventGroupState   = "group_state"
	EventDaemonState  = "daemon_state"
)

// Event is one published occurrence.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FanSpeed is published when a fan group writes a new speed.
type FanSpeed struct {
	Device string    `json:"device"`
	Group  string    `json:"group"`
	Speed  int       `json:"speed"`
	Time   time.Time `json:"time"`
}

// FanTelemetry is published after a fan status read.
type FanTelemetry struct {
	Device string    `json:"device"`
	Speed  int       `json:"speed"`
	RPM    int       `json:"rpm"`
	Time   time.Time `json:"time"`
}

// Lighting is published when a lighting group writes a frame.
type Lighting struct {
	Device string    `json:"device"`
	Group  string    `json:"group"`
	Mode   string    `json:"mode"`
	Speed  string    `json:"speed"`
	Colors []string  `json:"colors,omitempty"`
	Time   time.Time `json:"time"`
}

// DeviceError is published when a write to one device fails.
type DeviceError struct {
	Device string    `json:"device"`
	Group  string    `json:"group"`
	Error  string    `json:"error"`
	Time   time.Time `json:"time"`
}

// GroupState is published when a group starts or stops.
type GroupState struct {
	Group   string `json:"group"`
	Kind    string `json:"kind"`
	Model   string `json:"model"`
	Running bool   `json:"running"`
	Devices int    `json:"devices"`
}

// DaemonState is published on daemon lifecycle transitions.
type DaemonState struct {
	State string `json:"state"`
}

// Handler is a callback for events.
type Handler func(Event)

// Bus fans events out to subscribers.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]Handler
	allHandlers map[uint64]Handler
	nextID      uint64
	logger      *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers:    make(map[string]map[uint64]Handler),
		allHandlers: make(map[uint64]Handler),
		logger:      logger,
	}
}

// On registers a handler for one event type.
// Returns an unsubscribe function.
func (b *Bus) On(eventType string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}
	b.handlers[eventType][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allHandlers, id)
	}
}

// Emit delivers an event to all matching handlers synchronously.
// A panicking handler is recovered and logged. A nil bus drops the event.
func (b *Bus) Emit(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.allHandlers))
	for _, h := range b.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range b.allHandlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
