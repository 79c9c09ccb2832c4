//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge publishes device state to MQTT with HA autodiscovery.
type Bridge struct {
	client pahomqtt.Client
	bus    *events.Bus
	reg    *device.Registry
	prefix string
	logger *slog.Logger
	unsub  func()

	// Per-device state accumulator.
	mu     sync.Mutex
	states map[string]map[string]any // unit:port -> property map
}

// newClient is replaced in tests.
var newClient = pahomqtt.NewClient

// NewBridge creates and connects an MQTT bridge.
func NewBridge(bus *events.Bus, reg *device.Registry, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		bus:    bus,
		reg:    reg,
		prefix: cfg.TopicPrefix,
		logger: logger.With("component", "mqtt"),
		states: make(map[string]map[string]any),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("ttrgbplus").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The connect handler may run before Connect returns, so the client
	// must be in place first.
	b.client = newClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to daemon events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.bus.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event events.Event) {
	id, props := stateUpdate(event)
	if id == "" {
		return
	}
	b.mu.Lock()
	state, ok := b.states[id]
	if !ok {
		state = make(map[string]any)
		b.states[id] = state
	}
	for k, v := range props {
		state[k] = v
	}
	payload := mustJSON(state)
	b.mu.Unlock()

	b.publish(b.prefix+"/"+topicName(id), payload, true)
}

// stateUpdate maps an event to the device it concerns and the state
// properties it changes. Events that are not about one device return "".
func stateUpdate(event events.Event) (string, map[string]any) {
	switch data := event.Data.(type) {
	case events.FanSpeed:
		return data.Device, map[string]any{
			"speed":     data.Speed,
			"group":     data.Group,
			"error":     "",
			"last_seen": data.Time.Format(time.RFC3339),
		}
	case events.FanTelemetry:
		return data.Device, map[string]any{
			"reported_speed": data.Speed,
			"rpm":            data.RPM,
			"last_seen":      data.Time.Format(time.RFC3339),
		}
	case events.Lighting:
		props := map[string]any{
			"lighting":       data.Mode,
			"lighting_speed": data.Speed,
			"error":          "",
			"last_seen":      data.Time.Format(time.RFC3339),
		}
		if len(data.Colors) > 0 {
			props["color"] = data.Colors[0]
		}
		return data.Device, props
	case events.DeviceError:
		return data.Device, map[string]any{"error": data.Error}
	}
	return "", nil
}

func (b *Bridge) publishBridgeState(state string) {
	topic := b.prefix + "/bridge/state"
	b.publish(topic, []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, ep := range b.reg.Endpoints() {
		dev := describe(ep)
		for _, msg := range buildRemoveDiscovery(dev, b.prefix) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		for _, msg := range buildDiscovery(dev, b.prefix) {
			b.publish(msg.Topic, msg.Payload, true)
		}
		b.logger.Debug("published HA discovery", "device", dev.ID, "name", dev.displayName())
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// topicName turns "unit:port" into the topic-safe "unit_port".
func topicName(id string) string {
	return strings.ReplaceAll(id, ":", "_")
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
