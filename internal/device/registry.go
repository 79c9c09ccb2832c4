// Package device holds the controllers and the device endpoints attached to
// their ports. The registry is built once at startup and is read-only after.
package device

import (
	"fmt"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
)

// ID identifies an endpoint as unit:port.
type ID struct {
	Unit int
	Port int
}

func (id ID) String() string { return fmt.Sprintf("%d:%d", id.Unit, id.Port) }

// Endpoint is one fan, pump or LED unit on a controller port.
type Endpoint struct {
	id    ID
	model Model
	ctrl  *Controller
}

// ID returns the endpoint's unit:port identity.
func (e *Endpoint) ID() ID { return e.id }

// Model returns the catalog entry the endpoint was attached as.
func (e *Endpoint) Model() Model { return e.model }

// Capabilities returns what the endpoint can be driven as.
func (e *Endpoint) Capabilities() Capability { return e.model.Capabilities }

// LEDCount returns the number of addressable LEDs.
func (e *Endpoint) LEDCount() int { return e.model.LEDCount }

// Controller returns the board the endpoint is attached to.
func (e *Endpoint) Controller() *Controller { return e.ctrl }

// SetFanSpeed writes a speed percentage.
func (e *Endpoint) SetFanSpeed(speed int) error {
	if !e.model.Capabilities.Has(CapFan) {
		return fmt.Errorf("%s (%s): set fan speed: %w", e.id, e.model.Name, ErrCapability)
	}
	frame, err := protocol.EncodeFanSpeed(uint8(e.id.Port), speed)
	if err != nil {
		return fmt.Errorf("%s: %w", e.id, err)
	}
	if err := e.ctrl.Write(frame); err != nil {
		return fmt.Errorf("%s: set fan speed: %w", e.id, err)
	}
	return nil
}

// FanStatus reads back the fan's speed and RPM.
func (e *Endpoint) FanStatus() (protocol.FanReply, error) {
	if !e.model.Capabilities.Has(CapFan) {
		return protocol.FanReply{}, fmt.Errorf("%s (%s): fan status: %w", e.id, e.model.Name, ErrCapability)
	}
	raw, err := e.ctrl.Transact(protocol.EncodeFanQuery(uint8(e.id.Port)))
	if err != nil {
		return protocol.FanReply{}, fmt.Errorf("%s: fan status: %w", e.id, err)
	}
	reply, err := protocol.DecodeFanReply(raw)
	if err != nil {
		return protocol.FanReply{}, fmt.Errorf("%s: %w", e.id, err)
	}
	if int(reply.Port) != e.id.Port {
		return reply, fmt.Errorf("%s: reply for port %d: %w", e.id, reply.Port, ErrBadReply)
	}
	return reply, nil
}

// SetLighting writes a lighting frame. colors must already be in wire order
// and sized for the mode (see protocol.EncodeLighting).
func (e *Endpoint) SetLighting(mode protocol.LightMode, speed protocol.LightSpeed, colors []byte) error {
	if !e.model.Capabilities.Has(CapLight) {
		return fmt.Errorf("%s (%s): set lighting: %w", e.id, e.model.Name, ErrCapability)
	}
	frame, err := protocol.EncodeLighting(uint8(e.id.Port), mode, speed, colors)
	if err != nil {
		return fmt.Errorf("%s: %w", e.id, err)
	}
	if err := e.ctrl.Write(frame); err != nil {
		return fmt.Errorf("%s: set lighting: %w", e.id, err)
	}
	return nil
}

// Registry owns every controller and endpoint.
type Registry struct {
	controllers []*Controller
	byUnit      map[int]*Controller
	endpoints   []*Endpoint
	byID        map[ID]*Endpoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUnit: make(map[int]*Controller),
		byID:   make(map[ID]*Endpoint),
	}
}

// AddController registers a controller. Units must be unique.
func (r *Registry) AddController(c *Controller) error {
	if _, ok := r.byUnit[c.Unit()]; ok {
		return config.Errorf("controllers", fmt.Sprintf("unit %d", c.Unit()), "duplicate unit")
	}
	r.byUnit[c.Unit()] = c
	r.controllers = append(r.controllers, c)
	return nil
}

// Attach registers a device of the named model on a controller port.
func (r *Registry) Attach(c *Controller, port int, modelName string) (*Endpoint, error) {
	id := ID{Unit: c.Unit(), Port: port}
	model, ok := LookupModel(modelName)
	if !ok {
		return nil, config.Errorf("controllers", id.String(), "unknown device model %q", modelName)
	}
	if port < 1 || port > c.Ports() {
		return nil, fmt.Errorf("%s: %w (board has ports 1-%d)", id, ErrPortRange, c.Ports())
	}
	if _, ok := r.byID[id]; ok {
		return nil, fmt.Errorf("%s: %w", id, ErrDuplicatePort)
	}
	if _, ok := r.byUnit[c.Unit()]; !ok {
		if err := r.AddController(c); err != nil {
			return nil, err
		}
	}
	ep := &Endpoint{id: id, model: model, ctrl: c}
	r.byID[id] = ep
	r.endpoints = append(r.endpoints, ep)
	return ep, nil
}

// Lookup returns the endpoint at unit:port.
func (r *Registry) Lookup(unit, port int) (*Endpoint, error) {
	ep, ok := r.byID[ID{Unit: unit, Port: port}]
	if !ok {
		return nil, fmt.Errorf("%d:%d: %w", unit, port, ErrNotFound)
	}
	return ep, nil
}

// Endpoints returns all endpoints in registration order.
func (r *Registry) Endpoints() []*Endpoint {
	out := make([]*Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Controllers returns all controllers in registration order.
func (r *Registry) Controllers() []*Controller {
	out := make([]*Controller, len(r.controllers))
	copy(out, r.controllers)
	return out
}

// Controller returns the controller for a unit, or nil.
func (r *Registry) Controller(unit int) *Controller {
	return r.byUnit[unit]
}
