package manager

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
	"ttrgbplus/internal/model"
)

// FanGroup drives a fan model over its devices once per interval. A speed
// is only written to a device when it differs from the last value that
// device accepted, so a failed write is retried on the next tick.
type FanGroup struct {
	name     string
	modelTag string
	model    model.FanModel
	devices  []*device.Endpoint
	interval time.Duration
	readRPM  bool
	bus      *events.Bus
	logger   *slog.Logger

	loop
	status  status
	applied map[device.ID]int // loop goroutine only
}

// NewFanGroup creates a stopped fan group.
func NewFanGroup(name, modelTag string, m model.FanModel, devices []*device.Endpoint, opts Options) *FanGroup {
	interval := opts.Interval
	if interval <= 0 {
		interval = FanInterval
	}
	return &FanGroup{
		name:     name,
		modelTag: modelTag,
		model:    m,
		devices:  copyEndpoints(devices),
		interval: interval,
		readRPM:  opts.ReadRPM,
		bus:      opts.Bus,
		logger:   opts.logger().With("component", "fan", "group", name),
		applied:  make(map[device.ID]int),
	}
}

// FanBuilder returns a Builder that constructs fan groups.
func FanBuilder(env model.Env, opts Options) Builder {
	return func(cfg config.GroupConfig, devices []*device.Endpoint) (Group, error) {
		m, err := model.NewFan(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewFanGroup(cfg.Setting, cfg.Model, m, devices, opts), nil
	}
}

func (g *FanGroup) Name() string                { return g.name }
func (g *FanGroup) Kind() Kind                  { return KindFan }
func (g *FanGroup) Devices() []*device.Endpoint { return copyEndpoints(g.devices) }
func (g *FanGroup) Running() bool               { return g.isRunning() }

// Start launches the control loop.
func (g *FanGroup) Start() error {
	if err := g.start(g.run); err != nil {
		return fmt.Errorf("fan group %q: %w", g.name, err)
	}
	g.logger.Info("fan group started", "model", g.model.String(), "devices", len(g.devices))
	g.emitState(true)
	return nil
}

// Stop ends the control loop and waits for it to exit.
func (g *FanGroup) Stop() {
	if g.stop() {
		g.logger.Info("fan group stopped")
		g.emitState(false)
	}
}

// Close stops the group and releases its model.
func (g *FanGroup) Close() error {
	g.Stop()
	closeModel(g.model, g.logger)
	return nil
}

func (g *FanGroup) Status() Status {
	st := Status{
		Name:    g.name,
		Kind:    KindFan.String(),
		Model:   g.modelTag,
		Policy:  g.model.String(),
		Running: g.Running(),
		Devices: deviceIDs(g.devices),
	}
	g.status.fill(&st)
	return st
}

func (g *FanGroup) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		g.tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick evaluates the model once and writes the result.
func (g *FanGroup) tick() {
	raw, err := g.model.Speed()
	if err != nil {
		g.logger.Warn("fan model", "err", err)
		g.status.set("", err)
		return
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		err := fmt.Errorf("%s returned %v", g.model, raw)
		g.logger.Warn("fan model", "err", err)
		g.status.set("", err)
		return
	}
	speed := int(math.Round(raw))
	if speed < 0 {
		speed = 0
	} else if speed > 100 {
		speed = 100
	}

	var lastErr error
	for _, ep := range g.devices {
		if g.readRPM {
			g.readStatus(ep)
		}
		if prev, ok := g.applied[ep.ID()]; ok && prev == speed {
			continue
		}
		if err := ep.SetFanSpeed(speed); err != nil {
			delete(g.applied, ep.ID())
			lastErr = err
			g.logger.Warn("set fan speed", "device", ep.ID().String(), "speed", speed, "err", err)
			g.bus.Emit(events.Event{Type: events.EventDeviceError, Data: events.DeviceError{
				Device: ep.ID().String(), Group: g.name, Error: err.Error(), Time: time.Now(),
			}})
			continue
		}
		g.applied[ep.ID()] = speed
		g.logger.Debug("fan speed", "device", ep.ID().String(), "speed", speed)
		g.bus.Emit(events.Event{Type: events.EventFanSpeed, Data: events.FanSpeed{
			Device: ep.ID().String(), Group: g.name, Speed: speed, Time: time.Now(),
		}})
	}
	g.status.set(strconv.Itoa(speed)+"%", lastErr)
}

func (g *FanGroup) readStatus(ep *device.Endpoint) {
	st, err := ep.FanStatus()
	if err != nil {
		g.logger.Debug("read fan status", "device", ep.ID().String(), "err", err)
		return
	}
	g.bus.Emit(events.Event{Type: events.EventFanTelemetry, Data: events.FanTelemetry{
		Device: ep.ID().String(), Speed: int(st.Speed), RPM: int(st.RPM), Time: time.Now(),
	}})
}

func (g *FanGroup) emitState(running bool) {
	g.bus.Emit(events.Event{Type: events.EventGroupState, Data: events.GroupState{
		Group: g.name, Kind: KindFan.String(), Model: g.modelTag, Running: running, Devices: len(g.devices),
	}})
}
