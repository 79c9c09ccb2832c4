package manager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
	"ttrgbplus/internal/model"
)

// LightingGroup writes an effect to its devices. Effects without a period
// are written once at Start and the goroutine exits, leaving the group
// Running until Stop. Periodic effects are updated and rewritten every
// period.
type LightingGroup struct {
	name     string
	modelTag string
	effect   model.Effect
	devices  []*device.Endpoint
	bus      *events.Bus
	logger   *slog.Logger

	loop
	status status
}

// NewLightingGroup creates a stopped lighting group.
func NewLightingGroup(name, modelTag string, e model.Effect, devices []*device.Endpoint, opts Options) *LightingGroup {
	return &LightingGroup{
		name:     name,
		modelTag: modelTag,
		effect:   e,
		devices:  copyEndpoints(devices),
		bus:      opts.Bus,
		logger:   opts.logger().With("component", "lighting", "group", name),
	}
}

// LightingBuilder returns a Builder that constructs lighting groups.
func LightingBuilder(env model.Env, opts Options) Builder {
	return func(cfg config.GroupConfig, devices []*device.Endpoint) (Group, error) {
		e, err := model.NewEffect(cfg, env)
		if err != nil {
			return nil, err
		}
		return NewLightingGroup(cfg.Setting, cfg.Model, e, devices, opts), nil
	}
}

func (g *LightingGroup) Name() string                { return g.name }
func (g *LightingGroup) Kind() Kind                  { return KindLighting }
func (g *LightingGroup) Devices() []*device.Endpoint { return copyEndpoints(g.devices) }
func (g *LightingGroup) Running() bool               { return g.isRunning() }

// Start launches the effect.
func (g *LightingGroup) Start() error {
	if err := g.start(g.run); err != nil {
		return fmt.Errorf("lighting group %q: %w", g.name, err)
	}
	g.logger.Info("lighting group started", "effect", g.effect.String(),
		"period", g.effect.Period(), "devices", len(g.devices))
	g.emitState(true)
	return nil
}

// Stop ends the effect loop and waits for it to exit.
func (g *LightingGroup) Stop() {
	if g.stop() {
		g.logger.Info("lighting group stopped")
		g.emitState(false)
	}
}

func (g *LightingGroup) Status() Status {
	st := Status{
		Name:    g.name,
		Kind:    KindLighting.String(),
		Model:   g.modelTag,
		Policy:  g.effect.String(),
		Running: g.Running(),
		Devices: deviceIDs(g.devices),
	}
	g.status.fill(&st)
	return st
}

func (g *LightingGroup) run(ctx context.Context) {
	period := g.effect.Period()
	if period <= 0 {
		g.apply()
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		if err := g.effect.Update(); err != nil {
			g.logger.Warn("lighting update", "err", err)
			g.status.set("", err)
		} else {
			g.apply()
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// apply renders and writes the current frame to every device.
func (g *LightingGroup) apply() {
	var lastErr error
	var output string
	for _, ep := range g.devices {
		frame := g.effect.Render(ep.LEDCount())
		if err := ep.SetLighting(frame.Mode, frame.Speed, frame.Wire()); err != nil {
			lastErr = err
			g.logger.Warn("set lighting", "device", ep.ID().String(), "err", err)
			g.bus.Emit(events.Event{Type: events.EventDeviceError, Data: events.DeviceError{
				Device: ep.ID().String(), Group: g.name, Error: err.Error(), Time: time.Now(),
			}})
			continue
		}
		colors := distinctColors(frame)
		output = fmt.Sprintf("%s %v", frame.Mode, colors)
		g.bus.Emit(events.Event{Type: events.EventLighting, Data: events.Lighting{
			Device: ep.ID().String(), Group: g.name, Mode: frame.Mode.String(),
			Speed: frame.Speed.String(), Colors: colors, Time: time.Now(),
		}})
	}
	g.status.set(output, lastErr)
}

func distinctColors(f model.Frame) []string {
	var out []string
	seen := make(map[string]bool)
	for _, c := range f.Colors {
		s := c.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func (g *LightingGroup) emitState(running bool) {
	g.bus.Emit(events.Event{Type: events.EventGroupState, Data: events.GroupState{
		Group: g.name, Kind: KindLighting.String(), Model: g.modelTag, Running: running, Devices: len(g.devices),
	}})
}
