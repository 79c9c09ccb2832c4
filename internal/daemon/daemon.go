// Package daemon wires configuration, controllers and groups together and
// owns their lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
	"ttrgbplus/internal/manager"
	"ttrgbplus/internal/model"
	"ttrgbplus/internal/sensor"
	"ttrgbplus/internal/store"
	"ttrgbplus/internal/transport"
)

// ErrAlreadyStarted is returned by Start on a running daemon.
var ErrAlreadyStarted = errors.New("daemon: already started")

// StatusInterval is how often the supervisor snapshots group state.
const StatusInterval = 30 * time.Second

// Dialer opens the transport for one configured controller.
type Dialer func(cc config.ControllerConfig, vendorID, productID uint16) (transport.Transport, error)

// Options customizes daemon construction. Zero values select the real
// hardware: transports from the config, hwmon sensors, no store.
type Options struct {
	Dial    Dialer
	Sensors sensor.Reader
	Store   store.Store
	Bus     *events.Bus
	Logger  *slog.Logger

	// StatusInterval overrides the package default.
	StatusInterval time.Duration
}

// Daemon is the running controller service.
type Daemon struct {
	cfg      *config.Config
	reg      *device.Registry
	bus      *events.Bus
	store    store.Store
	fans     *manager.Assignment
	lights   *manager.Assignment
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	unsub   func()
}

// New opens every controller, attaches the configured devices and resolves
// both manager sections. Any error is returned before a goroutine starts,
// and everything opened so far is closed.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "daemon")
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(logger)
	}
	dial := opts.Dial
	if dial == nil {
		dial = hardwareDialer(cfg.Transport, logger)
	}

	reg, err := buildRegistry(cfg, dial, logger)
	if err != nil {
		return nil, err
	}

	sensors := opts.Sensors
	if sensors == nil {
		hw := sensor.NewHwmon(cfg.Sensors.HwmonRoot)
		if cfg.Sensors.Smoothing > 1 {
			sensors = sensor.NewSmoothed(hw, cfg.Sensors.Smoothing)
		} else {
			sensors = hw
		}
	}
	env := model.Env{Sensors: sensors, Logger: logger}
	mopts := manager.Options{Bus: bus, Logger: logger, ReadRPM: cfg.Fans.ReadRPM}

	fans, err := manager.Resolve(cfg.FanManagers, reg, manager.KindFan, manager.FanBuilder(env, mopts), logger)
	if err != nil {
		closeControllers(reg, logger)
		return nil, err
	}
	lights, err := manager.Resolve(cfg.LightingManagers, reg, manager.KindLighting, manager.LightingBuilder(env, mopts), logger)
	if err != nil {
		fans.Close()
		closeControllers(reg, logger)
		return nil, err
	}

	interval := opts.StatusInterval
	if interval <= 0 {
		interval = StatusInterval
	}
	return &Daemon{
		cfg:      cfg,
		reg:      reg,
		bus:      bus,
		store:    opts.Store,
		fans:     fans,
		lights:   lights,
		logger:   logger,
		interval: interval,
	}, nil
}

func hardwareDialer(global config.TransportConfig, logger *slog.Logger) Dialer {
	return func(cc config.ControllerConfig, vid, pid uint16) (transport.Transport, error) {
		tc := transport.Config{
			Type:       global.Type,
			Path:       global.Path,
			Baud:       global.Baud,
			HidrawRoot: global.HidrawRoot,
			DevDir:     global.DevDir,
		}
		if cc.Transport != "" {
			tc.Type = cc.Transport
		}
		// A global path only makes sense for a single board.
		if cc.Path != "" {
			tc.Path = cc.Path
		}
		return transport.Open(tc, vid, pid, logger)
	}
}

func buildRegistry(cfg *config.Config, dial Dialer, logger *slog.Logger) (*device.Registry, error) {
	reg := device.NewRegistry()
	for _, cc := range cfg.Controllers {
		cc := cc
		open := func(vid, pid uint16) (transport.Transport, error) {
			return dial(cc, vid, pid)
		}
		ctrl, err := device.NewController(cc.Type, cc.Unit, open, logger, device.WithProductID(cc.ProductID))
		if err != nil {
			closeControllers(reg, logger)
			return nil, err
		}
		if err := reg.AddController(ctrl); err != nil {
			ctrl.Close()
			closeControllers(reg, logger)
			return nil, err
		}
		for _, pm := range cc.Devices {
			if _, err := reg.Attach(ctrl, pm.Port, pm.Model); err != nil {
				closeControllers(reg, logger)
				var cerr *config.Error
				if errors.As(err, &cerr) {
					return nil, err
				}
				return nil, config.Errorf("controllers", fmt.Sprintf("unit %d", cc.Unit), "%w", err)
			}
		}
	}
	logger.Info("devices registered", "controllers", len(reg.Controllers()), "devices", len(reg.Endpoints()))
	return reg, nil
}

func closeControllers(reg *device.Registry, logger *slog.Logger) {
	for _, c := range reg.Controllers() {
		if err := c.Close(); err != nil {
			logger.Warn("close controller", "unit", c.Unit(), "err", err)
		}
	}
}

// Registry returns the device registry.
func (d *Daemon) Registry() *device.Registry { return d.reg }

// Bus returns the event bus.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Store returns the telemetry store, or nil.
func (d *Daemon) Store() store.Store { return d.store }

// Groups returns fan groups then lighting groups, each in declaration order
// with the default group last.
func (d *Daemon) Groups() []manager.Group {
	out := make([]manager.Group, 0, len(d.fans.Groups)+len(d.lights.Groups))
	out = append(out, d.fans.Groups...)
	return append(out, d.lights.Groups...)
}

// Running reports whether Start has been called without a matching Stop.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Start starts every group and the supervisor.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyStarted
	}
	if d.store != nil {
		d.unsub = d.bus.OnAll(newRecorder(d.store, d.reg, d.logger).handle)
	}

	var started []manager.Group
	for _, g := range d.Groups() {
		if err := g.Start(); err != nil {
			for _, s := range started {
				s.Stop()
			}
			d.unsubscribe()
			return err
		}
		started = append(started, g)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.supervise(ctx)

	d.running = true
	d.logger.Info("daemon started", "groups", len(started))
	d.bus.Emit(events.Event{Type: events.EventDaemonState, Data: events.DaemonState{State: "running"}})
	return nil
}

// Stop stops the lighting groups, then the fan groups, then the supervisor,
// and finally asks each controller to save its profile. Save failures are
// logged and do not fail Stop.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	for _, g := range d.lights.Groups {
		g.Stop()
	}
	for _, g := range d.fans.Groups {
		g.Stop()
	}
	d.cancel()
	d.wg.Wait()

	d.saveProfiles()
	d.snapshot()

	d.running = false
	d.bus.Emit(events.Event{Type: events.EventDaemonState, Data: events.DaemonState{State: "stopped"}})
	d.unsubscribe()
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and releases models and transports.
func (d *Daemon) Close() error {
	d.Stop()
	d.fans.Close()
	d.lights.Close()
	closeControllers(d.reg, d.logger)
	return nil
}

func (d *Daemon) unsubscribe() {
	if d.unsub != nil {
		d.unsub()
		d.unsub = nil
	}
}

func (d *Daemon) saveProfiles() {
	for _, c := range d.reg.Controllers() {
		err := c.SaveProfile()
		rec := &store.ProfileRecord{Unit: c.Unit(), Type: c.Type(), SavedAt: time.Now()}
		if err != nil {
			rec.Error = err.Error()
			d.logger.Warn("save profile", "unit", c.Unit(), "err", err)
		} else {
			d.logger.Info("profile saved", "unit", c.Unit())
		}
		if d.store != nil {
			if err := d.store.SaveProfile(rec); err != nil {
				d.logger.Warn("record profile save", "unit", c.Unit(), "err", err)
			}
		}
	}
}

// supervise periodically persists group state until ctx is cancelled.
func (d *Daemon) supervise(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.snapshot()
		}
	}
}

func (d *Daemon) snapshot() {
	if d.store == nil {
		return
	}
	now := time.Now()
	for _, g := range d.Groups() {
		st := g.Status()
		rec := &store.GroupRecord{
			Name:    st.Name,
			Kind:    st.Kind,
			Model:   st.Model,
			Running: st.Running,
			Devices: len(st.Devices),
			Updated: now,
		}
		if err := d.store.SaveGroup(rec); err != nil {
			d.logger.Warn("record group state", "group", st.Name, "err", err)
		}
	}
}
