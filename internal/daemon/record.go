package daemon

import (
	"log/slog"
	"time"

	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
	"ttrgbplus/internal/store"
)

// recorder persists bus events to the store.
type recorder struct {
	store  store.Store
	models map[string]string
	logger *slog.Logger
}

func newRecorder(s store.Store, reg *device.Registry, logger *slog.Logger) *recorder {
	models := make(map[string]string)
	for _, ep := range reg.Endpoints() {
		models[ep.ID().String()] = ep.Model().Name
	}
	return &recorder{store: s, models: models, logger: logger}
}

func (r *recorder) handle(e events.Event) {
	var err error
	switch data := e.Data.(type) {
	case events.FanSpeed:
		err = r.update(data.Device, data.Time, func(t *store.Telemetry) {
			speed := data.Speed
			t.SetSpeed = &speed
			t.Group = data.Group
			t.LastError = ""
		})
	case events.FanTelemetry:
		err = r.update(data.Device, data.Time, func(t *store.Telemetry) {
			speed, rpm := data.Speed, data.RPM
			t.Speed = &speed
			t.RPM = &rpm
		})
	case events.Lighting:
		err = r.update(data.Device, data.Time, func(t *store.Telemetry) {
			t.Lighting = data.Mode
			t.Colors = data.Colors
			t.LastError = ""
		})
	case events.DeviceError:
		err = r.update(data.Device, data.Time, func(t *store.Telemetry) {
			t.LastError = data.Error
		})
	case events.GroupState:
		err = r.store.SaveGroup(&store.GroupRecord{
			Name:    data.Group,
			Kind:    data.Kind,
			Model:   data.Model,
			Running: data.Running,
			Devices: data.Devices,
			Updated: time.Now(),
		})
	default:
		return
	}
	if err != nil {
		r.logger.Warn("record event", "type", e.Type, "err", err)
	}
}

func (r *recorder) update(device string, at time.Time, fn func(t *store.Telemetry)) error {
	return r.store.UpdateTelemetry(device, func(t *store.Telemetry) error {
		fn(t)
		if t.Model == "" {
			t.Model = r.models[device]
		}
		t.Updated = at
		return nil
	})
}
