package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ttrgbplus/internal/device"
	"ttrgbplus/internal/manager"
	"ttrgbplus/internal/store"
)

// ControllerView is one board in /api/controllers.
type ControllerView struct {
	Unit      int                  `json:"unit"`
	Type      string               `json:"type"`
	ProductID string               `json:"product_id"`
	Ports     int                  `json:"ports"`
	Devices   []string             `json:"devices"`
	Profile   *store.ProfileRecord `json:"last_profile_save,omitempty"`
}

// DeviceView is one endpoint in /api/devices.
type DeviceView struct {
	ID            string           `json:"id"`
	Unit          int              `json:"unit"`
	Port          int              `json:"port"`
	Model         string           `json:"model"`
	Capabilities  string           `json:"capabilities"`
	LEDCount      int              `json:"led_count"`
	FanGroup      string           `json:"fan_group,omitempty"`
	LightingGroup string           `json:"lighting_group,omitempty"`
	Telemetry     *store.Telemetry `json:"telemetry,omitempty"`
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.src.Running() {
		status = "stopped"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status, "version": s.version})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIListControllers(w http.ResponseWriter, r *http.Request) {
	reg := s.src.Registry()
	byUnit := make(map[int][]string)
	for _, ep := range reg.Endpoints() {
		unit := ep.ID().Unit
		byUnit[unit] = append(byUnit[unit], ep.ID().String())
	}

	st := s.src.Store()
	views := make([]ControllerView, 0, len(reg.Controllers()))
	for _, c := range reg.Controllers() {
		v := ControllerView{
			Unit:      c.Unit(),
			Type:      c.Type(),
			ProductID: fmt.Sprintf("0x%04x", c.ProductID()),
			Ports:     c.Ports(),
			Devices:   byUnit[c.Unit()],
		}
		if st != nil {
			if p, err := st.GetProfile(c.Unit()); err == nil {
				v.Profile = p
			} else if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn("read profile record", "unit", c.Unit(), "err", err)
			}
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	owners := s.groupOwners()
	eps := s.src.Registry().Endpoints()
	views := make([]DeviceView, 0, len(eps))
	for _, ep := range eps {
		views = append(views, deviceView(ep, owners))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	unit, port, ok := parseDeviceID(r.PathValue("id"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "device id must be unit:port or unit_port")
		return
	}
	ep, err := s.src.Registry().Lookup(unit, port)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}
	v := deviceView(ep, s.groupOwners())
	if st := s.src.Store(); st != nil {
		t, err := st.GetTelemetry(v.ID)
		switch {
		case err == nil:
			v.Telemetry = t
		case !errors.Is(err, store.ErrNotFound):
			s.logger.Error("get telemetry", "device", v.ID, "err", err)
			s.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleAPIListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.src.Groups()
	out := make([]manager.Status, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Status())
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIListTelemetry(w http.ResponseWriter, r *http.Request) {
	st := s.src.Store()
	if st == nil {
		s.writeError(w, http.StatusServiceUnavailable, "telemetry store disabled")
		return
	}
	list, err := st.ListTelemetry()
	if err != nil {
		s.logger.Error("list telemetry", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAPIListSensors(w http.ResponseWriter, r *http.Request) {
	if s.sensors == nil {
		s.writeError(w, http.StatusServiceUnavailable, "sensor listing unavailable")
		return
	}
	chips, err := s.sensors.Chips()
	if err != nil {
		s.logger.Error("list sensors", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, chips)
}

type owners struct {
	fan, lighting map[string]string
}

// groupOwners maps device ids to the group driving them, per kind.
func (s *Server) groupOwners() owners {
	o := owners{fan: make(map[string]string), lighting: make(map[string]string)}
	for _, g := range s.src.Groups() {
		m := o.lighting
		if g.Kind() == manager.KindFan {
			m = o.fan
		}
		for _, ep := range g.Devices() {
			m[ep.ID().String()] = g.Name()
		}
	}
	return o
}

func deviceView(ep *device.Endpoint, o owners) DeviceView {
	id := ep.ID().String()
	return DeviceView{
		ID:            id,
		Unit:          ep.ID().Unit,
		Port:          ep.ID().Port,
		Model:         ep.Model().Name,
		Capabilities:  ep.Capabilities().String(),
		LEDCount:      ep.LEDCount(),
		FanGroup:      o.fan[id],
		LightingGroup: o.lighting[id],
	}
}

// parseDeviceID accepts "1:2" and the URL-friendly "1_2".
func parseDeviceID(s string) (unit, port int, ok bool) {
	sep := strings.IndexAny(s, ":_")
	if sep < 0 {
		return 0, 0, false
	}
	u, err := strconv.Atoi(s[:sep])
	if err != nil {
		return 0, 0, false
	}
	p, err := strconv.Atoi(s[sep+1:])
	if err != nil {
		return 0, 0, false
	}
	return u, p, true
}
