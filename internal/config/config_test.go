package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `
controllers:
  - unit: 1
    type: g3
    devices:
      3: Riing Plus
      1: Riing Plus
      2: Floe Riing RGB
  - unit: 2
    type: riingtrio
    transport: serial
    path: /dev/ttyACM0
    devices:
      1: Riing Plus

fan_managers:
  - setting: cpu
    model: curve
    sensor_name: k10temp
    points:
      - [30, 20]
      - [60, 80]
    devices:
      1: [3, 1]
  - setting: Default
    model: locked_speed
    speed: 40

lighting_manager:
  - setting: default
    model: full
    r: 255
    g: 0
    b: 64

mqtt:
  enabled: true
  broker: tcp://localhost:1883
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}

	if len(cfg.Controllers) != 2 {
		t.Fatalf("controllers = %d, want 2", len(cfg.Controllers))
	}
	c1 := cfg.Controllers[0]
	if c1.Type != "g3" || c1.Unit != 1 {
		t.Errorf("controller 1 = %+v", c1)
	}
	wantPorts := []int{3, 1, 2}
	if len(c1.Devices) != len(wantPorts) {
		t.Fatalf("devices = %d", len(c1.Devices))
	}
	for i, p := range wantPorts {
		if c1.Devices[i].Port != p {
			t.Errorf("device %d port = %d, want %d (declaration order)", i, c1.Devices[i].Port, p)
		}
	}
	if c1.Devices[2].Model != "Floe Riing RGB" {
		t.Errorf("model = %q", c1.Devices[2].Model)
	}
	if cfg.Controllers[1].Transport != "serial" || cfg.Controllers[1].Path != "/dev/ttyACM0" {
		t.Errorf("controller 2 transport override = %+v", cfg.Controllers[1])
	}

	if len(cfg.FanManagers) != 2 {
		t.Fatalf("fan managers = %d", len(cfg.FanManagers))
	}
	cpu := cfg.FanManagers[0]
	if cpu.Setting != "cpu" || cpu.Model != "curve" {
		t.Errorf("cpu group = %+v", cpu)
	}
	if len(cpu.Devices) != 2 || cpu.Devices[0] != (DeviceRef{1, 3}) || cpu.Devices[1] != (DeviceRef{1, 1}) {
		t.Errorf("cpu devices = %v", cpu.Devices)
	}
	if cpu.Params["sensor_name"] != "k10temp" {
		t.Errorf("params = %v", cpu.Params)
	}
	if _, ok := cpu.Params["devices"]; ok {
		t.Error("devices leaked into params")
	}
	if !cfg.FanManagers[1].IsDefault() {
		t.Error("Default should be recognized case-insensitively")
	}

	if len(cfg.LightingManagers) != 1 || cfg.LightingManagers[0].Model != "full" {
		t.Errorf("lighting = %+v", cfg.LightingManagers)
	}

	// Defaults.
	if cfg.Transport.Type != "hidraw" {
		t.Errorf("transport default = %q", cfg.Transport.Type)
	}
	if cfg.MQTT.TopicPrefix != "ttrgbplus" {
		t.Errorf("topic prefix default = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.Sensors.Smoothing != 1 {
		t.Errorf("smoothing default = %d", cfg.Sensors.Smoothing)
	}
}

func TestGroupDecodeParams(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatal(err)
	}
	var p struct {
		Sensor string   `yaml:"sensor_name"`
		Points [][2]int `yaml:"points"`
	}
	if err := cfg.FanManagers[0].Decode(&p); err != nil {
		t.Fatal(err)
	}
	if p.Sensor != "k10temp" || len(p.Points) != 2 || p.Points[1] != [2]int{60, 80} {
		t.Errorf("decoded = %+v", p)
	}
}

func TestSingleMappingManager(t *testing.T) {
	data := `
controllers:
  - unit: 1
    type: g3
fan_managers:
  model: temp_target
  target: 40
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.FanManagers) != 1 {
		t.Fatalf("fan managers = %d", len(cfg.FanManagers))
	}
	if !cfg.FanManagers[0].IsDefault() {
		t.Errorf("setting = %q, want default", cfg.FanManagers[0].Setting)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no controllers", "fan_managers: []"},
		{"bad unit", "controllers:\n  - unit: 0\n    type: g3\n"},
		{"duplicate unit", "controllers:\n  - {unit: 1, type: g3}\n  - {unit: 1, type: g3}\n"},
		{"missing type", "controllers:\n  - unit: 1\n"},
		{"bad transport", "transport: {type: bluetooth}\ncontrollers:\n  - {unit: 1, type: g3}\n"},
		{"missing model", "controllers:\n  - {unit: 1, type: g3}\nfan_managers:\n  - setting: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf("fan_managers", "cpu", "device %s not found", DeviceRef{1, 4})
	want := `config: fan_managers "cpu": device 1:4 not found`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
