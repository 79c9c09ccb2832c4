// Package config loads the daemon's YAML configuration into plain records.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration.
type Config struct {
	Controllers      []ControllerConfig `yaml:"controllers"`
	FanManagers      GroupList          `yaml:"fan_managers"`
	LightingManagers GroupList          `yaml:"lighting_manager"`

	Transport TransportConfig `yaml:"transport"`
	Sensors   struct {
		HwmonRoot string `yaml:"hwmon_root"`
		Smoothing int    `yaml:"smoothing"` // samples in the rolling average
	} `yaml:"sensors"`
	Fans struct {
		ReadRPM bool `yaml:"read_rpm"`
	} `yaml:"fans"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// TransportConfig selects how controllers are reached.
type TransportConfig struct {
	Type       string `yaml:"type"` // "hidraw" or "serial"
	Path       string `yaml:"path"` // explicit device node; empty = discover by VID/PID
	Baud       int    `yaml:"baud"`
	HidrawRoot string `yaml:"hidraw_root"`
	DevDir     string `yaml:"dev_dir"`
}

// PortModel binds a controller port to a device model name.
type PortModel struct {
	Port  int
	Model string
}

// ControllerConfig is one controllers entry.
type ControllerConfig struct {
	Type      string
	Unit      int
	Devices   []PortModel
	Transport string // overrides Config.Transport.Type
	Path      string // overrides discovery
	ProductID uint16 // overrides the driver's product ID
}

type controllerYAML struct {
	Type      string    `yaml:"type"`
	Unit      int       `yaml:"unit"`
	Devices   yaml.Node `yaml:"devices"`
	Transport string    `yaml:"transport"`
	Path      string    `yaml:"path"`
	ProductID uint16    `yaml:"product_id"`
}

// UnmarshalYAML keeps the port order of the devices map.
func (c *ControllerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw controllerYAML
	if err := node.Decode(&raw); err != nil {
		return err
	}
	out := ControllerConfig{
		Type:      raw.Type,
		Unit:      raw.Unit,
		Transport: raw.Transport,
		Path:      raw.Path,
		ProductID: raw.ProductID,
	}
	if raw.Devices.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(raw.Devices.Content); i += 2 {
			var pm PortModel
			if err := raw.Devices.Content[i].Decode(&pm.Port); err != nil {
				return fmt.Errorf("line %d: port: %w", raw.Devices.Content[i].Line, err)
			}
			if err := raw.Devices.Content[i+1].Decode(&pm.Model); err != nil {
				return fmt.Errorf("line %d: model: %w", raw.Devices.Content[i+1].Line, err)
			}
			out.Devices = append(out.Devices, pm)
		}
	} else if raw.Devices.Kind != 0 && raw.Devices.Tag != "!!null" {
		return fmt.Errorf("line %d: devices must map port to model", raw.Devices.Line)
	}
	*c = out
	return nil
}

// Load reads, defaults and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Transport.Type == "" {
		c.Transport.Type = "hidraw"
	}
	if c.Transport.Baud == 0 {
		c.Transport.Baud = 115200
	}
	if c.Transport.HidrawRoot == "" {
		c.Transport.HidrawRoot = "/sys/class/hidraw"
	}
	if c.Transport.DevDir == "" {
		c.Transport.DevDir = "/dev"
	}
	if c.Sensors.HwmonRoot == "" {
		c.Sensors.HwmonRoot = "/sys/class/hwmon"
	}
	if c.Sensors.Smoothing <= 0 {
		c.Sensors.Smoothing = 1
	}
	if c.Store.Path == "" {
		c.Store.Path = "ttrgbplus.db"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ttrgbplus"
	}
	if c.Web.Listen == "" {
		c.Web.Listen = "127.0.0.1:8420"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks structural constraints. Model parameters and device
// references are checked later by the resolver and the model constructors.
func (c *Config) Validate() error {
	if len(c.Controllers) == 0 {
		return Errorf("controllers", "", "at least one controller is required")
	}
	if !validTransport(c.Transport.Type) {
		return Errorf("transport", c.Transport.Type, "unknown transport type (supported: hidraw, serial)")
	}
	units := make(map[int]bool)
	for _, ctrl := range c.Controllers {
		name := fmt.Sprintf("unit %d", ctrl.Unit)
		if ctrl.Unit < 1 {
			return Errorf("controllers", name, "unit must be >= 1")
		}
		if units[ctrl.Unit] {
			return Errorf("controllers", name, "duplicate unit")
		}
		units[ctrl.Unit] = true
		if ctrl.Type == "" {
			return Errorf("controllers", name, "type is required")
		}
		if ctrl.Transport != "" && !validTransport(ctrl.Transport) {
			return Errorf("controllers", name, "unknown transport type %q", ctrl.Transport)
		}
		ports := make(map[int]bool)
		for _, pm := range ctrl.Devices {
			if ports[pm.Port] {
				return Errorf("controllers", name, "port %d listed twice", pm.Port)
			}
			ports[pm.Port] = true
		}
	}
	for _, g := range c.FanManagers {
		if g.Model == "" {
			return Errorf("fan_managers", g.Setting, "model is required")
		}
	}
	for _, g := range c.LightingManagers {
		if g.Model == "" {
			return Errorf("lighting_manager", g.Setting, "model is required")
		}
	}
	return nil
}

func validTransport(t string) bool {
	switch strings.ToLower(t) {
	case "hidraw", "serial":
		return true
	}
	return false
}
