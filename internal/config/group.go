package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSetting is the reserved name of the catch-all group.
const DefaultSetting = "default"

// DeviceRef names one device endpoint as unit:port.
type DeviceRef struct {
	Unit int
	Port int
}

func (r DeviceRef) String() string {
	return fmt.Sprintf("%d:%d", r.Unit, r.Port)
}

// GroupConfig is one fan_managers or lighting_manager entry. Everything other
// than setting, model and devices lands in Params for the model to decode.
type GroupConfig struct {
	Setting string
	Model   string
	Devices []DeviceRef
	Params  map[string]any
}

// IsDefault reports whether the group is the catch-all group.
func (g GroupConfig) IsDefault() bool {
	return strings.EqualFold(strings.TrimSpace(g.Setting), DefaultSetting)
}

// Decode fills out with the group's model parameters.
func (g GroupConfig) Decode(out any) error {
	if len(g.Params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

// UnmarshalYAML keeps device declaration order, which decides write order
// within a group.
func (g *GroupConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: manager entry must be a mapping", node.Line)
	}
	out := GroupConfig{Params: make(map[string]any)}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "setting", "name":
			if err := val.Decode(&out.Setting); err != nil {
				return err
			}
		case "model":
			if err := val.Decode(&out.Model); err != nil {
				return err
			}
		case "devices":
			refs, err := decodeDeviceRefs(val)
			if err != nil {
				return err
			}
			out.Devices = refs
		default:
			var v any
			if err := val.Decode(&v); err != nil {
				return err
			}
			out.Params[key.Value] = v
		}
	}
	if out.Setting == "" {
		out.Setting = DefaultSetting
	}
	*g = out
	return nil
}

// decodeDeviceRefs parses {unit: [port, ...]} preserving order.
func decodeDeviceRefs(node *yaml.Node) ([]DeviceRef, error) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: devices must map unit to a list of ports", node.Line)
	}
	var refs []DeviceRef
	for i := 0; i+1 < len(node.Content); i += 2 {
		var unit int
		if err := node.Content[i].Decode(&unit); err != nil {
			return nil, fmt.Errorf("line %d: unit: %w", node.Content[i].Line, err)
		}
		var ports []int
		val := node.Content[i+1]
		if val.Kind == yaml.ScalarNode {
			var p int
			if err := val.Decode(&p); err != nil {
				return nil, fmt.Errorf("line %d: port: %w", val.Line, err)
			}
			ports = []int{p}
		} else if err := val.Decode(&ports); err != nil {
			return nil, fmt.Errorf("line %d: ports: %w", val.Line, err)
		}
		for _, p := range ports {
			refs = append(refs, DeviceRef{Unit: unit, Port: p})
		}
	}
	return refs, nil
}

// GroupList accepts either a list of groups or a single mapping. A single
// mapping without a setting becomes the default group.
type GroupList []GroupConfig

func (l *GroupList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var groups []GroupConfig
		if err := node.Decode(&groups); err != nil {
			return err
		}
		*l = groups
	case yaml.MappingNode:
		var g GroupConfig
		if err := node.Decode(&g); err != nil {
			return err
		}
		*l = GroupList{g}
	default:
		return fmt.Errorf("line %d: expected a list of managers", node.Line)
	}
	return nil
}
