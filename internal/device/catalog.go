package device

import "strings"

// Capability is a bitmask of what an endpoint can be driven as.
type Capability uint8

const (
	CapFan Capability = 1 << iota
	CapLight
)

// Has reports whether all bits of c2 are set in c.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

func (c Capability) String() string {
	switch c {
	case CapFan:
		return "fan"
	case CapLight:
		return "light"
	case CapFan | CapLight:
		return "fan+light"
	default:
		return "none"
	}
}

// Model describes a supported peripheral.
type Model struct {
	Name         string
	Capabilities Capability
	LEDCount     int
}

var catalog = []Model{
	{Name: "Riing Plus", Capabilities: CapFan | CapLight, LEDCount: 12},
	{Name: "Floe Riing RGB", Capabilities: CapLight, LEDCount: 12},
	{Name: "Pacific PR22-D5 Plus", Capabilities: CapLight, LEDCount: 12},
	{Name: "Pacific W4 Plus CPU Waterblock", Capabilities: CapLight, LEDCount: 12},
	{Name: "Pacific V-GTX 1080Ti Plus GPU Waterblock", Capabilities: CapLight, LEDCount: 12},
	{Name: "Pacific Rad Plus LED Panel", Capabilities: CapLight, LEDCount: 12},
	{Name: "Pacific Plus LED Strip", Capabilities: CapLight, LEDCount: 12},
}

// LookupModel finds a model by name, case-insensitively.
func LookupModel(name string) (Model, bool) {
	name = strings.TrimSpace(name)
	for _, m := range catalog {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return Model{}, false
}

// Models returns all supported models.
func Models() []Model {
	out := make([]Model, len(catalog))
	copy(out, catalog)
	return out
}
