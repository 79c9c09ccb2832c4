package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"ttrgbplus/internal/protocol"
)

// HSVToRGB converts hue (degrees), saturation and value (0..1) to RGB.
func HSVToRGB(h, s, v float64) protocol.Color {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	s = clamp(s, 0, 1)
	v = clamp(v, 0, 1)

	h60 := h / 60
	sector := math.Floor(h60)
	f := h60 - sector
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch int(sector) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	case 5:
		r, g, b = v, p, q
	}
	return protocol.Color{R: to8(r), G: to8(g), B: to8(b)}
}

func to8(x float64) uint8 { return uint8(math.Round(x * 255)) }

// colorParams is the r, g, b keys a group may carry at top level, or a
// colors list.
type colorParams struct {
	R      *uint8           `yaml:"r"`
	G      *uint8           `yaml:"g"`
	B      *uint8           `yaml:"b"`
	Colors []protocol.Color `yaml:"colors"`
}

func (p colorParams) set() bool { return p.R != nil || p.G != nil || p.B != nil }

func (p colorParams) color() (protocol.Color, error) {
	var missing []string
	if p.R == nil {
		missing = append(missing, "r")
	}
	if p.G == nil {
		missing = append(missing, "g")
	}
	if p.B == nil {
		missing = append(missing, "b")
	}
	if len(missing) > 0 {
		return protocol.Color{}, fmt.Errorf("missing color component %s", strings.Join(missing, ", "))
	}
	return protocol.Color{R: *p.R, G: *p.G, B: *p.B}, nil
}

func (p colorParams) palette() ([]protocol.Color, error) {
	if len(p.Colors) > 0 {
		if p.set() {
			return nil, fmt.Errorf("use either r/g/b or colors, not both")
		}
		return p.Colors, nil
	}
	c, err := p.color()
	if err != nil {
		return nil, err
	}
	return []protocol.Color{c}, nil
}

// tierPeriods is the redraw interval of periodic effects per speed tier.
var tierPeriods = map[protocol.LightSpeed]time.Duration{
	protocol.SpeedSlow:    time.Second,
	protocol.SpeedNormal:  750 * time.Millisecond,
	protocol.SpeedFast:    500 * time.Millisecond,
	protocol.SpeedExtreme: 250 * time.Millisecond,
}

// TierPeriod returns the redraw interval for a speed tier.
func TierPeriod(s protocol.LightSpeed) time.Duration {
	if d, ok := tierPeriods[s]; ok {
		return d
	}
	return tierPeriods[protocol.SpeedNormal]
}

// repeat cycles colors to fill n LEDs.
func repeat(colors []protocol.Color, n int) []protocol.Color {
	out := make([]protocol.Color, n)
	if len(colors) == 0 {
		return out
	}
	for i := range out {
		out[i] = colors[i%len(colors)]
	}
	return out
}
