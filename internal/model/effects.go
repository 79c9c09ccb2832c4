package model

import (
	"fmt"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
)

func init() {
	RegisterEffect("alternating", newAlternating)
	RegisterEffect("full", newFull)
	RegisterEffect("off", newOff)
	RegisterEffect("off-light", newOff)
	RegisterEffect("per-led", newPerLED)
	RegisterEffect("flow", hardware(protocol.ModeFlow, colorsNone))
	RegisterEffect("spectrum", hardware(protocol.ModeSpectrum, colorsNone))
	RegisterEffect("ripple", hardware(protocol.ModeRipple, colorsOne))
	RegisterEffect("blink", hardware(protocol.ModeBlink, colorsPerLED))
	RegisterEffect("pulse", hardware(protocol.ModePulse, colorsPerLED))
	RegisterEffect("wave", hardware(protocol.ModeWave, colorsPerLED))
}

// static is a frame written once at group start.
type static struct {
	name   string
	mode   protocol.LightMode
	speed  protocol.LightSpeed
	colors func(ledCount int) []protocol.Color
}

func (s *static) Period() time.Duration { return 0 }
func (s *static) Update() error         { return nil }
func (s *static) String() string        { return s.name }

func (s *static) Render(ledCount int) Frame {
	f := Frame{Mode: s.mode, Speed: s.speed}
	if s.colors != nil {
		f.Colors = s.colors(ledCount)
	}
	return f
}

// NewSolid returns an effect that sets every LED to c via the hardware
// full-color mode.
func NewSolid(c protocol.Color) Effect {
	return &static{
		name: "full " + c.String(),
		mode: protocol.ModeFull,
		colors: func(int) []protocol.Color {
			return []protocol.Color{c}
		},
	}
}

func newFull(cfg config.GroupConfig, _ Env) (Effect, error) {
	var p colorParams
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	c, err := p.color()
	if err != nil {
		return nil, err
	}
	return NewSolid(c), nil
}

func newOff(config.GroupConfig, Env) (Effect, error) {
	e := NewSolid(protocol.Color{}).(*static)
	e.name = "off"
	return e, nil
}

// NewAlternating colors even-indexed LEDs (0, 2, ...) with even and the rest
// with odd.
func NewAlternating(odd, even protocol.Color) Effect {
	return &static{
		name: fmt.Sprintf("alternating %s %s", odd, even),
		mode: protocol.ModePerLED,
		colors: func(n int) []protocol.Color {
			out := make([]protocol.Color, n)
			for i := range out {
				if i%2 == 0 {
					out[i] = even
				} else {
					out[i] = odd
				}
			}
			return out
		},
	}
}

func newAlternating(cfg config.GroupConfig, _ Env) (Effect, error) {
	var p struct {
		Odd  *protocol.Color `yaml:"odd_rgb"`
		Even *protocol.Color `yaml:"even_rgb"`
	}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	if p.Odd == nil || p.Even == nil {
		return nil, fmt.Errorf("odd_rgb and even_rgb are required")
	}
	return NewAlternating(*p.Odd, *p.Even), nil
}

func newPerLED(cfg config.GroupConfig, _ Env) (Effect, error) {
	var p colorParams
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	palette, err := p.palette()
	if err != nil {
		return nil, err
	}
	return &static{
		name: fmt.Sprintf("per-led %v", palette),
		mode: protocol.ModePerLED,
		colors: func(n int) []protocol.Color {
			return repeat(palette, n)
		},
	}, nil
}

type colorCount int

const (
	colorsNone colorCount = iota
	colorsOne
	colorsPerLED
)

// hardware builds constructors for the controller's animated modes.
func hardware(mode protocol.LightMode, count colorCount) EffectConstructor {
	return func(cfg config.GroupConfig, _ Env) (Effect, error) {
		sp := struct {
			Speed string `yaml:"speed"`
		}{Speed: "extreme"}
		var p colorParams
		if err := cfg.Decode(&sp); err != nil {
			return nil, err
		}
		if err := cfg.Decode(&p); err != nil {
			return nil, err
		}
		speed, err := protocol.ParseLightSpeed(sp.Speed)
		if err != nil {
			return nil, err
		}
		e := &static{
			name:  fmt.Sprintf("%s %s", mode, speed),
			mode:  mode,
			speed: speed,
		}
		switch count {
		case colorsOne:
			c, err := p.color()
			if err != nil {
				return nil, err
			}
			e.name += " " + c.String()
			e.colors = func(int) []protocol.Color { return []protocol.Color{c} }
		case colorsPerLED:
			palette, err := p.palette()
			if err != nil {
				return nil, err
			}
			e.colors = func(n int) []protocol.Color { return repeat(palette, n) }
		}
		return e, nil
	}
}
