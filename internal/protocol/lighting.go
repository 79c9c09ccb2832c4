package protocol

import (
	"fmt"
	"strings"
)

// LightMode is a hardware lighting mode. Animated modes are combined with a
// LightSpeed by addition.
type LightMode uint8

const (
	ModeFlow     LightMode = 0x00 // speed only
	ModeSpectrum LightMode = 0x04 // speed only
	ModeRipple   LightMode = 0x08 // speed + 1 color
	ModeBlink    LightMode = 0x0C // speed + one color per LED
	ModePulse    LightMode = 0x10 // speed + one color per LED
	ModeWave     LightMode = 0x14 // speed + one color per LED
	ModePerLED   LightMode = 0x18 // one color per LED
	ModeFull     LightMode = 0x19 // 1 color
)

// String returns the mode name.
func (m LightMode) String() string {
	switch m {
	case ModeFlow:
		return "flow"
	case ModeSpectrum:
		return "spectrum"
	case ModeRipple:
		return "ripple"
	case ModeBlink:
		return "blink"
	case ModePulse:
		return "pulse"
	case ModeWave:
		return "wave"
	case ModePerLED:
		return "per-led"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("0x%02X", uint8(m))
	}
}

// LightSpeed is the hardware animation rate.
type LightSpeed uint8

const (
	SpeedExtreme LightSpeed = 0x00
	SpeedFast    LightSpeed = 0x01
	SpeedNormal  LightSpeed = 0x02
	SpeedSlow    LightSpeed = 0x03
)

// String returns the speed tier name.
func (s LightSpeed) String() string {
	switch s {
	case SpeedExtreme:
		return "extreme"
	case SpeedFast:
		return "fast"
	case SpeedNormal:
		return "normal"
	case SpeedSlow:
		return "slow"
	default:
		return fmt.Sprintf("0x%02X", uint8(s))
	}
}

// ParseLightSpeed parses a speed tier name case-insensitively.
func ParseLightSpeed(s string) (LightSpeed, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extreme":
		return SpeedExtreme, nil
	case "fast":
		return SpeedFast, nil
	case "normal":
		return SpeedNormal, nil
	case "slow":
		return SpeedSlow, nil
	default:
		return 0, fmt.Errorf("unknown lighting speed %q (want slow, normal, fast or extreme)", s)
	}
}

// Color is an 8-bit RGB triple.
type Color struct {
	R uint8 `yaml:"r" json:"r"`
	G uint8 `yaml:"g" json:"g"`
	B uint8 `yaml:"b" json:"b"`
}

// Wire returns the color in controller byte order (green, red, blue).
func (c Color) Wire() []byte {
	return []byte{c.G, c.R, c.B}
}

// String renders the color as #rrggbb.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Fill returns n copies of c in wire order.
func Fill(c Color, n int) []byte {
	out := make([]byte, 0, 3*n)
	for i := 0; i < n; i++ {
		out = append(out, c.Wire()...)
	}
	return out
}

// Flatten concatenates colors in wire order.
func Flatten(colors []Color) []byte {
	out := make([]byte, 0, 3*len(colors))
	for _, c := range colors {
		out = append(out, c.Wire()...)
	}
	return out
}
