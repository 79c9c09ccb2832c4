package model

import (
	"fmt"
	"sync"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
)

func init() {
	RegisterEffect("thermal", newThermal)
}

// Hue anchors of the thermal gradient, in degrees.
const (
	coldHue   = 240.0
	targetHue = 120.0
	hotHue    = 0.0
)

// Thermal paints all LEDs one color whose hue follows the temperature: blue
// at or below Cold, green at Target, red at or above Hot.
type Thermal struct {
	SensorName string
	Cold       float64
	Target     float64
	Hot        float64

	period time.Duration
	env    Env

	mu    sync.Mutex
	color protocol.Color
}

func newThermal(cfg config.GroupConfig, env Env) (Effect, error) {
	p := struct {
		SensorName string  `yaml:"sensor_name"`
		Cold       float64 `yaml:"cold"`
		Target     float64 `yaml:"target"`
		Hot        float64 `yaml:"hot"`
		Speed      string  `yaml:"speed"`
	}{SensorName: DefaultSensor, Cold: 20, Target: 45, Hot: 65, Speed: "normal"}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	speed, err := protocol.ParseLightSpeed(p.Speed)
	if err != nil {
		return nil, err
	}
	t, err := NewThermal(p.Cold, p.Target, p.Hot, TierPeriod(speed))
	if err != nil {
		return nil, err
	}
	t.SensorName = p.SensorName
	t.env = env
	return t, nil
}

// NewThermal validates cold < target < hot.
func NewThermal(cold, target, hot float64, period time.Duration) (*Thermal, error) {
	if !(cold < target && target < hot) {
		return nil, fmt.Errorf("need cold < target < hot, got %v/%v/%v", cold, target, hot)
	}
	return &Thermal{
		SensorName: DefaultSensor,
		Cold:       cold,
		Target:     target,
		Hot:        hot,
		period:     period,
		color:      HSVToRGB(coldHue, 1, 1),
	}, nil
}

// Hue maps a temperature onto the gradient.
func (t *Thermal) Hue(temp float64) float64 {
	switch {
	case temp <= t.Cold:
		return coldHue
	case temp < t.Target:
		return coldHue + (targetHue-coldHue)*(temp-t.Cold)/(t.Target-t.Cold)
	case temp < t.Hot:
		return targetHue + (hotHue-targetHue)*(temp-t.Target)/(t.Hot-t.Target)
	default:
		return hotHue
	}
}

func (t *Thermal) Period() time.Duration { return t.period }

// Update reads the sensor and recomputes the color. On failure the previous
// color is kept.
func (t *Thermal) Update() error {
	temp, err := readTemp(t.env, t.SensorName)
	if err != nil {
		return err
	}
	c := HSVToRGB(t.Hue(temp), 1, 1)
	t.mu.Lock()
	t.color = c
	t.mu.Unlock()
	return nil
}

func (t *Thermal) Render(ledCount int) Frame {
	t.mu.Lock()
	c := t.color
	t.mu.Unlock()
	return Frame{Mode: protocol.ModePerLED, Colors: repeat([]protocol.Color{c}, ledCount)}
}

func (t *Thermal) String() string {
	return fmt.Sprintf("thermal %v/%v/%v°C on sensor %s", t.Cold, t.Target, t.Hot, t.SensorName)
}
