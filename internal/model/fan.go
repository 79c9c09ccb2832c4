package model

import (
	"fmt"
	"sync"

	"ttrgbplus/internal/config"
)

func init() {
	RegisterFan("locked_speed", newLockedSpeed)
	RegisterFan("temp_target", newTempTarget)
	RegisterFan("curve", newCurve)
}

// LockedSpeed always returns the configured speed.
type LockedSpeed struct {
	speed float64
}

func newLockedSpeed(cfg config.GroupConfig, _ Env) (FanModel, error) {
	var p struct {
		Speed *float64 `yaml:"speed"`
	}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	if p.Speed == nil {
		return nil, fmt.Errorf("speed is required")
	}
	return NewLockedSpeed(*p.Speed)
}

// NewLockedSpeed validates speed is within [0,100].
func NewLockedSpeed(speed float64) (*LockedSpeed, error) {
	if speed < 0 || speed > 100 {
		return nil, fmt.Errorf("speed must be between 0 and 100, got %v", speed)
	}
	return &LockedSpeed{speed: speed}, nil
}

func (m *LockedSpeed) Speed() (float64, error) { return m.speed, nil }

func (m *LockedSpeed) String() string { return fmt.Sprintf("locked speed %v%%", m.speed) }

// TempTarget steers toward a target temperature:
//
//	speed = clamp(((temp - target) * multiplier + last) / 2, 0, 100)
//
// last stays at its seed of 10 unless TrackLast is set, in which case it is
// the previous result.
type TempTarget struct {
	SensorName string
	Target     float64
	Multiplier float64
	TrackLast  bool

	env  Env
	mu   sync.Mutex
	last float64
}

func newTempTarget(cfg config.GroupConfig, env Env) (FanModel, error) {
	p := struct {
		SensorName string   `yaml:"sensor_name"`
		Target     *float64 `yaml:"target"`
		Multiplier float64  `yaml:"multiplier"`
		TrackLast  bool     `yaml:"track_last"`
	}{SensorName: DefaultSensor, Multiplier: 5}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	if p.Target == nil {
		return nil, fmt.Errorf("target is required")
	}
	return &TempTarget{
		SensorName: p.SensorName,
		Target:     *p.Target,
		Multiplier: p.Multiplier,
		TrackLast:  p.TrackLast,
		env:        env,
		last:       10,
	}, nil
}

func (m *TempTarget) Speed() (float64, error) {
	temp, err := readTemp(m.env, m.SensorName)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	speed := clamp(((temp-m.Target)*m.Multiplier+m.last)/2, 0, 100)
	if m.TrackLast {
		m.last = speed
	}
	m.env.logger().Debug("temp target", "sensor", m.SensorName, "temp", temp, "speed", speed)
	return speed, nil
}

func (m *TempTarget) String() string {
	return fmt.Sprintf("target %v°C on sensor %s", m.Target, m.SensorName)
}

// Point is one (temperature °C, speed %) curve vertex.
type Point [2]float64

// Curve interpolates linearly between points and holds the end values
// outside them.
type Curve struct {
	SensorName string
	points     []Point
	env        Env
}

func newCurve(cfg config.GroupConfig, env Env) (FanModel, error) {
	p := struct {
		SensorName string  `yaml:"sensor_name"`
		Points     []Point `yaml:"points"`
	}{SensorName: DefaultSensor}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	c, err := NewCurve(p.Points)
	if err != nil {
		return nil, err
	}
	c.SensorName = p.SensorName
	c.env = env
	return c, nil
}

// NewCurve validates the points: temperatures strictly increasing, speeds
// non-decreasing and within [0,100].
func NewCurve(points []Point) (*Curve, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("curve needs at least one point")
	}
	for i, pt := range points {
		if pt[1] < 0 || pt[1] > 100 {
			return nil, fmt.Errorf("point %d: speed %v outside [0, 100]", i, pt[1])
		}
		if i == 0 {
			continue
		}
		if pt[0] <= points[i-1][0] {
			return nil, fmt.Errorf("point %d: temperatures must be strictly increasing (%v after %v)",
				i, pt[0], points[i-1][0])
		}
		if pt[1] < points[i-1][1] {
			return nil, fmt.Errorf("point %d: speeds must not decrease (%v after %v)",
				i, pt[1], points[i-1][1])
		}
	}
	cp := make([]Point, len(points))
	copy(cp, points)
	return &Curve{SensorName: DefaultSensor, points: cp}, nil
}

// At returns the interpolated speed for temp.
func (c *Curve) At(temp float64) float64 {
	first, last := c.points[0], c.points[len(c.points)-1]
	if temp <= first[0] {
		return first[1]
	}
	if temp >= last[0] {
		return last[1]
	}
	for i := 1; i < len(c.points); i++ {
		hi := c.points[i]
		if temp > hi[0] {
			continue
		}
		lo := c.points[i-1]
		frac := (temp - lo[0]) / (hi[0] - lo[0])
		return clamp(lo[1]+frac*(hi[1]-lo[1]), 0, 100)
	}
	return last[1]
}

func (c *Curve) Speed() (float64, error) {
	temp, err := readTemp(c.env, c.SensorName)
	if err != nil {
		return 0, err
	}
	speed := c.At(temp)
	c.env.logger().Debug("curve", "sensor", c.SensorName, "temp", temp, "speed", speed)
	return speed, nil
}

func (c *Curve) String() string { return fmt.Sprintf("curve %v", c.points) }
