package model

import (
	"errors"
	"math"
	"testing"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
	"ttrgbplus/internal/sensor"
)

func group(model string, params map[string]any) config.GroupConfig {
	return config.GroupConfig{Setting: "test", Model: model, Params: params}
}

func TestLockedSpeed(t *testing.T) {
	for _, speed := range []int{0, 55, 100} {
		m, err := NewFan(group("locked_speed", map[string]any{"speed": speed}), Env{})
		if err != nil {
			t.Fatalf("speed %d: %v", speed, err)
		}
		got, err := m.Speed()
		if err != nil || got != float64(speed) {
			t.Errorf("Speed() = %v, %v; want %d", got, err, speed)
		}
	}

	for _, params := range []map[string]any{
		{"speed": 150},
		{"speed": -1},
		{},
	} {
		_, err := NewFan(group("locked_speed", params), Env{})
		if !errors.Is(err, config.ErrInvalid) {
			t.Errorf("params %v: err = %v, want config error", params, err)
		}
	}
}

func TestUnknownModel(t *testing.T) {
	if _, err := NewFan(group("turbo", nil), Env{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("fan: err = %v", err)
	}
	if _, err := NewEffect(group("disco", nil), Env{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("effect: err = %v", err)
	}
	if _, err := NewFan(group("LOCKED_SPEED", map[string]any{"speed": 10}), Env{}); err != nil {
		t.Errorf("tags should be case-insensitive: %v", err)
	}
}

func TestTempTarget(t *testing.T) {
	temps := sensor.Static{"coretemp": 50, "k10temp": 10}
	env := Env{Sensors: temps}

	tests := []struct {
		name   string
		params map[string]any
		want   float64
	}{
		// ((50-40)*5 + 10) / 2
		{"defaults", map[string]any{"target": 40}, 30},
		{"multiplier", map[string]any{"target": 40, "multiplier": 2}, 15},
		{"clamp low", map[string]any{"target": 40, "sensor_name": "k10temp"}, 0},
		{"clamp high", map[string]any{"target": 0, "multiplier": 10}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewFan(group("temp_target", tt.params), env)
			if err != nil {
				t.Fatal(err)
			}
			for i := 0; i < 3; i++ {
				got, err := m.Speed()
				if err != nil {
					t.Fatal(err)
				}
				if got != tt.want {
					t.Errorf("tick %d: speed = %v, want %v", i, got, tt.want)
				}
			}
		})
	}

	if _, err := NewFan(group("temp_target", nil), env); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("missing target: err = %v", err)
	}
}

func TestTempTargetTrackLast(t *testing.T) {
	m, err := NewFan(group("temp_target", map[string]any{"target": 40, "track_last": true}),
		Env{Sensors: sensor.Static{"coretemp": 50}})
	if err != nil {
		t.Fatal(err)
	}
	// last: 10 -> 30 -> 40 -> 45
	for _, want := range []float64{30, 40, 45} {
		got, err := m.Speed()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("speed = %v, want %v", got, want)
		}
	}
}

func TestTempTargetSensorError(t *testing.T) {
	m, err := NewFan(group("temp_target", map[string]any{"target": 40, "sensor_name": "nope"}),
		Env{Sensors: sensor.Static{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Speed(); !errors.Is(err, sensor.ErrNoSensor) {
		t.Errorf("err = %v, want ErrNoSensor", err)
	}
}

func TestCurveInterpolation(t *testing.T) {
	c, err := NewCurve([]Point{{30, 20}, {50, 60}, {70, 100}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		temp, want float64
	}{
		{0, 20},
		{30, 20},
		{40, 40},
		{50, 60},
		{65, 90},
		{70, 100},
		{95, 100},
	}
	for _, tt := range tests {
		if got := c.At(tt.temp); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("At(%v) = %v, want %v", tt.temp, got, tt.want)
		}
	}

	single, err := NewCurve([]Point{{40, 35}})
	if err != nil {
		t.Fatal(err)
	}
	if single.At(10) != 35 || single.At(90) != 35 {
		t.Error("single-point curve should be constant")
	}
}

func TestCurveValidation(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
	}{
		{"empty", nil},
		{"decreasing temps", []Point{{40, 20}, {30, 50}}},
		{"repeated temp", []Point{{40, 20}, {40, 50}}},
		{"decreasing speeds", []Point{{30, 50}, {40, 20}}},
		{"speed over 100", []Point{{30, 50}, {40, 120}}},
		{"negative speed", []Point{{30, -5}}},
	}
	for _, tt := range tests {
		if _, err := NewCurve(tt.points); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestCurveFromConfig(t *testing.T) {
	params := map[string]any{
		"sensor_name": "k10temp",
		"points":      []any{[]any{30, 20}, []any{50, 60}},
	}
	m, err := NewFan(group("curve", params), Env{Sensors: sensor.Static{"k10temp": 40}})
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Speed()
	if err != nil {
		t.Fatal(err)
	}
	if got != 40 {
		t.Errorf("speed = %v, want 40", got)
	}

	bad := map[string]any{"points": []any{[]any{40, 20}, []any{30, 50}}}
	if _, err := NewFan(group("curve", bad), Env{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("err = %v, want config error", err)
	}
}

func TestFanModelsRejectNonFiniteTemperature(t *testing.T) {
	tests := []struct {
		model  string
		params map[string]any
	}{
		{"temp_target", map[string]any{"target": 40}},
		{"curve", map[string]any{"points": []any{[]any{30, 20}, []any{70, 100}}}},
	}
	for _, tt := range tests {
		for _, temp := range []float64{math.NaN(), math.Inf(1)} {
			m, err := NewFan(group(tt.model, tt.params), Env{Sensors: sensor.Static{"coretemp": temp}})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := m.Speed(); !errors.Is(err, ErrNotFinite) {
				t.Errorf("%s at %v: err = %v, want ErrNotFinite", tt.model, temp, err)
			}
		}
	}
}

func TestHSVToRGB(t *testing.T) {
	tests := []struct {
		h    float64
		want protocol.Color
	}{
		{0, protocol.Color{R: 255}},
		{60, protocol.Color{R: 255, G: 255}},
		{120, protocol.Color{G: 255}},
		{180, protocol.Color{G: 255, B: 255}},
		{240, protocol.Color{B: 255}},
		{300, protocol.Color{R: 255, B: 255}},
		{360, protocol.Color{R: 255}},
		{30, protocol.Color{R: 255, G: 128}},
	}
	for _, tt := range tests {
		if got := HSVToRGB(tt.h, 1, 1); got != tt.want {
			t.Errorf("HSVToRGB(%v) = %v, want %v", tt.h, got, tt.want)
		}
	}
	if got := HSVToRGB(200, 0, 0.5); got != (protocol.Color{R: 128, G: 128, B: 128}) {
		t.Errorf("grey = %v", got)
	}
}

func TestThermalHue(t *testing.T) {
	th, err := NewThermal(20, 45, 65, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		temp, want float64
	}{
		{10, 240},
		{20, 240},
		{32.5, 180},
		{45, 120},
		{55, 60},
		{65, 0},
		{90, 0},
	}
	for _, tt := range tests {
		if got := th.Hue(tt.temp); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Hue(%v) = %v, want %v", tt.temp, got, tt.want)
		}
	}

	if _, err := NewThermal(45, 45, 65, time.Second); err == nil {
		t.Error("expected error for cold == target")
	}
}

func TestThermalEffect(t *testing.T) {
	temps := sensor.Static{"coretemp": 70}
	e, err := NewEffect(group("thermal", map[string]any{"speed": "fast"}), Env{Sensors: temps})
	if err != nil {
		t.Fatal(err)
	}
	if e.Period() != 500*time.Millisecond {
		t.Errorf("period = %v", e.Period())
	}
	if err := e.Update(); err != nil {
		t.Fatal(err)
	}
	f := e.Render(12)
	if f.Mode != protocol.ModePerLED || len(f.Colors) != 12 {
		t.Fatalf("frame = %+v", f)
	}
	for _, c := range f.Colors {
		if c != (protocol.Color{R: 255}) {
			t.Fatalf("color = %v, want red", c)
		}
	}

	temps["coretemp"] = 45
	if err := e.Update(); err != nil {
		t.Fatal(err)
	}
	if c := e.Render(1).Colors[0]; c != (protocol.Color{G: 255}) {
		t.Errorf("color at target = %v, want green", c)
	}
}

func TestTierPeriod(t *testing.T) {
	want := map[protocol.LightSpeed]time.Duration{
		protocol.SpeedSlow:    time.Second,
		protocol.SpeedNormal:  750 * time.Millisecond,
		protocol.SpeedFast:    500 * time.Millisecond,
		protocol.SpeedExtreme: 250 * time.Millisecond,
	}
	for s, d := range want {
		if got := TierPeriod(s); got != d {
			t.Errorf("TierPeriod(%s) = %v, want %v", s, got, d)
		}
	}
}

func TestAlternating(t *testing.T) {
	e, err := NewEffect(group("alternating", map[string]any{
		"odd_rgb":  map[string]any{"r": 255, "g": 0, "b": 0},
		"even_rgb": map[string]any{"r": 0, "g": 0, "b": 255},
	}), Env{})
	if err != nil {
		t.Fatal(err)
	}
	if e.Period() != 0 {
		t.Error("alternating should be one-shot")
	}
	f := e.Render(4)
	want := []protocol.Color{{B: 255}, {R: 255}, {B: 255}, {R: 255}}
	if f.Mode != protocol.ModePerLED || len(f.Colors) != 4 {
		t.Fatalf("frame = %+v", f)
	}
	for i := range want {
		if f.Colors[i] != want[i] {
			t.Errorf("led %d = %v, want %v", i, f.Colors[i], want[i])
		}
	}
	// even (blue) first, wire order G,R,B
	if w := f.Wire(); len(w) != 12 || w[0] != 0 || w[1] != 0 || w[2] != 255 || w[4] != 255 {
		t.Errorf("wire = %v", w)
	}

	if _, err := NewEffect(group("alternating", map[string]any{"odd_rgb": map[string]any{"r": 1}}), Env{}); err == nil {
		t.Error("expected error without even_rgb")
	}
}

func TestSimpleEffects(t *testing.T) {
	tests := []struct {
		model  string
		params map[string]any
		mode   protocol.LightMode
		speed  protocol.LightSpeed
		colors int
	}{
		{"full", map[string]any{"r": 10, "g": 20, "b": 30}, protocol.ModeFull, protocol.SpeedExtreme, 1},
		{"off", nil, protocol.ModeFull, protocol.SpeedExtreme, 1},
		{"off-light", nil, protocol.ModeFull, protocol.SpeedExtreme, 1},
		{"per-led", map[string]any{"r": 1, "g": 2, "b": 3}, protocol.ModePerLED, protocol.SpeedExtreme, 12},
		{"flow", map[string]any{"speed": "slow"}, protocol.ModeFlow, protocol.SpeedSlow, 0},
		{"spectrum", nil, protocol.ModeSpectrum, protocol.SpeedExtreme, 0},
		{"ripple", map[string]any{"speed": "fast", "r": 0, "g": 255, "b": 0}, protocol.ModeRipple, protocol.SpeedFast, 1},
		{"blink", map[string]any{"speed": "normal", "r": 1, "g": 1, "b": 1}, protocol.ModeBlink, protocol.SpeedNormal, 12},
		{"pulse", map[string]any{"r": 1, "g": 1, "b": 1}, protocol.ModePulse, protocol.SpeedExtreme, 12},
		{"wave", map[string]any{"colors": []any{
			map[string]any{"r": 255, "g": 0, "b": 0},
			map[string]any{"r": 0, "g": 0, "b": 255},
		}}, protocol.ModeWave, protocol.SpeedExtreme, 12},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			e, err := NewEffect(group(tt.model, tt.params), Env{})
			if err != nil {
				t.Fatal(err)
			}
			if e.Period() != 0 {
				t.Error("expected one-shot effect")
			}
			f := e.Render(12)
			if f.Mode != tt.mode || f.Speed != tt.speed || len(f.Colors) != tt.colors {
				t.Errorf("frame = mode %s speed %s colors %d", f.Mode, f.Speed, len(f.Colors))
			}
		})
	}
}

func TestEffectParamErrors(t *testing.T) {
	tests := []struct {
		model  string
		params map[string]any
	}{
		{"full", map[string]any{"r": 10, "g": 20}},
		{"full", map[string]any{"r": 300, "g": 0, "b": 0}},
		{"ripple", map[string]any{"speed": "ludicrous", "r": 1, "g": 1, "b": 1}},
		{"blink", nil},
		{"wave", map[string]any{"r": 1, "g": 1, "b": 1, "colors": []any{map[string]any{"r": 1}}}},
	}
	for _, tt := range tests {
		if _, err := NewEffect(group(tt.model, tt.params), Env{}); !errors.Is(err, config.ErrInvalid) {
			t.Errorf("%s %v: err = %v, want config error", tt.model, tt.params, err)
		}
	}
}

func TestWaveCyclesColors(t *testing.T) {
	e, err := NewEffect(group("wave", map[string]any{"colors": []any{
		map[string]any{"r": 255, "g": 0, "b": 0},
		map[string]any{"r": 0, "g": 0, "b": 255},
	}}), Env{})
	if err != nil {
		t.Fatal(err)
	}
	f := e.Render(3)
	if f.Colors[0] != (protocol.Color{R: 255}) || f.Colors[1] != (protocol.Color{B: 255}) || f.Colors[2] != (protocol.Color{R: 255}) {
		t.Errorf("colors = %v", f.Colors)
	}
}
