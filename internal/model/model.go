// Package model holds the policies a group runs: fan models that turn sensor
// readings into a speed percentage, and lighting effects that produce
// lighting frames. Both are looked up by the config "model" tag.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
	"ttrgbplus/internal/sensor"
)

// ErrNotFinite is returned when a reading or a computed speed is NaN or
// infinite.
var ErrNotFinite = errors.New("model: value is not finite")

// DefaultSensor is the hwmon chip read when a model does not name one.
const DefaultSensor = "coretemp"

// Env carries what constructors need from the daemon.
type Env struct {
	Sensors sensor.Reader
	Logger  *slog.Logger
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// FanModel computes a fan speed percentage in [0,100].
type FanModel interface {
	Speed() (float64, error)
	String() string
}

// Frame is one lighting write: hardware mode, rate and logical colors.
type Frame struct {
	Mode   protocol.LightMode
	Speed  protocol.LightSpeed
	Colors []protocol.Color
}

// Wire returns the colors in controller byte order.
func (f Frame) Wire() []byte { return protocol.Flatten(f.Colors) }

// Effect produces lighting frames. Period is zero for effects that are
// written once; otherwise Update is called and the frame re-rendered every
// period.
type Effect interface {
	Period() time.Duration
	Update() error
	Render(ledCount int) Frame
	String() string
}

// FanConstructor builds a fan model from a group's config.
type FanConstructor func(cfg config.GroupConfig, env Env) (FanModel, error)

// EffectConstructor builds a lighting effect from a group's config.
type EffectConstructor func(cfg config.GroupConfig, env Env) (Effect, error)

var (
	mu      sync.RWMutex
	fans    = make(map[string]FanConstructor)
	effects = make(map[string]EffectConstructor)
)

// RegisterFan adds a fan model under tag. It panics on a duplicate tag.
func RegisterFan(tag string, fn FanConstructor) {
	mu.Lock()
	defer mu.Unlock()
	tag = normalize(tag)
	if _, ok := fans[tag]; ok {
		panic("model: duplicate fan model " + tag)
	}
	fans[tag] = fn
}

// RegisterEffect adds a lighting effect under tag. It panics on a duplicate tag.
func RegisterEffect(tag string, fn EffectConstructor) {
	mu.Lock()
	defer mu.Unlock()
	tag = normalize(tag)
	if _, ok := effects[tag]; ok {
		panic("model: duplicate lighting effect " + tag)
	}
	effects[tag] = fn
}

// NewFan builds the fan model named by cfg.Model.
func NewFan(cfg config.GroupConfig, env Env) (FanModel, error) {
	mu.RLock()
	fn, ok := fans[normalize(cfg.Model)]
	mu.RUnlock()
	if !ok {
		return nil, config.Errorf("fan_managers", cfg.Setting, "unknown fan model %q (supported: %s)",
			cfg.Model, strings.Join(FanTags(), ", "))
	}
	m, err := fn(cfg, env)
	if err != nil {
		return nil, wrap("fan_managers", cfg, err)
	}
	return m, nil
}

// NewEffect builds the lighting effect named by cfg.Model.
func NewEffect(cfg config.GroupConfig, env Env) (Effect, error) {
	mu.RLock()
	fn, ok := effects[normalize(cfg.Model)]
	mu.RUnlock()
	if !ok {
		return nil, config.Errorf("lighting_manager", cfg.Setting, "unknown lighting model %q (supported: %s)",
			cfg.Model, strings.Join(EffectTags(), ", "))
	}
	e, err := fn(cfg, env)
	if err != nil {
		return nil, wrap("lighting_manager", cfg, err)
	}
	return e, nil
}

// FanTags lists registered fan model tags.
func FanTags() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(fans)
}

// EffectTags lists registered lighting effect tags.
func EffectTags() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(effects)
}

func wrap(section string, cfg config.GroupConfig, err error) error {
	var cerr *config.Error
	if errors.As(err, &cerr) {
		return err
	}
	return config.Errorf(section, cfg.Setting, "model %s: %w", cfg.Model, err)
}

func normalize(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func readTemp(env Env, name string) (float64, error) {
	if env.Sensors == nil {
		return 0, fmt.Errorf("no sensor reader configured")
	}
	t, err := env.Sensors.Temperature(name)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", name, err)
	}
	if !finite(t) {
		return 0, fmt.Errorf("read %s: %v: %w", name, t, ErrNotFinite)
	}
	return t, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
