package model

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"ttrgbplus/internal/config"

	lua "github.com/yuin/gopher-lua"
)

// scriptTimeout bounds one call of the script's speed function.
const scriptTimeout = 250 * time.Millisecond

func init() {
	RegisterFan("script", newScript)
}

// Script evaluates a Lua function speed(temp) each tick. The VM is sandboxed
// (no os, io, require or load) and only exposes log(msg).
type Script struct {
	SensorName string

	env Env
	mu  sync.Mutex
	L   *lua.LState
	fn  *lua.LFunction
}

func newScript(cfg config.GroupConfig, env Env) (FanModel, error) {
	p := struct {
		SensorName string `yaml:"sensor_name"`
		Script     string `yaml:"script"`
		ScriptFile string `yaml:"script_file"`
	}{SensorName: DefaultSensor}
	if err := cfg.Decode(&p); err != nil {
		return nil, err
	}
	src := p.Script
	if p.ScriptFile != "" {
		if src != "" {
			return nil, fmt.Errorf("use either script or script_file, not both")
		}
		data, err := os.ReadFile(p.ScriptFile)
		if err != nil {
			return nil, fmt.Errorf("read script: %w", err)
		}
		src = string(data)
	}
	s, err := NewScript(src, env)
	if err != nil {
		return nil, err
	}
	s.SensorName = p.SensorName
	return s, nil
}

// NewScript compiles src, which must define a global function speed(temp).
func NewScript(src string, env Env) (*Script, error) {
	if src == "" {
		return nil, fmt.Errorf("script is required")
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: false})

	// Sandbox
	L.SetGlobal("os", lua.LNil)
	L.SetGlobal("io", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("require", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("debug", lua.LNil)
	L.SetGlobal("package", lua.LNil)

	logger := env.logger()
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logger.Debug("script log", "msg", L.CheckString(1))
		return 0
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	L.SetContext(ctx)
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load script: %w", err)
	}
	L.RemoveContext()

	fn, ok := L.GetGlobal("speed").(*lua.LFunction)
	if !ok {
		L.Close()
		return nil, fmt.Errorf("script must define function speed(temp)")
	}
	return &Script{SensorName: DefaultSensor, env: env, L: L, fn: fn}, nil
}

// Eval calls speed(temp) and clamps the result to [0,100].
func (s *Script) Eval(temp float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), scriptTimeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	if err := s.L.CallByParam(lua.P{
		Fn:      s.fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(temp)); err != nil {
		return 0, fmt.Errorf("script: %w", err)
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("script: speed returned %s, want number", ret.Type())
	}
	if !finite(float64(n)) {
		return 0, fmt.Errorf("script: speed(%v) = %v: %w", temp, float64(n), ErrNotFinite)
	}
	return clamp(float64(n), 0, 100), nil
}

func (s *Script) Speed() (float64, error) {
	temp, err := readTemp(s.env, s.SensorName)
	if err != nil {
		return 0, err
	}
	return s.Eval(temp)
}

func (s *Script) String() string { return "script on sensor " + s.SensorName }

// Close releases the Lua VM.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.L.Close()
	return nil
}
