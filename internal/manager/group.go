// Package manager runs the control loops. Each configured group owns a policy
// and a disjoint set of device endpoints, and drives them from its own
// goroutine until stopped.
package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"ttrgbplus/internal/device"
	"ttrgbplus/internal/events"
)

// ErrAlreadyStarted is returned by Start on a running group.
var ErrAlreadyStarted = errors.New("manager: group already started")

// FanInterval is the fan control loop period.
const FanInterval = time.Second

// Kind selects fan or lighting management.
type Kind int

const (
	KindFan Kind = iota
	KindLighting
)

func (k Kind) String() string {
	if k == KindFan {
		return "fan"
	}
	return "lighting"
}

// Capability is the device capability a group of this kind drives.
func (k Kind) Capability() device.Capability {
	if k == KindFan {
		return device.CapFan
	}
	return device.CapLight
}

// Section is the config section the kind's groups come from.
func (k Kind) Section() string {
	if k == KindFan {
		return "fan_managers"
	}
	return "lighting_manager"
}

// Group is one running policy over a set of devices.
type Group interface {
	Name() string
	Kind() Kind
	Devices() []*device.Endpoint
	Start() error
	Stop()
	Running() bool
	Status() Status
}

// Status is a point-in-time view of a group.
type Status struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Model     string    `json:"model"`
	Policy    string    `json:"policy"`
	Running   bool      `json:"running"`
	Devices   []string  `json:"devices"`
	Output    string    `json:"output,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Updated   time.Time `json:"updated,omitempty"`
}

// Options configures group construction.
type Options struct {
	Bus    *events.Bus
	Logger *slog.Logger

	// ReadRPM makes fan groups query speed and RPM of each device per tick.
	ReadRPM bool

	// Interval overrides FanInterval.
	Interval time.Duration
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// loop is the Stopped -> Running -> Stopped lifecycle shared by both group
// kinds.
type loop struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func (l *loop) start(run func(ctx context.Context)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.running = true
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		run(ctx)
	}()
	return nil
}

// stop cancels the loop and waits for its goroutine to exit.
func (l *loop) stop() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return false
	}
	l.cancel()
	l.wg.Wait()
	l.running = false
	return true
}

func (l *loop) isRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// status holds the fields Status reports, updated from the loop goroutine.
type status struct {
	mu      sync.Mutex
	output  string
	lastErr string
	updated time.Time
}

func (s *status) set(output string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if output != "" {
		s.output = output
	}
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.updated = time.Now()
}

func (s *status) fill(st *Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Output = s.output
	st.LastError = s.lastErr
	st.Updated = s.updated
}

func deviceIDs(eps []*device.Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.ID().String()
	}
	return out
}

func copyEndpoints(eps []*device.Endpoint) []*device.Endpoint {
	out := make([]*device.Endpoint, len(eps))
	copy(out, eps)
	return out
}

// closeModel releases a policy that holds resources (the Lua VM).
func closeModel(m any, logger *slog.Logger) {
	if c, ok := m.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("close model", "err", err)
		}
	}
}
