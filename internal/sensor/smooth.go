package sensor

import (
	"sync"

	"github.com/asecurityteam/rolling"
)

// Smoothed wraps a Reader with a per-sensor moving average over the last
// window readings.
type Smoothed struct {
	src    Reader
	window int

	mu     sync.Mutex
	series map[string]*series
}

// series is one sensor's window plus the number of samples appended, so a
// window that has not filled yet is not averaged against its zero buckets.
type series struct {
	points *rolling.PointPolicy
	n      int
}

// NewSmoothed creates a smoothing reader. A window below 1 is treated as 1.
func NewSmoothed(src Reader, window int) *Smoothed {
	if window < 1 {
		window = 1
	}
	return &Smoothed{
		src:    src,
		window: window,
		series: make(map[string]*series),
	}
}

// Temperature implements Reader. Failed reads are not recorded.
func (s *Smoothed) Temperature(name string) (float64, error) {
	v, err := s.src.Temperature(name)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[name]
	if !ok {
		sr = &series{points: rolling.NewPointPolicy(rolling.NewWindow(s.window))}
		s.series[name] = sr
	}
	sr.points.Append(v)
	if sr.n < s.window {
		sr.n++
	}
	return sr.points.Reduce(rolling.Sum) / float64(sr.n), nil
}

// Static is a fixed set of readings, for tests and dry runs.
type Static map[string]float64

// Temperature implements Reader.
func (s Static) Temperature(name string) (float64, error) {
	v, ok := s[name]
	if !ok {
		return 0, ErrNoSensor
	}
	return v, nil
}
