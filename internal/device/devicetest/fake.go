// Package devicetest provides an in-memory transport for tests that drive
// controllers without hardware.
package devicetest

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"ttrgbplus/internal/device"
	"ttrgbplus/internal/transport"
)

// ErrInjected is returned by a Transport whose FailWrites is set.
var ErrInjected = errors.New("devicetest: injected failure")

// Transport records every frame written to it. Reads are answered by Reply,
// or by an echo of the last query with zeros when Reply is nil.
type Transport struct {
	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	failWrites bool
	failPort   int

	// Reply builds a read response from the last written frame.
	Reply func(last []byte) ([]byte, error)
}

// Write implements transport.Transport.
func (t *Transport) Write(b []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	if t.failWrites {
		return ErrInjected
	}
	if t.failPort != 0 && len(b) > 2 && int(b[2]) == t.failPort && b[0] == 0x32 {
		return ErrInjected
	}
	t.frames = append(t.frames, append([]byte(nil), b...))
	return nil
}

// Read implements transport.Transport.
func (t *Transport) Read() ([]byte, error) {
	t.mu.Lock()
	var last []byte
	if n := len(t.frames); n > 0 {
		last = t.frames[n-1]
	}
	reply := t.Reply
	t.mu.Unlock()
	if reply != nil {
		return reply(last)
	}
	out := make([]byte, transport.BlockSize)
	copy(out, last)
	return out, nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Frames returns a copy of every frame written so far.
func (t *Transport) Frames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.frames))
	copy(out, t.frames)
	return out
}

// FramesMatching returns written frames whose first bytes equal prefix.
func (t *Transport) FramesMatching(prefix ...byte) [][]byte {
	var out [][]byte
	for _, f := range t.Frames() {
		if len(f) >= len(prefix) && string(f[:len(prefix)]) == string(prefix) {
			out = append(out, f)
		}
	}
	return out
}

// Reset discards recorded frames.
func (t *Transport) Reset() {
	t.mu.Lock()
	t.frames = nil
	t.mu.Unlock()
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// FailWrites makes every subsequent write fail.
func (t *Transport) FailWrites(fail bool) {
	t.mu.Lock()
	t.failWrites = fail
	t.mu.Unlock()
}

// FailPort makes SET writes addressed to port fail. Zero clears it.
func (t *Transport) FailPort(port int) {
	t.mu.Lock()
	t.failPort = port
	t.mu.Unlock()
}

// Opener returns a device.Opener that hands out tr for every board and
// records the product IDs requested.
func Opener(tr *Transport, pids *[]uint16) device.Opener {
	return func(_, pid uint16) (transport.Transport, error) {
		if pids != nil {
			*pids = append(*pids, pid)
		}
		return tr, nil
	}
}

// Discard is a logger for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Registry builds a registry with one controller of the given type on unit 1
// and the given models attached at ports 1..n.
func Registry(tr *Transport, typeTag string, models ...string) (*device.Registry, error) {
	ctrl, err := device.NewController(typeTag, 1, Opener(tr, nil), Discard())
	if err != nil {
		return nil, err
	}
	reg := device.NewRegistry()
	if err := reg.AddController(ctrl); err != nil {
		return nil, err
	}
	for i, m := range models {
		if _, err := reg.Attach(ctrl, i+1, m); err != nil {
			return nil, err
		}
	}
	tr.Reset()
	return reg, nil
}
