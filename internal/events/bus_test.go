package events

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBusOnAndUnsubscribe(t *testing.T) {
	b := newTestBus()
	var fan, all atomic.Int32
	unsub := b.On(EventFanSpeed, func(Event) { fan.Add(1) })
	b.OnAll(func(Event) { all.Add(1) })

	b.Emit(Event{Type: EventFanSpeed, Data: FanSpeed{Device: "1:1", Speed: 40}})
	b.Emit(Event{Type: EventLighting})
	if fan.Load() != 1 || all.Load() != 2 {
		t.Fatalf("fan=%d all=%d", fan.Load(), all.Load())
	}

	unsub()
	b.Emit(Event{Type: EventFanSpeed})
	if fan.Load() != 1 {
		t.Errorf("handler called after unsubscribe")
	}
}

func TestBusRecoversPanic(t *testing.T) {
	b := newTestBus()
	var called atomic.Bool
	b.On(EventDaemonState, func(Event) { panic("boom") })
	b.OnAll(func(Event) { called.Store(true) })

	b.Emit(Event{Type: EventDaemonState, Data: DaemonState{State: "running"}})
	if !called.Load() {
		t.Error("second handler not called after panic")
	}
}

func TestNilBusEmit(t *testing.T) {
	var b *Bus
	b.Emit(Event{Type: EventFanSpeed})
}
