package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeFanSetFrame(t *testing.T) {
	frame, err := Encode(KindSet, SubsystemFan, 3, []byte{0x01, 0x32})
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != FrameSize {
		t.Fatalf("len = %d, want %d", len(frame), FrameSize)
	}
	want := make([]byte, FrameSize)
	copy(want, []byte{0x32, 0x51, 0x03, 0x01, 0x32})
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = %X, want %X", frame, want)
	}
}

func TestEncodeOverflow(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"exact fit", FrameSize - 3, false},
		{"one over", FrameSize - 2, true},
		{"way over", 200, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(KindSet, SubsystemLight, 1, make([]byte, tt.size))
			if tt.wantErr {
				if !errors.Is(err, ErrFrameOverflow) {
					t.Fatalf("err = %v, want ErrFrameOverflow", err)
				}
				if frame != nil {
					t.Error("frame should be nil on overflow")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(frame) != FrameSize {
				t.Errorf("len = %d", len(frame))
			}
		})
	}
}

func TestEncodeFanSpeedRange(t *testing.T) {
	for _, speed := range []int{0, 50, 100} {
		frame, err := EncodeFanSpeed(2, speed)
		if err != nil {
			t.Fatalf("speed %d: %v", speed, err)
		}
		if frame[3] != 0x01 || frame[4] != byte(speed) {
			t.Errorf("speed %d: payload = %X", speed, frame[3:5])
		}
	}
	for _, speed := range []int{-1, 101, 150} {
		if _, err := EncodeFanSpeed(2, speed); !errors.Is(err, ErrSpeedRange) {
			t.Errorf("speed %d: err = %v, want ErrSpeedRange", speed, err)
		}
	}
}

func TestEncodeFanQuery(t *testing.T) {
	frame := EncodeFanQuery(4)
	if frame[0] != byte(KindGet) || frame[1] != byte(SubsystemFan) || frame[2] != 4 {
		t.Errorf("header = %X", frame[:3])
	}
	for i, b := range frame[3:] {
		if b != 0 {
			t.Fatalf("byte %d = 0x%02X, want padding", i+3, b)
		}
	}
}

func TestDecodeFanReply(t *testing.T) {
	reply := make([]byte, FrameSize)
	copy(reply, []byte{0x33, 0x51, 0x02, 0xAA, 0x28, 0x10, 0x01})

	got, err := DecodeFanReply(reply)
	if err != nil {
		t.Fatal(err)
	}
	if got.Port != 2 {
		t.Errorf("port = %d, want 2", got.Port)
	}
	if got.Speed != 0x28 {
		t.Errorf("speed = %d, want 40", got.Speed)
	}
	if got.RPM != 272 {
		t.Errorf("rpm = %d, want 272", got.RPM)
	}
}

func TestDecodeFanReplyShort(t *testing.T) {
	if _, err := DecodeFanReply([]byte{0x33, 0x51, 0x01}); !errors.Is(err, ErrShortReply) {
		t.Errorf("err = %v, want ErrShortReply", err)
	}
}

func TestEncodeLighting(t *testing.T) {
	red := Color{R: 0xFF}
	frame, err := EncodeLighting(1, ModeRipple, SpeedSlow, red.Wire())
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x32, 0x52, 0x01, 0x0B, 0x00, 0xFF, 0x00}
	if !bytes.Equal(frame[:len(want)], want) {
		t.Errorf("frame = %X, want prefix %X", frame[:len(want)], want)
	}
}

func TestEncodeLightingPerLEDFits(t *testing.T) {
	colors := Fill(Color{R: 1, G: 2, B: 3}, 12)
	frame, err := EncodeLighting(5, ModePerLED, 0, colors)
	if err != nil {
		t.Fatal(err)
	}
	if frame[3] != byte(ModePerLED) {
		t.Errorf("mode = 0x%02X", frame[3])
	}
	if !bytes.Equal(frame[4:4+36], colors) {
		t.Error("color payload mismatch")
	}
}

func TestControllerFrames(t *testing.T) {
	if f := InitFrame(); f[0] != 0xFE || f[1] != 0x33 || len(f) != FrameSize {
		t.Errorf("init frame = %X", f[:4])
	}
	if f := SaveProfileFrame(); f[0] != 0x32 || f[1] != 0x53 || len(f) != FrameSize {
		t.Errorf("save frame = %X", f[:4])
	}
}
