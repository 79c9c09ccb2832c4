// Package protocol implements the fixed 64-byte command frames spoken by the
// Thermaltake Riing Plus controller family over USB.
//
// Frame layout: [kind, subsystem, port, payload...] right-padded with zero
// bytes to FrameSize. Fan GET replies carry (port, unknown, speed, rpm_lo,
// rpm_hi) at offsets 2..6.
package protocol

import (
	"errors"
	"fmt"
)

// FrameSize is the transport block length. Every frame is padded to it.
const FrameSize = 64

// headerSize is kind + subsystem + port.
const headerSize = 3

// Kind is the command direction byte.
type Kind uint8

const (
	KindSet Kind = 0x32
	KindGet Kind = 0x33
)

// Subsystem selects the fan or lighting command set.
type Subsystem uint8

const (
	SubsystemFan   Subsystem = 0x51
	SubsystemLight Subsystem = 0x52
)

// Controller-level command bytes.
const (
	cmdInit0       = 0xFE
	cmdInit1       = 0x33
	cmdSaveProfile = 0x53
	fanSetSpeed    = 0x01
)

var (
	// ErrFrameOverflow is returned when a payload does not fit in one frame.
	ErrFrameOverflow = errors.New("protocol: payload exceeds frame size")

	// ErrShortReply is returned when a reply is too short to decode.
	ErrShortReply = errors.New("protocol: short reply")

	// ErrSpeedRange is returned for fan speeds outside 0..100.
	ErrSpeedRange = errors.New("protocol: fan speed out of range")
)

// Encode builds a padded command frame. It never truncates: a payload longer
// than FrameSize-3 bytes returns ErrFrameOverflow.
func Encode(kind Kind, sub Subsystem, port uint8, payload []byte) ([]byte, error) {
	if len(payload) > FrameSize-headerSize {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrFrameOverflow, len(payload), FrameSize-headerSize)
	}
	frame := make([]byte, FrameSize)
	frame[0] = byte(kind)
	frame[1] = byte(sub)
	frame[2] = port
	copy(frame[headerSize:], payload)
	return frame, nil
}

// pad right-pads a raw command to FrameSize.
func pad(raw []byte) []byte {
	frame := make([]byte, FrameSize)
	copy(frame, raw)
	return frame
}

// InitFrame returns the controller initialization command.
func InitFrame() []byte {
	return pad([]byte{cmdInit0, cmdInit1})
}

// SaveProfileFrame returns the command that stores the current fan and
// lighting state in the controller's non-volatile memory.
func SaveProfileFrame() []byte {
	return pad([]byte{byte(KindSet), cmdSaveProfile})
}

// EncodeFanSpeed builds a SET FAN frame for a speed percentage.
func EncodeFanSpeed(port uint8, speed int) ([]byte, error) {
	if speed < 0 || speed > 100 {
		return nil, fmt.Errorf("%w: %d", ErrSpeedRange, speed)
	}
	return Encode(KindSet, SubsystemFan, port, []byte{fanSetSpeed, byte(speed)})
}

// EncodeFanQuery builds a GET FAN frame.
func EncodeFanQuery(port uint8) []byte {
	frame, _ := Encode(KindGet, SubsystemFan, port, nil)
	return frame
}

// FanReply is the decoded answer to a GET FAN frame.
type FanReply struct {
	Port    uint8  `json:"port"`
	Unknown uint8  `json:"-"`
	Speed   uint8  `json:"speed"`
	RPM     uint16 `json:"rpm"`
}

// DecodeFanReply decodes a GET FAN reply.
func DecodeFanReply(b []byte) (FanReply, error) {
	if len(b) < 7 {
		return FanReply{}, fmt.Errorf("%w: %d bytes", ErrShortReply, len(b))
	}
	return FanReply{
		Port:    b[2],
		Unknown: b[3],
		Speed:   b[4],
		RPM:     uint16(b[6])<<8 | uint16(b[5]),
	}, nil
}

// EncodeLighting builds a SET LIGHT frame. The mode byte is mode+speed.
//
// colors is appended verbatim in wire (G,R,B) order. The caller must supply
// 3*ledCount bytes for per-LED modes and 3 bytes for single-color modes;
// the length is not checked here beyond the frame capacity.
func EncodeLighting(port uint8, mode LightMode, speed LightSpeed, colors []byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(colors))
	payload = append(payload, byte(mode)+byte(speed))
	payload = append(payload, colors...)
	return Encode(KindSet, SubsystemLight, port, payload)
}
