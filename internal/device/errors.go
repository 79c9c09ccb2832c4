package device

import "errors"

var (
	// ErrNotFound is returned when no endpoint is registered at unit:port.
	ErrNotFound = errors.New("device: not found")

	// ErrDuplicatePort is returned when a controller port is attached twice.
	ErrDuplicatePort = errors.New("device: port already attached")

	// ErrPortRange is returned when a port is outside the board's range.
	ErrPortRange = errors.New("device: port out of range")

	// ErrCapability is returned when an endpoint is asked to do something its
	// model cannot (e.g. set the speed of an LED strip).
	ErrCapability = errors.New("device: capability not supported")

	// ErrBadReply is returned when a telemetry reply does not match the query.
	ErrBadReply = errors.New("device: unexpected reply")
)
