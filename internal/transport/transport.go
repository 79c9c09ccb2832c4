// Package transport moves fixed-size command blocks between the daemon and a
// controller board. Backends: Linux hidraw (the board's native HID
// interface) and serial (CDC-ACM bridges).
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// BlockSize is the size of every block written and read.
const BlockSize = 64

// readTimeout bounds a single Read so a silent board cannot wedge a group.
const readTimeout = time.Second

// Transport is a connected controller.
type Transport interface {
	// Write sends one block. Shorter buffers are zero-padded by the backend.
	Write(block []byte) error
	// Read returns one block.
	Read() ([]byte, error)
	Close() error
}

// ErrNotFound is returned when no device node matches the requested IDs.
var ErrNotFound = errors.New("transport: device not found")

// Error wraps a failed transport operation.
type Error struct {
	Op   string // "open", "write", "read"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config selects and parameterizes a backend.
type Config struct {
	Type       string // "hidraw" or "serial"
	Path       string // explicit device node; empty = discover by VendorID/ProductID
	Baud       int
	HidrawRoot string // sysfs class dir, normally /sys/class/hidraw
	DevDir     string // normally /dev
}

// Open connects to the board identified by vendor and product ID.
func Open(cfg Config, vendorID, productID uint16, logger *slog.Logger) (Transport, error) {
	switch strings.ToLower(cfg.Type) {
	case "hidraw", "":
		path := cfg.Path
		if path == "" {
			p, err := FindHidraw(cfg.HidrawRoot, cfg.DevDir, vendorID, productID)
			if err != nil {
				return nil, err
			}
			path = p
		}
		logger.Info("using hidraw transport", "path", path,
			"vid", fmt.Sprintf("0x%04x", vendorID), "pid", fmt.Sprintf("0x%04x", productID))
		return OpenHidraw(path)
	case "serial":
		path := cfg.Path
		if path == "" {
			p, err := FindSerial(vendorID, productID)
			if err != nil {
				return nil, err
			}
			path = p
		}
		logger.Info("using serial transport", "port", path, "baud", cfg.Baud)
		return OpenSerial(path, cfg.Baud)
	default:
		return nil, fmt.Errorf("unknown transport type: %q (supported: hidraw, serial)", cfg.Type)
	}
}

// padBlock copies b into a BlockSize buffer. Oversized blocks are rejected.
func padBlock(b []byte) ([]byte, error) {
	if len(b) > BlockSize {
		return nil, fmt.Errorf("block of %d bytes exceeds %d", len(b), BlockSize)
	}
	out := make([]byte, BlockSize)
	copy(out, b)
	return out, nil
}
