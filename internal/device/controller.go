package device

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"ttrgbplus/internal/config"
	"ttrgbplus/internal/protocol"
	"ttrgbplus/internal/transport"
)

// VendorID is Thermaltake's USB vendor ID.
const VendorID = 0x264A

// Driver describes one controller board type.
type Driver struct {
	Type          string
	ProductIDBase uint16 // product ID of unit 1; unit n is base+n-1
	Ports         int
	Init          []byte // sent once after the transport opens; nil = none
}

var drivers = map[string]Driver{
	"g3":        {Type: "g3", ProductIDBase: 0x1FA5, Ports: 5, Init: protocol.InitFrame()},
	"riingtrio": {Type: "riingtrio", ProductIDBase: 0x2135, Ports: 5, Init: protocol.InitFrame()},
	// TT Sync 5 speaks the G3 command set and enumerates in the same range.
	"ttsync5": {Type: "ttsync5", ProductIDBase: 0x1FA5, Ports: 5, Init: protocol.InitFrame()},
}

// LookupDriver returns the driver for a type tag, case-insensitively.
func LookupDriver(typeTag string) (Driver, bool) {
	d, ok := drivers[strings.ToLower(strings.TrimSpace(typeTag))]
	return d, ok
}

// DriverTypes lists the supported type tags.
func DriverTypes() []string {
	out := make([]string, 0, len(drivers))
	for k := range drivers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Opener connects to a board by USB IDs.
type Opener func(vendorID, productID uint16) (transport.Transport, error)

// Option customizes controller construction.
type Option func(*Controller)

// WithProductID overrides the driver-derived product ID.
func WithProductID(pid uint16) Option {
	return func(c *Controller) {
		if pid != 0 {
			c.productID = pid
		}
	}
}

// Controller is one physical board and its transport.
//
// Fan and lighting groups may drive different ports of one board (or both
// subsystems of one Riing Plus fan), so transport access is serialized.
type Controller struct {
	unit      int
	driver    Driver
	productID uint16
	tr        transport.Transport
	logger    *slog.Logger

	mu sync.Mutex
}

// NewController selects a driver by type tag, opens its transport and sends
// the init command. Any failure here is fatal for the daemon.
func NewController(typeTag string, unit int, open Opener, logger *slog.Logger, opts ...Option) (*Controller, error) {
	name := fmt.Sprintf("unit %d", unit)
	driver, ok := LookupDriver(typeTag)
	if !ok {
		return nil, config.Errorf("controllers", name, "unknown controller type %q (supported: %s)",
			typeTag, strings.Join(DriverTypes(), ", "))
	}
	if driver.Ports <= 0 {
		return nil, config.Errorf("controllers", name, "driver %s reports no ports", driver.Type)
	}
	if unit < 1 {
		return nil, config.Errorf("controllers", name, "unit must be >= 1")
	}
	c := &Controller{
		unit:      unit,
		driver:    driver,
		productID: driver.ProductIDBase + uint16(unit-1),
		logger:    logger.With("component", "controller", "unit", unit),
	}
	for _, opt := range opts {
		opt(c)
	}

	tr, err := open(VendorID, c.productID)
	if err != nil {
		return nil, fmt.Errorf("controller %s (%s): %w", name, driver.Type, err)
	}
	c.tr = tr
	if driver.Init != nil {
		if err := tr.Write(driver.Init); err != nil {
			tr.Close()
			return nil, fmt.Errorf("controller %s (%s) init: %w", name, driver.Type, err)
		}
	}
	c.logger.Info("controller ready", "type", driver.Type, "ports", driver.Ports,
		"pid", fmt.Sprintf("0x%04x", c.productID))
	return c, nil
}

// Unit returns the controller's unit number.
func (c *Controller) Unit() int { return c.unit }

// Type returns the driver type tag.
func (c *Controller) Type() string { return c.driver.Type }

// Ports returns the number of device ports on the board.
func (c *Controller) Ports() int { return c.driver.Ports }

// ProductID returns the USB product ID in use.
func (c *Controller) ProductID() uint16 { return c.productID }

// Write sends one frame.
func (c *Controller) Write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Write(frame)
}

// Transact sends a frame and reads the reply as one unit.
func (c *Controller) Transact(frame []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.tr.Write(frame); err != nil {
		return nil, err
	}
	return c.tr.Read()
}

// SaveProfile asks the board to persist its current state.
func (c *Controller) SaveProfile() error {
	if err := c.Write(protocol.SaveProfileFrame()); err != nil {
		return fmt.Errorf("save profile unit %d: %w", c.unit, err)
	}
	return nil
}

// Close releases the transport.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tr.Close()
}
