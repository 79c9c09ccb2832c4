// Package store records what the daemon last did to each device, group and
// controller. It is an observation log for the API and restarts; control
// decisions never read from it.
package store

import "errors"

// ErrNotFound is returned when a requested record does not exist in the store.
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface.
type Store interface {
	// Device telemetry
	SaveTelemetry(t *Telemetry) error
	GetTelemetry(device string) (*Telemetry, error)
	ListTelemetry() ([]*Telemetry, error)

	// UpdateTelemetry atomically reads, modifies, and saves a device record
	// in a single transaction, creating it if it does not exist.
	UpdateTelemetry(device string, fn func(t *Telemetry) error) error

	// Group state
	SaveGroup(g *GroupRecord) error
	ListGroups() ([]*GroupRecord, error)

	// Controller profile saves
	SaveProfile(p *ProfileRecord) error
	GetProfile(unit int) (*ProfileRecord, error)

	// Close the store
	Close() error
}
