package store

import "time"

// Telemetry is the last known state of one device endpoint.
type Telemetry struct {
	Device    string    `json:"device"` // unit:port
	Model     string    `json:"model,omitempty"`
	Group     string    `json:"group,omitempty"`
	SetSpeed  *int      `json:"set_speed,omitempty"` // last speed written
	Speed     *int      `json:"speed,omitempty"`     // speed reported by the controller
	RPM       *int      `json:"rpm,omitempty"`
	Lighting  string    `json:"lighting,omitempty"` // mode of the last lighting write
	Colors    []string  `json:"colors,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Updated   time.Time `json:"updated"`
}

// GroupRecord is the last reported state of a group.
type GroupRecord struct {
	Name    string    `json:"name"`
	Kind    string    `json:"kind"`
	Model   string    `json:"model"`
	Running bool      `json:"running"`
	Devices int       `json:"devices"`
	Updated time.Time `json:"updated"`
}

// ProfileRecord is the outcome of the last save-profile command sent to a
// controller.
type ProfileRecord struct {
	Unit    int       `json:"unit"`
	Type    string    `json:"type"`
	SavedAt time.Time `json:"saved_at"`
	Error   string    `json:"error,omitempty"`
}
