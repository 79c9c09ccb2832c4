//go:build !no_mqtt

package mqtt

import (
	"fmt"

	"ttrgbplus/internal/device"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/ttrgbplus_1_2/rpm/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            haDevice `json:"device"`
}

// deviceInfo is what discovery needs to know about one endpoint.
type deviceInfo struct {
	ID    string // unit:port
	Model string
	Fan   bool
	Light bool
}

func describe(ep *device.Endpoint) deviceInfo {
	return deviceInfo{
		ID:    ep.ID().String(),
		Model: ep.Model().Name,
		Fan:   ep.Capabilities().Has(device.CapFan),
		Light: ep.Capabilities().Has(device.CapLight),
	}
}

// displayName returns a display name for the device.
func (d deviceInfo) displayName() string {
	if d.Model == "" {
		return d.ID
	}
	return d.Model + " " + d.ID
}

// identifier returns the unique identifier for HA device registry.
func (d deviceInfo) identifier() string {
	return "ttrgbplus_" + topicName(d.ID)
}

// buildDiscovery generates HA discovery messages for a device based on its
// capabilities.
func buildDiscovery(dev deviceInfo, prefix string) []discoveryMsg {
	if dev.ID == "" || (!dev.Fan && !dev.Light) {
		return nil
	}

	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + topicName(dev.ID)
	nodeID := dev.identifier()
	displayName := dev.displayName()

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "Thermaltake",
		Model:        dev.Model,
		Name:         displayName,
	}

	var msgs []discoveryMsg
	if dev.Fan {
		msgs = append(msgs,
			buildSensor(nodeID, displayName, stateTopic, avail, haDev,
				"speed", "Speed", "", "%", "measurement", "mdi:fan",
				"{{ value_json.speed }}"),
			buildSensor(nodeID, displayName, stateTopic, avail, haDev,
				"rpm", "RPM", "", "rpm", "measurement", "mdi:fan",
				"{{ value_json.rpm }}"),
		)
	}
	if dev.Light {
		msgs = append(msgs, buildSensor(nodeID, displayName, stateTopic, avail, haDev,
			"lighting", "Lighting", "", "", "", "mdi:led-strip-variant",
			"{{ value_json.lighting }}"))
	}
	msgs = append(msgs, buildSensor(nodeID, displayName, stateTopic, avail, haDev,
		"error", "Error", "", "", "", "mdi:alert-circle-outline",
		"{{ value_json.error | default('') }}"))
	return msgs
}

func buildSensor(nodeID, displayName, stateTopic, avail string, haDev haDevice,
	objectID, suffix, deviceClass, unit, stateClass, icon, valueTmpl string) discoveryMsg {

	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, objectID)
	payload := haDiscovery{
		Name:              displayName + " " + suffix,
		UniqueID:          nodeID + "_" + objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     valueTmpl,
		UnitOfMeasurement: unit,
		DeviceClass:       deviceClass,
		StateClass:        stateClass,
		Icon:              icon,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty retained messages for every sensor
// the device does not announce, so a port whose model changed loses its
// stale entities.
func buildRemoveDiscovery(dev deviceInfo, prefix string) []discoveryMsg {
	announced := make(map[string]bool)
	for _, m := range buildDiscovery(dev, prefix) {
		announced[m.Topic] = true
	}
	nodeID := dev.identifier()
	var msgs []discoveryMsg
	for _, obj := range []string{"speed", "rpm", "lighting", "error"} {
		topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, obj)
		if announced[topic] {
			continue
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   topic,
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
