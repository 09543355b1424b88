package mcp

import (
	"encoding/json"

	"github.com/urmzd/wallpad/pkg/device"
)

// GetHealthOutput is returned by get_health.
type GetHealthOutput struct {
	Status    string `json:"status" jsonschema:"description=healthy when the bus link is up"`
	Bus       string `json:"bus" jsonschema:"description=connected or disconnected"`
	Devices   int    `json:"devices" jsonschema:"description=Registered devices"`
	Online    int    `json:"online" jsonschema:"description=Devices answering polls"`
	Timestamp string `json:"timestamp" jsonschema:"description=RFC 3339 time of the check"`
}

// DeviceInfo describes one bus device.
type DeviceInfo struct {
	ID          string          `json:"id" jsonschema:"description=Bus address (class:sub)"`
	Name        string          `json:"name"`
	Type        string          `json:"type" jsonschema:"description=light, gas_valve, ventilation, thermostat, batch_switch or meter"`
	Protocol    string          `json:"protocol"`
	Vendor      string          `json:"vendor,omitempty" jsonschema:"description=Vendor code learned from the characteristic response"`
	Version     string          `json:"version,omitempty" jsonschema:"description=Protocol version learned from the characteristic response"`
	Connected   bool            `json:"connected"`
	StateSchema json.RawMessage `json:"state_schema,omitempty" jsonschema:"description=JSON Schema accepted by set_device_state"`
	Exposes     json.RawMessage `json:"exposes,omitempty" jsonschema:"description=Learned capabilities"`
	State       map[string]any  `json:"state,omitempty" jsonschema:"description=Confirmed state"`
}

func deviceInfo(d *device.Device, state device.DeviceState) DeviceInfo {
	return DeviceInfo{
		ID:          d.ID,
		Name:        d.Name,
		Type:        d.Type,
		Protocol:    d.Protocol,
		Vendor:      d.Manufacturer,
		Version:     d.Model,
		Connected:   d.Connected,
		StateSchema: d.StateSchema,
		Exposes:     d.Exposes,
		State:       state,
	}
}

// ListDevicesOutput is returned by list_devices.
type ListDevicesOutput struct {
	Devices []DeviceInfo `json:"devices"`
	Count   int          `json:"count"`
}

// GetDeviceOutput is returned by get_device.
type GetDeviceOutput struct {
	Device DeviceInfo `json:"device"`
}

// StateOutput is returned by the state tools. For get_device_state it is
// the confirmed state; for set_device_state, turn_on and turn_off it is the
// requested state, which the device confirms asynchronously.
type StateOutput struct {
	DeviceID string         `json:"device_id"`
	State    map[string]any `json:"state"`
}

// ActionOutput is returned by tools without a result payload.
type ActionOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// DurationSeconds is set by start_discovery.
	DurationSeconds int `json:"duration_seconds,omitempty"`
}
