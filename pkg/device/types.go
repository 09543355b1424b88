package device

import (
	"encoding/json"
	"time"
)

// Device describes one unit on the bus as seen through the Controller.
type Device struct {
	ID           string          `json:"id"`           // Bus address, e.g. "0E:11"
	Name         string          `json:"name"`         // User-friendly name
	Type         string          `json:"type"`         // Device class (light, gas_valve, ...)
	Protocol     string          `json:"protocol"`     // Always ksx4506 for bus devices
	Manufacturer string          `json:"manufacturer"` // Learned vendor code, e.g. "0x21"
	Model        string          `json:"model"`        // Learned protocol variant
	Connected    bool            `json:"connected"`    // Answered recently
	LastSeen     *time.Time      `json:"last_seen,omitempty"`
	StateSchema  json.RawMessage `json:"state_schema"` // JSON Schema for settable state
	Exposes      json.RawMessage `json:"exposes"`      // Capability properties
}

// DeviceState represents the current state of a device as a dynamic map.
type DeviceState map[string]any

// DiscoveryEvent represents a device discovery event
type DiscoveryEvent struct {
	Type      string    `json:"type"`             // Event type (device_detected, device_removed, ...)
	Device    *Device   `json:"device,omitempty"` // Device information if available
	Timestamp time.Time `json:"timestamp"`        // When the event occurred
}

// Discovery event types
const (
	EventDeviceDetected  = "device_detected"
	EventDeviceRemoved   = "device_removed"
	EventDiscoveryStart  = "discovery_started"
	EventDiscoveryStop   = "discovery_stopped"
	EventDeviceLost      = "device_lost"
	EventDeviceRecovered = "device_recovered"
)

// ProtocolKSX4506 is the protocol name of bus devices.
const ProtocolKSX4506 = "ksx4506"

// Mode selects which side of the bus a Network plays.
type Mode string

const (
	// ModeMaster polls devices and issues control requests.
	ModeMaster Mode = "master"
	// ModeSlave answers requests for locally simulated devices.
	ModeSlave Mode = "slave"
)

// ParseMode parses "master" or "slave".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMaster, ModeSlave:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode
	}
}
