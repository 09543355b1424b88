package device

import (
	"context"
	"time"
)

// Controller defines the interface for controlling bus devices. The API and
// MCP surfaces work against it so they can run without a bus attached.
type Controller interface {
	// ListDevices returns all registered devices
	ListDevices(ctx context.Context) ([]Device, error)

	// GetDevice returns a single device by address or name
	GetDevice(ctx context.Context, id string) (*Device, error)

	// RenameDevice changes a device's friendly name
	RenameDevice(ctx context.Context, id, newName string) error

	// RemoveDevice unregisters a device
	RemoveDevice(ctx context.Context, id string, force bool) error

	// GetDeviceState retrieves the confirmed state of a device
	GetDeviceState(ctx context.Context, id string) (DeviceState, error)

	// SetDeviceState requests a state change
	SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error)

	// Discover enables or disables registration of unknown responders for
	// duration. A zero duration keeps discovery on until disabled.
	Discover(ctx context.Context, enable bool, duration time.Duration) error

	// IsConnected returns true if the bus stream is running
	IsConnected() bool

	// Close stops the controller
	Close()
}

// EventSubscriber defines the interface for subscribing to device events
type EventSubscriber interface {
	// Subscribe returns a channel that receives discovery events
	Subscribe() chan DiscoveryEvent

	// Unsubscribe removes a subscription
	Unsubscribe(ch chan DiscoveryEvent)
}

// Census counts the devices of c and how many of them answer polls.
func Census(ctx context.Context, c Controller) (total, online int) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return 0, 0
	}
	for _, d := range devices {
		if d.Connected {
			online++
		}
	}
	return len(devices), online
}
