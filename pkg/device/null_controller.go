package device

import (
	"context"
	"strings"
	"time"
)

// NullController stands in when the bus cannot be opened. It serves the
// stored devices read-only, all disconnected, and fails every operation
// that needs bus traffic with ErrNotConnected.
type NullController struct {
	devices []Device
}

// NewNullController creates a controller listing devices as offline.
func NewNullController(devices ...Device) *NullController {
	c := &NullController{devices: make([]Device, len(devices))}
	for i, d := range devices {
		d.Connected = false
		if d.Protocol == "" {
			d.Protocol = ProtocolKSX4506
		}
		c.devices[i] = d
	}
	return c
}

func (c *NullController) ListDevices(ctx context.Context) ([]Device, error) {
	return append([]Device{}, c.devices...), nil
}

// GetDevice looks up a stored device by address or name.
func (c *NullController) GetDevice(ctx context.Context, id string) (*Device, error) {
	for _, d := range c.devices {
		if strings.EqualFold(d.ID, id) || d.Name == id {
			d := d
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (c *NullController) RenameDevice(ctx context.Context, id, newName string) error {
	return ErrNotConnected
}

func (c *NullController) RemoveDevice(ctx context.Context, id string, force bool) error {
	return ErrNotConnected
}

func (c *NullController) GetDeviceState(ctx context.Context, id string) (DeviceState, error) {
	if _, err := c.GetDevice(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrNotConnected
}

func (c *NullController) SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error) {
	return nil, ErrNotConnected
}

func (c *NullController) Discover(ctx context.Context, enable bool, duration time.Duration) error {
	return ErrNotConnected
}

func (c *NullController) IsConnected() bool {
	return false
}

func (c *NullController) Close() {}

// NullEventSubscriber hands out channels that never receive.
type NullEventSubscriber struct{}

// NewNullEventSubscriber creates a new NullEventSubscriber.
func NewNullEventSubscriber() *NullEventSubscriber {
	return &NullEventSubscriber{}
}

func (s *NullEventSubscriber) Subscribe() chan DiscoveryEvent {
	return make(chan DiscoveryEvent)
}

func (s *NullEventSubscriber) Unsubscribe(ch chan DiscoveryEvent) {
	close(ch)
}
