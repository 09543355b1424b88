package device

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/property"
)

// EventDeviceRenamed is published when a device gets a new name.
const EventDeviceRenamed = "device_renamed"

var (
	_ Controller      = (*Network)(nil)
	_ EventSubscriber = (*Network)(nil)
)

// describe builds the Controller view of d.
func (n *Network) describe(d *busDevice) Device {
	dev := Device{
		ID:          d.addr.String(),
		Name:        d.Name(),
		Type:        d.addr.Class.String(),
		Protocol:    ProtocolKSX4506,
		Connected:   d.IsConnected(),
		StateSchema: StateSchema(d.addr.Class, d.base),
		Exposes:     Exposes(d.addr.Class, d.base),
	}
	if v := d.ctx.Variant(); v.Learned() {
		dev.Manufacturer = fmt.Sprintf("0x%02X", v.Vendor)
		if vendor, ok := n.vendors.Lookup(v.Vendor); ok {
			dev.Manufacturer += " " + vendor.Name
		}
		dev.Model = fmt.Sprintf("v%d", v.Version)
	}
	if t, ok := d.seen(); ok {
		dev.LastSeen = &t
	}
	return dev
}

// ListDevices returns all registered devices ordered by address.
func (n *Network) ListDevices(ctx context.Context) ([]Device, error) {
	devs := n.snapshot()
	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		out = append(out, n.describe(d))
	}
	return out, nil
}

// GetDevice returns a device by address or name.
func (n *Network) GetDevice(ctx context.Context, id string) (*Device, error) {
	d, ok := n.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	dev := n.describe(d)
	return &dev, nil
}

// RenameDevice changes a device's friendly name.
func (n *Network) RenameDevice(ctx context.Context, id, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("%w: name must not be empty", ErrValidation)
	}
	d, ok := n.find(id)
	if !ok {
		return ErrNotFound
	}
	if other, ok := n.find(newName); ok && other != d {
		return fmt.Errorf("%w: name %q is taken by %s", ErrExists, newName, other.addr)
	}
	d.setName(newName)
	log.Info().Str("address", d.addr.String()).Str("name", newName).Msg("Device renamed")
	n.publishEvent(EventDeviceRenamed, d)
	return nil
}

// RemoveDevice unregisters a device. Without force a device with a control
// request in flight is kept.
func (n *Network) RemoveDevice(ctx context.Context, id string, force bool) error {
	d, ok := n.find(id)
	if !ok {
		return ErrNotFound
	}
	if d.hasPending() && !force {
		return fmt.Errorf("%w: %s has a control request in flight", ErrUnsupported, d.addr)
	}
	if p := d.takePending(nil); p != nil {
		n.proc.RemoveSchedule(p)
	}

	n.mu.Lock()
	delete(n.devices, d.addr)
	n.mu.Unlock()
	d.close()

	log.Info().Str("address", d.addr.String()).Msg("Device removed")
	n.publishEvent(EventDeviceRemoved, d)
	return nil
}

// GetDeviceState returns the confirmed state of a device.
func (n *Network) GetDeviceState(ctx context.Context, id string) (DeviceState, error) {
	d, ok := n.find(id)
	if !ok {
		return nil, ErrNotFound
	}
	return DeviceState(property.Map(d.base)), nil
}

// SetDeviceState converts state to property values of the kinds the device
// already declares and requests them. It returns the requested view.
func (n *Network) SetDeviceState(ctx context.Context, id string, state map[string]any) (DeviceState, error) {
	d, ok := n.find(id)
	if !ok {
		return nil, ErrNotFound
	}

	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	vs := make([]property.Value, 0, len(names))
	for _, name := range names {
		cur, ok := d.staging.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown property %q", ErrValidation, name)
		}
		v, err := property.New(name, cur.Kind(), state[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		vs = append(vs, v)
	}

	if err := d.SetProperties(vs...); err != nil {
		return nil, err
	}
	return DeviceState(property.Map(d.staging)), nil
}

// Discover turns discovery on or off. While on, characteristic responses
// from unknown addresses register new devices. A master also probes the
// discovery addresses once.
func (n *Network) Discover(ctx context.Context, enable bool, duration time.Duration) error {
	n.discMu.Lock()
	defer n.discMu.Unlock()

	if n.discTimer != nil {
		n.discTimer.Stop()
		n.discTimer = nil
	}
	if !enable {
		if n.discovering.Swap(false) {
			log.Info().Msg("Discovery stopped")
			n.publish(DiscoveryEvent{Type: EventDiscoveryStop, Timestamp: time.Now()})
		}
		return nil
	}

	n.runMu.Lock()
	if !n.running {
		n.runMu.Unlock()
		return ErrNotConnected
	}
	n.discovering.Store(true)
	if n.cfg.Mode == ModeMaster {
		n.wg.Add(1)
		go n.probe(n.stop)
	}
	n.runMu.Unlock()

	if duration > 0 {
		n.discTimer = time.AfterFunc(duration, func() {
			_ = n.Discover(context.Background(), false, 0)
		})
	}
	log.Info().Dur("duration", duration).Msg("Discovery started")
	n.publish(DiscoveryEvent{Type: EventDiscoveryStart, Timestamp: time.Now()})
	return nil
}

// Discovering reports whether discovery is on.
func (n *Network) Discovering() bool { return n.discovering.Load() }

// IsConnected reports whether the bus stream is running.
func (n *Network) IsConnected() bool {
	return n.proc.IsRunning()
}

// Close stops the network and closes every subscription.
func (n *Network) Close() {
	_ = n.Discover(context.Background(), false, 0)
	n.Stop()

	n.subMu.Lock()
	for _, ch := range n.subscribers {
		close(ch)
	}
	n.subscribers = nil
	n.subMu.Unlock()

	log.Info().Msg("Network closed")
}

// Subscribe returns a channel that receives discovery events.
func (n *Network) Subscribe() chan DiscoveryEvent {
	ch := make(chan DiscoveryEvent, 16)
	n.subMu.Lock()
	n.subscribers = append(n.subscribers, ch)
	n.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription.
func (n *Network) Unsubscribe(ch chan DiscoveryEvent) {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	for i, sub := range n.subscribers {
		if sub == ch {
			n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (n *Network) publishEvent(typ string, d *busDevice) {
	dev := n.describe(d)
	n.publish(DiscoveryEvent{Type: typ, Device: &dev, Timestamp: time.Now()})
}

// publish delivers ev without blocking; slow subscribers miss events.
func (n *Network) publish(ev DiscoveryEvent) {
	n.subMu.RLock()
	defer n.subMu.RUnlock()
	for _, ch := range n.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warn().Str("event", ev.Type).Msg("Dropping event for slow subscriber")
		}
	}
}
