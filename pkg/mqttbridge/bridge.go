package mqttbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/device"
)

// Source is the bus side of the bridge.
type Source interface {
	device.Controller
	device.EventSubscriber
	HomeDevice(id string) (device.HomeDevice, bool)
	HomeDevices() []device.HomeDevice
}

// StatePayload is published retained on the state topic.
type StatePayload struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	State     map[string]any `json:"state"`
	Connected bool           `json:"connected"`
	LastSeen  *time.Time     `json:"last_seen,omitempty"`
}

// ErrorPayload is published on the error topic.
type ErrorPayload struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge publishes device state to a broker and applies set messages.
// Device callbacks only mark work; a single goroutine talks to the broker
// so the bus receive path never waits on the network.
type Bridge struct {
	broker Broker
	src    Source
	topics Topics
	qos    byte

	mu       sync.Mutex
	attached map[string]device.CallbackID
	last     map[string][]byte
	dirty    map[string]bool
	errs     []deviceError

	kick   chan struct{}
	stop   chan struct{}
	wg     sync.WaitGroup
	events chan device.DiscoveryEvent
}

type deviceError struct {
	addr string
	err  error
}

// New creates a bridge. Start must be called to begin publishing.
func New(broker Broker, src Source, cfg Config) *Bridge {
	cfg = cfg.withDefaults()
	return &Bridge{
		broker:   broker,
		src:      src,
		topics:   Topics{Prefix: cfg.Prefix},
		qos:      cfg.QoS,
		attached: make(map[string]device.CallbackID),
		last:     make(map[string][]byte),
		dirty:    make(map[string]bool),
		kick:     make(chan struct{}, 1),
	}
}

// Topics returns the topic layout in use.
func (b *Bridge) Topics() Topics { return b.topics }

// Start announces the bridge, subscribes to set topics and publishes the
// state of every known device.
func (b *Bridge) Start() error {
	if err := b.broker.Publish(b.topics.Status(), 1, true, []byte("online")); err != nil {
		return err
	}
	if err := b.broker.Subscribe(b.topics.AllSet(), b.qos, b.handleSet); err != nil {
		return err
	}

	b.stop = make(chan struct{})
	b.events = b.src.Subscribe()
	for _, d := range b.src.HomeDevices() {
		b.attach(d)
	}

	b.wg.Add(2)
	go b.publishLoop()
	go b.eventLoop()
	log.Info().Str("prefix", b.topics.Prefix).Msg("MQTT bridge started")
	return nil
}

// Stop detaches from every device and marks the bridge offline.
func (b *Bridge) Stop() {
	if b.stop == nil {
		return
	}
	b.src.Unsubscribe(b.events)
	close(b.stop)
	b.wg.Wait()
	b.stop = nil

	b.mu.Lock()
	ids := make(map[string]device.CallbackID, len(b.attached))
	for addr, id := range b.attached {
		ids[addr] = id
	}
	b.attached = make(map[string]device.CallbackID)
	b.mu.Unlock()
	for addr, id := range ids {
		if d, ok := b.src.HomeDevice(addr); ok {
			d.RemoveCallback(id)
		}
	}

	if err := b.broker.Publish(b.topics.Status(), 1, true, []byte("offline")); err != nil {
		log.Warn().Err(err).Msg("Failed to publish bridge status")
	}
	log.Info().Msg("MQTT bridge stopped")
}

func (b *Bridge) attach(d device.HomeDevice) {
	addr := d.Address().String()
	b.mu.Lock()
	if _, ok := b.attached[addr]; ok {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	id := d.AddCallback(device.CallbackFuncs{
		Changed: func(d device.HomeDevice) { b.markDirty(d.Address().String()) },
		Error: func(d device.HomeDevice, err error) {
			b.mu.Lock()
			b.errs = append(b.errs, deviceError{addr: d.Address().String(), err: err})
			b.mu.Unlock()
			b.markDirty(d.Address().String())
		},
	})

	b.mu.Lock()
	b.attached[addr] = id
	b.mu.Unlock()
	b.markDirty(addr)
}

// detach forgets a removed device and clears its retained state.
func (b *Bridge) detach(addr string) {
	b.mu.Lock()
	delete(b.attached, addr)
	delete(b.last, addr)
	delete(b.dirty, addr)
	b.mu.Unlock()

	if err := b.broker.Publish(b.topics.State(addr), b.qos, true, nil); err != nil {
		log.Warn().Err(err).Str("address", addr).Msg("Failed to clear retained state")
	}
}

func (b *Bridge) markDirty(addr string) {
	b.mu.Lock()
	b.dirty[addr] = true
	b.mu.Unlock()
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

func (b *Bridge) eventLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		}
	}
}

func (b *Bridge) handleEvent(ev device.DiscoveryEvent) {
	if ev.Device == nil {
		return
	}
	switch ev.Type {
	case device.EventDeviceDetected:
		if d, ok := b.src.HomeDevice(ev.Device.ID); ok {
			b.attach(d)
		}
	case device.EventDeviceRemoved:
		b.detach(ev.Device.ID)
	case device.EventDeviceRenamed, device.EventDeviceLost, device.EventDeviceRecovered:
		b.markDirty(ev.Device.ID)
	}
}

func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case <-b.kick:
			b.flush()
		}
	}
}

func (b *Bridge) flush() {
	b.mu.Lock()
	dirty := b.dirty
	b.dirty = make(map[string]bool)
	errs := b.errs
	b.errs = nil
	b.mu.Unlock()

	for _, e := range errs {
		payload, _ := json.Marshal(ErrorPayload{Error: e.err.Error(), Timestamp: time.Now()})
		if err := b.broker.Publish(b.topics.Error(e.addr), b.qos, false, payload); err != nil {
			log.Warn().Err(err).Str("address", e.addr).Msg("Failed to publish device error")
		}
	}
	for addr := range dirty {
		b.publishState(addr)
	}
}

// publishState publishes the confirmed state of addr unless it is unchanged
// since the last publish.
func (b *Bridge) publishState(addr string) {
	d, ok := b.src.HomeDevice(addr)
	if !ok {
		return
	}
	dev, err := b.src.GetDevice(context.Background(), addr)
	if err != nil {
		return
	}
	state, err := b.src.GetDeviceState(context.Background(), addr)
	if err != nil {
		return
	}
	payload, err := json.Marshal(StatePayload{
		Name:      dev.Name,
		Type:      dev.Type,
		State:     state,
		Connected: d.IsConnected(),
		LastSeen:  dev.LastSeen,
	})
	if err != nil {
		return
	}

	b.mu.Lock()
	_, live := b.attached[addr]
	same := bytes.Equal(b.last[addr], payload)
	b.mu.Unlock()
	if !live || same {
		return
	}

	if err := b.broker.Publish(b.topics.State(addr), b.qos, true, payload); err != nil {
		log.Warn().Err(err).Str("address", addr).Msg("Failed to publish device state")
		return
	}
	b.mu.Lock()
	b.last[addr] = payload
	b.mu.Unlock()
}

func (b *Bridge) handleSet(topic string, payload []byte) {
	addr, ok := b.topics.DeviceOf(topic)
	if !ok {
		return
	}
	var state map[string]any
	if err := json.Unmarshal(payload, &state); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Ignoring malformed set payload")
		b.queueError(addr, err)
		return
	}
	if _, err := b.src.SetDeviceState(context.Background(), addr, state); err != nil {
		log.Warn().Err(err).Str("address", addr).Msg("Set request rejected")
		b.queueError(addr, err)
		return
	}
	log.Debug().Str("address", addr).Interface("state", state).Msg("Set request accepted")
}

func (b *Bridge) queueError(addr string, err error) {
	b.mu.Lock()
	b.errs = append(b.errs, deviceError{addr: addr, err: err})
	b.mu.Unlock()
	select {
	case b.kick <- struct{}{}:
	default:
	}
}
