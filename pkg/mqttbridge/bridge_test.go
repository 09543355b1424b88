package mqttbridge

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
	"github.com/urmzd/wallpad/pkg/transport"
)

const waitFor = 2 * time.Second

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu       sync.Mutex
	msgs     []message
	handlers map[string]MessageHandler
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{topic: topic, retained: retained, payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeBroker) Subscribe(topic string, _ byte, h MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = h
	return nil
}

func (f *fakeBroker) Close() {}

func (f *fakeBroker) deliver(pattern, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[pattern]
	f.mu.Unlock()
	h(topic, payload)
}

func (f *fakeBroker) last(topic string) (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].topic == topic {
			return f.msgs[i], true
		}
	}
	return message{}, false
}

func (f *fakeBroker) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.topic == topic {
			n++
		}
	}
	return n
}

func netConfig(mode device.Mode) device.NetworkConfig {
	cfg := device.DefaultNetworkConfig()
	cfg.Mode = mode
	cfg.PollInterval = 0
	cfg.RepeatInterval = 50 * time.Millisecond
	return cfg
}

func newBus(t *testing.T) (*device.Network, *device.Network) {
	t.Helper()
	a, b := transport.NewPipePair()
	master := device.NewNetwork(netConfig(device.ModeMaster), transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	slave := device.NewNetwork(netConfig(device.ModeSlave), transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	require.NoError(t, slave.Start(b))
	require.NoError(t, master.Start(a))
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})
	return master, slave
}

func lightAddr(t *testing.T) ksx4506.Address {
	t.Helper()
	a, err := ksx4506.ParseAddress("0E:11")
	require.NoError(t, err)
	return a
}

func statePayload(t *testing.T, m message) StatePayload {
	t.Helper()
	var p StatePayload
	require.NoError(t, json.Unmarshal(m.payload, &p))
	return p
}

func TestTopics_DeviceOf(t *testing.T) {
	tp := Topics{Prefix: "wallpad"}
	addr, ok := tp.DeviceOf("wallpad/0E:11/set")
	assert.True(t, ok)
	assert.Equal(t, "0E:11", addr)

	for _, topic := range []string{"wallpad/0E:11/state", "other/0E:11/set", "wallpad//set", "wallpad/a/b/set"} {
		_, ok := tp.DeviceOf(topic)
		assert.False(t, ok, topic)
	}
}

func TestBridge_PublishesStateAndAppliesSet(t *testing.T) {
	master, slave := newBus(t)
	_, err := slave.AddDevice(lightAddr(t), "")
	require.NoError(t, err)
	md, err := master.AddDevice(lightAddr(t), "hall")
	require.NoError(t, err)
	require.NoError(t, md.Refresh())
	require.Eventually(t, func() bool { return md.Variant().Learned() }, waitFor, 5*time.Millisecond)

	broker := newFakeBroker()
	br := New(broker, master, Config{})
	require.NoError(t, br.Start())
	t.Cleanup(br.Stop)

	status, ok := broker.last("wallpad/status")
	require.True(t, ok)
	assert.True(t, status.retained)
	assert.Equal(t, "online", string(status.payload))

	require.Eventually(t, func() bool {
		_, ok := broker.last("wallpad/0E:11/state")
		return ok
	}, waitFor, 5*time.Millisecond)
	m, _ := broker.last("wallpad/0E:11/state")
	assert.True(t, m.retained)
	p := statePayload(t, m)
	assert.Equal(t, "hall", p.Name)
	assert.Equal(t, false, p.State[codec.PropLightOn])

	broker.deliver("wallpad/+/set", "wallpad/0E:11/set", []byte(`{"light.on": true}`))

	require.Eventually(t, func() bool {
		m, ok := broker.last("wallpad/0E:11/state")
		if !ok {
			return false
		}
		var p StatePayload
		return json.Unmarshal(m.payload, &p) == nil && p.State[codec.PropLightOn] == true && p.Connected
	}, waitFor, 5*time.Millisecond)

	sd, ok := slave.HomeDevice("0E:11")
	require.True(t, ok)
	assert.True(t, sd.IsOn())
}

func TestBridge_RejectedSetPublishesError(t *testing.T) {
	master, _ := newBus(t)
	_, err := master.AddDevice(lightAddr(t), "")
	require.NoError(t, err)

	broker := newFakeBroker()
	br := New(broker, master, Config{Prefix: "home"})
	require.NoError(t, br.Start())
	t.Cleanup(br.Stop)

	broker.deliver("home/+/set", "home/0E:11/set", []byte(`{"light.colour": 3}`))
	require.Eventually(t, func() bool {
		_, ok := broker.last("home/0E:11/error")
		return ok
	}, waitFor, 5*time.Millisecond)

	m, _ := broker.last("home/0E:11/error")
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(m.payload, &p))
	assert.Contains(t, p.Error, "light.colour")
	assert.False(t, m.retained)

	broker.deliver("home/+/set", "home/0E:11/set", []byte(`not json`))
	require.Eventually(t, func() bool {
		return broker.count("home/0E:11/error") == 2
	}, waitFor, 5*time.Millisecond)
}

func TestBridge_SkipsUnchangedState(t *testing.T) {
	master, _ := newBus(t)
	d, err := master.AddDevice(lightAddr(t), "")
	require.NoError(t, err)

	broker := newFakeBroker()
	br := New(broker, master, Config{})
	require.NoError(t, br.Start())
	t.Cleanup(br.Stop)

	require.Eventually(t, func() bool {
		return broker.count("wallpad/0E:11/state") == 1
	}, waitFor, 5*time.Millisecond)

	br.markDirty(d.Address().String())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, broker.count("wallpad/0E:11/state"))
}

func TestBridge_TracksDetectedAndRemovedDevices(t *testing.T) {
	master, slave := newBus(t)
	sd, err := slave.AddDevice(lightAddr(t), "")
	require.NoError(t, err)
	require.NoError(t, sd.SetProperties(property.Int(codec.PropLightDimMax, 5)))

	broker := newFakeBroker()
	br := New(broker, master, Config{})
	require.NoError(t, br.Start())
	t.Cleanup(br.Stop)

	require.NoError(t, master.Discover(context.Background(), true, 0))
	require.Eventually(t, func() bool {
		_, ok := broker.last("wallpad/0E:11/state")
		return ok
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, master.RemoveDevice(context.Background(), "0E:11", true))
	require.Eventually(t, func() bool {
		m, ok := broker.last("wallpad/0E:11/state")
		return ok && len(m.payload) == 0 && m.retained
	}, waitFor, 5*time.Millisecond)
}

func TestBridge_StopMarksOffline(t *testing.T) {
	master, _ := newBus(t)
	broker := newFakeBroker()
	br := New(broker, master, Config{})
	require.NoError(t, br.Start())
	br.Stop()
	br.Stop()

	m, ok := broker.last("wallpad/status")
	require.True(t, ok)
	assert.Equal(t, "offline", string(m.payload))
}

func TestClientOptions(t *testing.T) {
	cfg := Config{URL: "tcp://broker:1883", Username: "u", Password: "p"}.withDefaults()
	opts := clientOptions(cfg)
	assert.Equal(t, "wallpad", cfg.Prefix)
	assert.Contains(t, cfg.ClientID, "wallpad-")
	assert.Equal(t, "u", opts.Username)
	assert.True(t, opts.WillEnabled)
	assert.Equal(t, "wallpad/status", opts.WillTopic)
	assert.True(t, opts.WillRetained)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "broker:1883", opts.Servers[0].Host)
}
