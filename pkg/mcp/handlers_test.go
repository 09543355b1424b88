package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/device/schema"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
	"github.com/urmzd/wallpad/pkg/transport"
)

const waitFor = 2 * time.Second

func newTestServer(t *testing.T) (*Server, *device.Network) {
	t.Helper()
	cfg := device.DefaultNetworkConfig()
	cfg.PollInterval = 0
	cfg.RepeatInterval = 50 * time.Millisecond
	master := device.NewNetwork(cfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	cfg.Mode = device.ModeSlave
	slave := device.NewNetwork(cfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)

	a, b := transport.NewPipePair()
	require.NoError(t, slave.Start(b))
	require.NoError(t, master.Start(a))
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	for _, s := range []string{"0E:11", "36:01", "30:01"} {
		addr, err := ksx4506.ParseAddress(s)
		require.NoError(t, err)
		sd, err := slave.AddDevice(addr, "")
		require.NoError(t, err)
		if addr.Class == ksx4506.ClassLight {
			require.NoError(t, sd.SetProperties(property.Int(codec.PropLightDimMax, 7)))
		}
		md, err := master.AddDevice(addr, "")
		require.NoError(t, err)
		require.NoError(t, md.Refresh())
		require.Eventually(t, func() bool { return md.Variant().Learned() }, waitFor, 5*time.Millisecond)
	}
	return NewServer(master, schema.NewValidator()), master
}

func call(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestGetHealth(t *testing.T) {
	s, _ := newTestServer(t)
	text, isErr := call(t, s.handleGetHealth, nil)
	require.False(t, isErr)
	var out GetHealthOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "connected", out.Bus)
	assert.Equal(t, 3, out.Devices)
	assert.Equal(t, 3, out.Online)

	null := NewServer(device.NewNullController(device.Device{ID: "0E:11", Name: "hall", Connected: true}), nil)
	text, _ = call(t, null.handleGetHealth, nil)
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "unhealthy", out.Status)
	assert.Equal(t, 1, out.Devices)
	assert.Zero(t, out.Online)
}

func TestListAndGetDevice(t *testing.T) {
	s, _ := newTestServer(t)

	text, isErr := call(t, s.handleListDevices, nil)
	require.False(t, isErr)
	var list ListDevicesOutput
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Equal(t, 3, list.Count)
	assert.Equal(t, "0E:11", list.Devices[0].ID)
	assert.True(t, list.Devices[0].Connected)

	text, isErr = call(t, s.handleGetDevice, map[string]any{"id": "thermostat_01"})
	require.False(t, isErr)
	var got GetDeviceOutput
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "36:01", got.Device.ID)

	_, isErr = call(t, s.handleGetDevice, map[string]any{"id": "0E:15"})
	assert.True(t, isErr)
	_, isErr = call(t, s.handleGetDevice, map[string]any{})
	assert.True(t, isErr)
}

func TestTurnOnOff(t *testing.T) {
	s, master := newTestServer(t)

	_, isErr := call(t, s.handleTurnOn, map[string]any{"id": "0E:11", "level": float64(5)})
	require.False(t, isErr)
	light, ok := master.HomeDevice("0E:11")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		level, _ := light.Confirmed().Get(codec.PropLightDimLevel)
		on, _ := light.Confirmed().Get(codec.PropLightOn)
		return on.AsBool() && level.AsInt() == 5
	}, waitFor, 5*time.Millisecond)

	_, isErr = call(t, s.handleTurnOn, map[string]any{"id": "0E:11", "level": float64(12)})
	assert.True(t, isErr, "level above dim_max")

	_, isErr = call(t, s.handleTurnOn, map[string]any{"id": "36:01"})
	require.False(t, isErr)
	thermo, _ := master.HomeDevice("36:01")
	require.Eventually(t, thermo.IsOn, waitFor, 5*time.Millisecond)

	_, isErr = call(t, s.handleTurnOff, map[string]any{"id": "36:01"})
	require.False(t, isErr)
	require.Eventually(t, func() bool { return !thermo.IsOn() }, waitFor, 5*time.Millisecond)

	text, isErr := call(t, s.handleTurnOn, map[string]any{"id": "30:01"})
	assert.True(t, isErr)
	assert.Contains(t, text, "no on/off control")
}

func TestSetDeviceState(t *testing.T) {
	s, _ := newTestServer(t)

	text, isErr := call(t, s.handleSetDeviceState, map[string]any{
		"id":    "light_11",
		"state": map[string]any{codec.PropLightOn: true},
	})
	require.False(t, isErr, text)
	var out StateOutput
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, true, out.State[codec.PropLightOn])

	_, isErr = call(t, s.handleSetDeviceState, map[string]any{"id": "0E:11", codec.PropLightDimLevel: float64(99)})
	assert.True(t, isErr)
}

func TestRenameRemoveAndDiscovery(t *testing.T) {
	s, master := newTestServer(t)

	_, isErr := call(t, s.handleRenameDevice, map[string]any{"id": "0E:11", "new_name": "porch"})
	require.False(t, isErr)
	_, ok := master.HomeDevice("porch")
	assert.True(t, ok)

	_, isErr = call(t, s.handleRemoveDevice, map[string]any{"id": "porch", "force": true})
	require.False(t, isErr)
	_, ok = master.HomeDevice("0E:11")
	assert.False(t, ok)

	_, isErr = call(t, s.handleStartDiscovery, map[string]any{"duration_seconds": float64(900)})
	assert.True(t, isErr)

	_, isErr = call(t, s.handleStartDiscovery, map[string]any{"duration_seconds": float64(5)})
	require.False(t, isErr)
	assert.True(t, master.Discovering())

	_, isErr = call(t, s.handleStopDiscovery, nil)
	require.False(t, isErr)
	assert.False(t, master.Discovering())
}

func TestTools_Registered(t *testing.T) {
	s := NewServer(device.NewNullController(), nil)
	names := map[string]bool{}
	for _, tool := range s.tools() {
		assert.False(t, names[tool.Tool.Name], "duplicate tool %s", tool.Tool.Name)
		names[tool.Tool.Name] = true
		require.NotNil(t, tool.Handler, tool.Tool.Name)
	}
	for _, want := range []string{"get_health", "list_devices", "get_device", "get_device_state",
		"rename_device", "remove_device", "set_device_state", "turn_on", "turn_off",
		"start_discovery", "stop_discovery"} {
		assert.True(t, names[want], want)
	}
}
