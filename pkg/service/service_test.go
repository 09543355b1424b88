package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/transport"
)

const waitFor = 2 * time.Second

func openDB(t *testing.T) (*db.DB, *db.Config) {
	t.Helper()
	ctx := context.Background()
	database, err := db.Prepare(ctx, filepath.Join(t.TempDir(), "wallpad.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)
	return database, cfg
}

func TestNetworkConfig(t *testing.T) {
	b := db.DefaultBusConfig()
	b.Mode = "slave"
	b.Lenient = true
	b.RepeatCount = 5
	cfg, err := NetworkConfig(b)
	require.NoError(t, err)
	assert.Equal(t, device.ModeSlave, cfg.Mode)
	assert.True(t, cfg.Codec.LenientMasks)
	assert.Equal(t, 5, cfg.RepeatCount)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)

	b.Mode = "monitor"
	_, err = NetworkConfig(b)
	assert.ErrorIs(t, err, device.ErrInvalidMode)
}

func TestSession(t *testing.T) {
	b := db.DefaultBusConfig()
	s, err := Session(b)
	require.NoError(t, err)
	assert.IsType(t, &transport.SerialSession{}, s)

	b.Transport = db.TransportTCP
	b.Port = "127.0.0.1:8899"
	s, err = Session(b)
	require.NoError(t, err)
	assert.IsType(t, &transport.TCPSession{}, s)

	b.Transport = "usb"
	_, err = Session(b)
	assert.Error(t, err)
}

func TestRestore(t *testing.T) {
	cfg := device.DefaultNetworkConfig()
	cfg.Mode = device.ModeSlave
	n := device.NewNetwork(cfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	t.Cleanup(n.Close)

	got := Restore(n, []*db.DeviceRecord{
		{ID: "0E:11", Name: "hall", Version: 2, Vendor: 0x10},
		{ID: "zz", Name: "broken"},
		{ID: "0E:11", Name: "dup"},
		{ID: "12:01"},
	})
	assert.Equal(t, 2, got)

	d, ok := n.HomeDevice("hall")
	require.True(t, ok)
	assert.Equal(t, uint8(2), d.Variant().Version)
	_, ok = n.HomeDevice("gas_valve_01")
	assert.True(t, ok)
}

func TestStart_FallsBackWithoutBus(t *testing.T) {
	database, cfg := openDB(t)
	ctx := context.Background()
	cfg.Bus.Port = filepath.Join(t.TempDir(), "no-such-tty")
	cfg.Devices = []*db.DeviceRecord{{ID: "0E:11", Name: "hall", Type: "light"}}

	s, err := Start(ctx, database, cfg)
	require.NoError(t, err)
	defer s.Close()
	assert.Nil(t, s.Network)
	assert.False(t, s.Controller.IsConnected())

	list, err := s.Controller.ListDevices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hall", list[0].Name)
	assert.False(t, list[0].Connected)
	assert.Equal(t, device.ProtocolKSX4506, list[0].Protocol)

	d, err := s.Controller.GetDevice(ctx, "0e:11")
	require.NoError(t, err)
	assert.Equal(t, "0E:11", d.ID)
	_, err = s.Controller.GetDeviceState(ctx, "hall")
	assert.ErrorIs(t, err, device.ErrNotConnected)
	_, err = s.Controller.GetDevice(ctx, "12:01")
	assert.ErrorIs(t, err, device.ErrNotFound)
}

func TestPersister_FollowsNetworkEvents(t *testing.T) {
	database, cfg := openDB(t)
	ctx := context.Background()

	a, b := transport.NewPipePair()
	mcfg := device.DefaultNetworkConfig()
	mcfg.PollInterval = 0
	master := device.NewNetwork(mcfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	scfg := mcfg
	scfg.Mode = device.ModeSlave
	slave := device.NewNetwork(scfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)

	addr, err := ksx4506.ParseAddress("0E:11")
	require.NoError(t, err)
	_, err = slave.AddDevice(addr, "")
	require.NoError(t, err)
	require.NoError(t, slave.Preset("0E:11", 3, 0x21))

	require.NoError(t, slave.Start(b))
	require.NoError(t, master.Start(a))
	t.Cleanup(func() {
		master.Close()
		slave.Close()
	})

	p := NewPersister(database.Devices(), master, cfg.Profile.ID)
	p.Start()
	t.Cleanup(p.Stop)

	require.NoError(t, master.Discover(ctx, true, 0))
	require.Eventually(t, func() bool {
		_, err := database.Devices().Get(ctx, cfg.Profile.ID, "0E:11")
		return err == nil
	}, waitFor, 10*time.Millisecond)

	rec, err := database.Devices().Get(ctx, cfg.Profile.ID, "0E:11")
	require.NoError(t, err)
	assert.Equal(t, "light", rec.Type)
	assert.Equal(t, device.ProtocolKSX4506, rec.Protocol)
	assert.Equal(t, 3, rec.Version)
	assert.Equal(t, 0x21, rec.Vendor)

	require.NoError(t, master.RenameDevice(ctx, "0E:11", "hall"))
	require.Eventually(t, func() bool {
		rec, err := database.Devices().Get(ctx, cfg.Profile.ID, "0E:11")
		return err == nil && rec.Name == "hall"
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, master.RemoveDevice(ctx, "hall", true))
	require.Eventually(t, func() bool {
		_, err := database.Devices().Get(ctx, cfg.Profile.ID, "0E:11")
		return err == db.ErrDeviceNotFound
	}, waitFor, 10*time.Millisecond)
}
