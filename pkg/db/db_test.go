package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Prepare(context.Background(), filepath.Join(t.TempDir(), "wallpad.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestMigrate_IsIdempotent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.Migrate(ctx))
	version, err := database.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestBootstrap_CreatesDefaults(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	needs, err := database.NeedsBootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Profile.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.APIAddress())

	require.NotNil(t, cfg.Bus)
	assert.Equal(t, TransportSerial, cfg.Bus.Transport)
	assert.Equal(t, 9600, cfg.Bus.BaudRate)
	assert.Equal(t, "master", cfg.Bus.Mode)
	assert.Equal(t, 5*time.Second, cfg.Bus.PollInterval)
	assert.Equal(t, 200*time.Millisecond, cfg.Bus.RepeatInterval)
	assert.False(t, cfg.MQTTEnabled())
	assert.Empty(t, cfg.Devices)
}

func TestBusConfigs_Update(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)

	bus := cfg.Bus
	bus.Transport = TransportTCP
	bus.Port = "10.0.0.5:8899"
	bus.Mode = "slave"
	bus.Lenient = true
	bus.RepeatInterval = 150 * time.Millisecond
	require.NoError(t, database.BusConfigs().Update(ctx, bus))

	got, err := database.BusConfigs().Get(ctx, cfg.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, TransportTCP, got.Transport)
	assert.Equal(t, "10.0.0.5:8899", got.Port)
	assert.Equal(t, "slave", got.Mode)
	assert.True(t, got.Lenient)
	assert.Equal(t, 150*time.Millisecond, got.RepeatInterval)

	bus.Mode = "observer"
	assert.Error(t, database.BusConfigs().Update(ctx, bus))

	require.NoError(t, database.BusConfigs().Delete(ctx, cfg.Profile.ID))
	_, err = database.BusConfigs().Get(ctx, cfg.Profile.ID)
	assert.ErrorIs(t, err, ErrBusConfigNotFound)

	cfg, err = database.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultBusConfig().Port, cfg.BusLink().Port)
}

func TestMQTTBrokers_SaveReplaces(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	profile, err := database.Profiles().GetActive(ctx)
	require.NoError(t, err)

	store := database.MQTTBrokers()
	require.Error(t, store.Save(ctx, &MQTTBroker{ProfileID: profile.ID}))

	m := &MQTTBroker{ProfileID: profile.ID, URL: "tcp://a:1883", Enabled: true}
	require.NoError(t, store.Save(ctx, m))
	assert.NotZero(t, m.ID)
	assert.Equal(t, "wallpad", m.Prefix)

	require.NoError(t, store.Save(ctx, &MQTTBroker{ProfileID: profile.ID, URL: "tcp://b:1883", Prefix: "home"}))
	got, err := store.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, "tcp://b:1883", got.URL)
	assert.Equal(t, "home", got.Prefix)
	assert.False(t, got.Enabled)

	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.MQTTEnabled())
}

func TestDevices_UpsertKeepsLearnedVariant(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	profile, err := database.Profiles().GetActive(ctx)
	require.NoError(t, err)
	store := database.Devices()

	seen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Upsert(ctx, &DeviceRecord{
		ID: "0E:11", ProfileID: profile.ID, Name: "light_11", Type: "light",
		Protocol: "ksx4506", Version: 2, Vendor: 0x10, LastSeen: &seen,
	}))
	require.NoError(t, store.Upsert(ctx, &DeviceRecord{
		ID: "0E:11", ProfileID: profile.ID, Name: "hall", Type: "light", Protocol: "ksx4506",
	}))

	got, err := store.Get(ctx, profile.ID, "0E:11")
	require.NoError(t, err)
	assert.Equal(t, "hall", got.Name)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, 0x10, got.Vendor)
	require.NotNil(t, got.LastSeen)
	assert.True(t, seen.Equal(*got.LastSeen))

	require.NoError(t, store.Upsert(ctx, &DeviceRecord{ID: "12:01", ProfileID: profile.ID, Name: "gas", Type: "gas_valve"}))
	list, err := store.List(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0E:11", list[0].ID)
	assert.Equal(t, "12:01", list[1].ID)

	require.NoError(t, store.Rename(ctx, profile.ID, "12:01", "boiler room"))
	got, err = store.Get(ctx, profile.ID, "12:01")
	require.NoError(t, err)
	assert.Equal(t, "boiler room", got.Name)

	require.NoError(t, store.Delete(ctx, profile.ID, "12:01"))
	assert.ErrorIs(t, store.Delete(ctx, profile.ID, "12:01"), ErrDeviceNotFound)
	assert.ErrorIs(t, store.Rename(ctx, profile.ID, "12:01", "x"), ErrDeviceNotFound)
	_, err = store.Get(ctx, profile.ID, "12:01")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestProfiles_OneActiveAndScopedDevices(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	profiles := database.Profiles()
	home, err := profiles.GetByName(ctx, DefaultProfile)
	require.NoError(t, err)

	bench := &Profile{Name: "bench", Timezone: "Asia/Seoul"}
	require.NoError(t, profiles.Create(ctx, bench))
	assert.Error(t, profiles.Create(ctx, &Profile{Name: "x", Timezone: "Mars/Olympus"}))
	assert.Error(t, profiles.Create(ctx, &Profile{Name: " "}))

	bus, err := database.BusConfigs().Get(ctx, bench.ID)
	require.NoError(t, err, "a new profile gets a default bus link")
	assert.Equal(t, TransportSerial, bus.Transport)

	devices := database.Devices()
	require.NoError(t, devices.Upsert(ctx, &DeviceRecord{ID: "0E:11", ProfileID: home.ID, Name: "hall", Type: "light"}))
	require.NoError(t, devices.Upsert(ctx, &DeviceRecord{ID: "0E:11", ProfileID: bench.ID, Name: "rig", Type: "light"}))
	got, err := devices.Get(ctx, home.ID, "0E:11")
	require.NoError(t, err)
	assert.Equal(t, "hall", got.Name)

	require.NoError(t, profiles.SetActive(ctx, bench.ID))
	active, err := profiles.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bench", active.Name)
	cfg, err := database.ActiveConfig(ctx)
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "rig", cfg.Devices[0].Name)

	assert.ErrorIs(t, profiles.Delete(ctx, bench.ID), ErrProfileActive)
	assert.ErrorIs(t, profiles.SetActive(ctx, 999), ErrProfileNotFound)
	require.NoError(t, profiles.Delete(ctx, home.ID))
	_, err = devices.Get(ctx, home.ID, "0E:11")
	assert.ErrorIs(t, err, ErrDeviceNotFound, "devices cascade with their profile")

	list, err := profiles.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsActive)
}

func TestAPIServers_UpdateAndOrigins(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	profile, err := database.Profiles().GetActive(ctx)
	require.NoError(t, err)

	store := database.APIServers()
	a, err := store.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, a.Origins())

	a.Host = "::1"
	a.Port = 9090
	a.CORSOrigins = "http://panel.local, http://localhost:3000,"
	require.NoError(t, store.Update(ctx, a))
	got, err := store.Get(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "[::1]:9090", got.Address())
	assert.Equal(t, []string{"http://panel.local", "http://localhost:3000"}, got.Origins())

	a.Port = 70000
	assert.Error(t, store.Update(ctx, a))
	require.NoError(t, store.Delete(ctx, profile.ID))
	assert.ErrorIs(t, store.Delete(ctx, profile.ID), ErrAPIServerNotFound)
	assert.ErrorIs(t, store.Update(ctx, &APIServer{ProfileID: profile.ID, Host: "h", Port: 1}), ErrAPIServerNotFound)
}
