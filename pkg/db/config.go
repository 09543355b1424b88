package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrNoActiveProfile = errors.New("no active profile found")

// Config represents the complete runtime configuration loaded from the database.
type Config struct {
	Profile   *Profile
	APIServer *APIServer
	Bus       *BusConfig
	MQTT      *MQTTBroker
	Devices   []*DeviceRecord
}

// APIAddress returns the API server listen address.
func (c *Config) APIAddress() string {
	if c.APIServer == nil {
		return "0.0.0.0:8080"
	}
	return c.APIServer.Address()
}

// CORSOrigins returns the origins the API accepts.
func (c *Config) CORSOrigins() []string {
	if c.APIServer == nil {
		return []string{"*"}
	}
	return c.APIServer.Origins()
}

// Timezone returns the profile timezone.
func (c *Config) Timezone() string {
	if c.Profile == nil {
		return "UTC"
	}
	return c.Profile.Timezone
}

// BusLink returns the bus config, falling back to defaults.
func (c *Config) BusLink() *BusConfig {
	if c.Bus == nil {
		return DefaultBusConfig()
	}
	return c.Bus
}

// MQTTEnabled reports whether the MQTT bridge should run.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT != nil && c.MQTT.Enabled && c.MQTT.URL != ""
}

// ActiveConfig loads the complete configuration for the active profile.
func (db *DB) ActiveConfig(ctx context.Context) (*Config, error) {
	// Get active profile
	profile, err := db.Profiles().GetActive(ctx)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrNoActiveProfile
		}
		return nil, fmt.Errorf("failed to get active profile: %w", err)
	}

	config := &Config{
		Profile: profile,
	}

	// Get API server config
	apiServer, err := db.APIServers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrAPIServerNotFound) {
		return nil, fmt.Errorf("failed to get API server config: %w", err)
	}
	config.APIServer = apiServer

	bus, err := db.BusConfigs().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrBusConfigNotFound) {
		return nil, fmt.Errorf("failed to get bus config: %w", err)
	}
	config.Bus = bus

	broker, err := db.MQTTBrokers().Get(ctx, profile.ID)
	if err != nil && !errors.Is(err, ErrMQTTBrokerNotFound) {
		return nil, fmt.Errorf("failed to get mqtt broker config: %w", err)
	}
	config.MQTT = broker

	devices, err := db.Devices().List(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	config.Devices = devices

	return config, nil
}
