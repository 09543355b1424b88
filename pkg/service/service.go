// Package service assembles a running bus network from the stored
// configuration. The api and mcp entry points share it.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/mqttbridge"
	"github.com/urmzd/wallpad/pkg/transport"
)

const tcpDialTimeout = 5 * time.Second

// NetworkConfig converts a stored bus link to network settings.
func NetworkConfig(b *db.BusConfig) (device.NetworkConfig, error) {
	cfg := device.DefaultNetworkConfig()
	mode, err := device.ParseMode(b.Mode)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = mode
	cfg.PollInterval = b.PollInterval
	cfg.MissedPolls = b.MissedPolls
	cfg.RepeatCount = b.RepeatCount
	cfg.RepeatInterval = b.RepeatInterval
	cfg.Codec = codec.Options{LenientMasks: b.Lenient}
	return cfg, nil
}

// Session returns an unopened session for the stored bus link.
func Session(b *db.BusConfig) (transport.Session, error) {
	switch b.Transport {
	case db.TransportSerial:
		sc := transport.DefaultSerialConfig(b.Port)
		if b.BaudRate > 0 {
			sc.BaudRate = b.BaudRate
		}
		return transport.NewSerialSession(sc), nil
	case db.TransportTCP:
		return transport.NewTCPSession(b.Port, tcpDialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", b.Transport)
	}
}

// Restore registers the stored devices on n. A slave presents the stored
// variant. Records that no longer parse are skipped with a warning.
func Restore(n *device.Network, records []*db.DeviceRecord) int {
	restored := 0
	for _, rec := range records {
		addr, err := ksx4506.ParseAddress(rec.ID)
		if err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("Skipping stored device")
			continue
		}
		if _, err := n.AddDevice(addr, rec.Name); err != nil {
			log.Warn().Err(err).Str("address", rec.ID).Msg("Skipping stored device")
			continue
		}
		if n.Mode() == device.ModeSlave && (rec.Version != 0 || rec.Vendor != 0) {
			if err := n.Preset(rec.ID, uint8(rec.Version), uint8(rec.Vendor)); err != nil {
				log.Warn().Err(err).Str("address", rec.ID).Msg("Failed to preset variant")
			}
		}
		restored++
	}
	return restored
}

// Offline describes stored devices for the null controller.
func Offline(records []*db.DeviceRecord) []device.Device {
	out := make([]device.Device, 0, len(records))
	for _, rec := range records {
		out = append(out, device.Device{
			ID:           rec.ID,
			Name:         rec.Name,
			Type:         rec.Type,
			Protocol:     rec.Protocol,
			Manufacturer: rec.Manufacturer,
			Model:        rec.Model,
			LastSeen:     rec.LastSeen,
		})
	}
	return out
}

// Service is a started network plus its persistence and MQTT bridge.
// Without a reachable bus it degrades to the null controller.
type Service struct {
	Controller device.Controller
	Events     device.EventSubscriber
	Network    *device.Network

	persister *Persister
	bridge    *mqttbridge.Bridge
	broker    mqttbridge.Broker
}

// Start builds and starts the network described by cfg.
func Start(ctx context.Context, database *db.DB, cfg *db.Config) (*Service, error) {
	link := cfg.BusLink()
	netCfg, err := NetworkConfig(link)
	if err != nil {
		return nil, err
	}
	session, err := Session(link)
	if err != nil {
		return nil, err
	}

	n := device.NewNetwork(netCfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	restored := Restore(n, cfg.Devices)

	if err := n.Start(session); err != nil {
		log.Warn().Err(err).Str("port", link.Port).Msg("Bus unavailable, using null controller")
		n.Close()
		return &Service{
			Controller: device.NewNullController(Offline(cfg.Devices)...),
			Events:     device.NewNullEventSubscriber(),
		}, nil
	}
	log.Info().Int("devices", restored).Str("port", link.Port).Msg("Bus network started")

	s := &Service{Controller: n, Events: n, Network: n}
	if database != nil {
		s.persister = NewPersister(database.Devices(), n, cfg.Profile.ID)
		s.persister.Start()
	}

	if cfg.MQTTEnabled() {
		broker, err := mqttbridge.Connect(mqttbridge.Config{
			URL:      cfg.MQTT.URL,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Prefix:   cfg.MQTT.Prefix,
			QoS:      1,
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTT.URL).Msg("MQTT bridge disabled")
		} else {
			s.broker = broker
			s.bridge = mqttbridge.New(broker, n, mqttbridge.Config{Prefix: cfg.MQTT.Prefix, QoS: 1})
			if err := s.bridge.Start(); err != nil {
				log.Warn().Err(err).Msg("MQTT bridge failed to start")
				broker.Close()
				s.bridge, s.broker = nil, nil
			}
		}
	}
	return s, nil
}

// Close stops the bridge, persistence and the network, in that order.
func (s *Service) Close() {
	if s.bridge != nil {
		s.bridge.Stop()
		s.broker.Close()
	}
	if s.persister != nil {
		s.persister.Stop()
	}
	s.Controller.Close()
}
