// Package mqttbridge mirrors bus devices to an MQTT broker.
package mqttbridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected is returned when the broker connection is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish is not acknowledged.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe is not acknowledged.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second
	disconnectQuiesce     = 500 // milliseconds
)

// MessageHandler receives a message. It runs on a paho goroutine.
type MessageHandler func(topic string, payload []byte)

// Broker is the part of an MQTT client the bridge needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Close()
}

// Config configures the broker connection and topic layout.
type Config struct {
	URL      string // tcp://host:1883
	ClientID string
	Username string
	Password string
	Prefix   string
	QoS      byte
}

// DefaultConfig returns a local broker configuration.
func DefaultConfig() Config {
	return Config{URL: "tcp://127.0.0.1:1883", Prefix: "wallpad", QoS: 1}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.URL == "" {
		c.URL = def.URL
	}
	if c.Prefix == "" {
		c.Prefix = def.Prefix
	}
	if c.ClientID == "" {
		c.ClientID = "wallpad-" + uuid.NewString()[:8]
	}
	return c
}

func clientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(Topics{Prefix: cfg.Prefix}.Status(), "offline", 1, true)
	return opts
}

// Client is a paho-backed Broker that restores subscriptions on reconnect.
type Client struct {
	client pahomqtt.Client
	cfg    Config

	mu   sync.RWMutex
	subs map[string]subscription
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker described by cfg.
func Connect(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	c := &Client{cfg: cfg, subs: make(map[string]subscription)}

	opts := clientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.restore() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.URL).Msg("MQTT connection lost")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	log.Info().Str("broker", cfg.URL).Str("client_id", cfg.ClientID).Msg("MQTT connected")
	return c, nil
}

func (c *Client) restore() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for topic, sub := range c.subs {
		c.client.Subscribe(topic, sub.qos, wrap(sub.handler))
	}
}

func wrap(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT handler panic recovered")
			}
		}()
		h(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload and waits for the acknowledgement.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Subscribe registers handler for topic.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	c.mu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.mu.Unlock()

	token := c.client.Subscribe(topic, qos, wrap(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesce)
	log.Info().Str("broker", c.cfg.URL).Msg("MQTT disconnected")
}
