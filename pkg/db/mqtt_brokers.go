package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrMQTTBrokerNotFound = errors.New("mqtt broker config not found")

// MQTTBroker is the optional MQTT bridge target of a profile.
type MQTTBroker struct {
	ID        int64
	ProfileID int64
	URL       string
	Username  string
	Password  string
	Prefix    string
	Enabled   bool
	CreatedAt time.Time
}

// MQTTBrokerStore provides MQTT broker config CRUD operations.
type MQTTBrokerStore interface {
	Get(ctx context.Context, profileID int64) (*MQTTBroker, error)
	Save(ctx context.Context, m *MQTTBroker) error
	Delete(ctx context.Context, profileID int64) error
}

// MQTTBrokers returns an MQTTBrokerStore for this database.
func (db *DB) MQTTBrokers() MQTTBrokerStore {
	return &mqttBrokerStore{db: db}
}

type mqttBrokerStore struct {
	db *DB
}

func (s *mqttBrokerStore) Get(ctx context.Context, profileID int64) (*MQTTBroker, error) {
	m := &MQTTBroker{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, url, username, password, prefix, enabled, created_at
		FROM mqtt_brokers WHERE profile_id = ?
	`, profileID).Scan(&m.ID, &m.ProfileID, &m.URL, &m.Username, &m.Password, &m.Prefix, &m.Enabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrMQTTBrokerNotFound
	}
	if err != nil {
		return nil, err
	}
	m.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return m, nil
}

// Save inserts or replaces the broker config of m.ProfileID.
func (s *mqttBrokerStore) Save(ctx context.Context, m *MQTTBroker) error {
	if m.URL == "" {
		return errors.New("failed to save mqtt broker: url must not be empty")
	}
	if m.Prefix == "" {
		m.Prefix = "wallpad"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mqtt_brokers (profile_id, url, username, password, prefix, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			url = excluded.url, username = excluded.username, password = excluded.password,
			prefix = excluded.prefix, enabled = excluded.enabled
	`, m.ProfileID, m.URL, m.Username, m.Password, m.Prefix, m.Enabled)
	if err != nil {
		return fmt.Errorf("failed to save mqtt broker: %w", err)
	}
	return s.db.QueryRowContext(ctx, `SELECT id FROM mqtt_brokers WHERE profile_id = ?`, m.ProfileID).Scan(&m.ID)
}

func (s *mqttBrokerStore) Delete(ctx context.Context, profileID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM mqtt_brokers WHERE profile_id = ?`, profileID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMQTTBrokerNotFound
	}
	return nil
}
