package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrBusConfigNotFound = errors.New("bus config not found")

// Transport kinds for BusConfig.Transport.
const (
	TransportSerial = "serial"
	TransportTCP    = "tcp"
)

// BusConfig describes the link to the home-network bus and how the
// network drives it.
type BusConfig struct {
	ID             int64
	ProfileID      int64
	Transport      string
	Port           string // device path for serial, host:port for tcp
	BaudRate       int
	Mode           string
	PollInterval   time.Duration
	MissedPolls    int
	RepeatCount    int
	RepeatInterval time.Duration
	Lenient        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DefaultBusConfig returns the column defaults of bus_configs.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		Transport:      TransportSerial,
		Port:           "/dev/ttyUSB0",
		BaudRate:       9600,
		Mode:           "master",
		PollInterval:   5 * time.Second,
		MissedPolls:    3,
		RepeatCount:    3,
		RepeatInterval: 200 * time.Millisecond,
	}
}

// Validate checks the fields the database does not constrain.
func (b *BusConfig) Validate() error {
	switch b.Transport {
	case TransportSerial, TransportTCP:
	default:
		return fmt.Errorf("unknown transport %q", b.Transport)
	}
	if b.Port == "" {
		return errors.New("port must not be empty")
	}
	if b.Transport == TransportSerial && b.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", b.BaudRate)
	}
	if b.Mode != "master" && b.Mode != "slave" {
		return fmt.Errorf("unknown mode %q", b.Mode)
	}
	if b.PollInterval < 0 || b.RepeatInterval < 0 || b.RepeatCount < 0 || b.MissedPolls < 0 {
		return errors.New("intervals and counts must not be negative")
	}
	return nil
}

// BusConfigStore provides bus config CRUD operations.
type BusConfigStore interface {
	Get(ctx context.Context, profileID int64) (*BusConfig, error)
	Create(ctx context.Context, b *BusConfig) error
	Update(ctx context.Context, b *BusConfig) error
	Delete(ctx context.Context, profileID int64) error
}

// BusConfigs returns a BusConfigStore for this database.
func (db *DB) BusConfigs() BusConfigStore {
	return &busConfigStore{db: db}
}

type busConfigStore struct {
	db *DB
}

func (s *busConfigStore) Get(ctx context.Context, profileID int64) (*BusConfig, error) {
	b := &BusConfig{}
	var pollMS, repeatMS int64
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, transport, port, baud_rate, mode, poll_interval_ms,
		       missed_polls, repeat_count, repeat_interval_ms, lenient, created_at, updated_at
		FROM bus_configs WHERE profile_id = ?
	`, profileID).Scan(&b.ID, &b.ProfileID, &b.Transport, &b.Port, &b.BaudRate, &b.Mode, &pollMS,
		&b.MissedPolls, &b.RepeatCount, &repeatMS, &b.Lenient, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrBusConfigNotFound
	}
	if err != nil {
		return nil, err
	}
	b.PollInterval = time.Duration(pollMS) * time.Millisecond
	b.RepeatInterval = time.Duration(repeatMS) * time.Millisecond
	b.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	b.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return b, nil
}

func (s *busConfigStore) Create(ctx context.Context, b *BusConfig) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("failed to create bus config: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_configs (profile_id, transport, port, baud_rate, mode, poll_interval_ms,
		                         missed_polls, repeat_count, repeat_interval_ms, lenient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ProfileID, b.Transport, b.Port, b.BaudRate, b.Mode, b.PollInterval.Milliseconds(),
		b.MissedPolls, b.RepeatCount, b.RepeatInterval.Milliseconds(), b.Lenient)
	if err != nil {
		return fmt.Errorf("failed to create bus config: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

func (s *busConfigStore) Update(ctx context.Context, b *BusConfig) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("failed to update bus config: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE bus_configs SET transport = ?, port = ?, baud_rate = ?, mode = ?, poll_interval_ms = ?,
		       missed_polls = ?, repeat_count = ?, repeat_interval_ms = ?, lenient = ?,
		       updated_at = datetime('now')
		WHERE profile_id = ?
	`, b.Transport, b.Port, b.BaudRate, b.Mode, b.PollInterval.Milliseconds(),
		b.MissedPolls, b.RepeatCount, b.RepeatInterval.Milliseconds(), b.Lenient, b.ProfileID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBusConfigNotFound
	}
	return nil
}

func (s *busConfigStore) Delete(ctx context.Context, profileID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bus_configs WHERE profile_id = ?`, profileID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrBusConfigNotFound
	}
	return nil
}
