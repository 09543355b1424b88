package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrDeviceNotFound = errors.New("device not found")

// DeviceRecord is a configured bus device. ID is the bus address ("0E:11").
// Version and Vendor are the learned (master) or presented (slave) protocol
// variant; zero means unknown.
type DeviceRecord struct {
	ID           string
	ProfileID    int64
	Name         string
	Type         string
	Protocol     string
	Manufacturer string
	Model        string
	Version      int
	Vendor       int
	LastSeen     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeviceStore provides configured device CRUD operations. Addresses are
// unique within a profile.
type DeviceStore interface {
	Get(ctx context.Context, profileID int64, id string) (*DeviceRecord, error)
	List(ctx context.Context, profileID int64) ([]*DeviceRecord, error)
	Upsert(ctx context.Context, d *DeviceRecord) error
	Rename(ctx context.Context, profileID int64, id, name string) error
	Delete(ctx context.Context, profileID int64, id string) error
}

// Devices returns a DeviceStore for this database.
func (db *DB) Devices() DeviceStore {
	return &deviceStore{db: db}
}

type deviceStore struct {
	db *DB
}

const deviceColumns = `id, profile_id, name, type, protocol, manufacturer, model, version, vendor,
	last_seen, created_at, updated_at`

func scanDevice(row rowScanner) (*DeviceRecord, error) {
	d := &DeviceRecord{}
	var lastSeen sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&d.ID, &d.ProfileID, &d.Name, &d.Type, &d.Protocol, &d.Manufacturer, &d.Model,
		&d.Version, &d.Vendor, &lastSeen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	d.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return d, nil
}

func (s *deviceStore) Get(ctx context.Context, profileID int64, id string) (*DeviceRecord, error) {
	d, err := scanDevice(s.db.QueryRowContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE profile_id = ? AND id = ?
	`, profileID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return d, err
}

func (s *deviceStore) List(ctx context.Context, profileID int64) ([]*DeviceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM devices WHERE profile_id = ? ORDER BY id
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var devices []*DeviceRecord
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Upsert inserts d or refreshes an existing row. A zero Version or Vendor
// keeps the stored value.
func (s *deviceStore) Upsert(ctx context.Context, d *DeviceRecord) error {
	var lastSeen any
	if d.LastSeen != nil {
		lastSeen = d.LastSeen.UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, profile_id, name, type, protocol, manufacturer, model, version, vendor, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id, id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			protocol = excluded.protocol,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			version = CASE WHEN excluded.version = 0 THEN devices.version ELSE excluded.version END,
			vendor = CASE WHEN excluded.vendor = 0 THEN devices.vendor ELSE excluded.vendor END,
			last_seen = COALESCE(excluded.last_seen, devices.last_seen),
			updated_at = datetime('now')
	`, d.ID, d.ProfileID, d.Name, d.Type, d.Protocol, d.Manufacturer, d.Model, d.Version, d.Vendor, lastSeen)
	if err != nil {
		return fmt.Errorf("failed to save device %s: %w", d.ID, err)
	}
	return nil
}

func (s *deviceStore) Rename(ctx context.Context, profileID int64, id, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, updated_at = datetime('now') WHERE profile_id = ? AND id = ?
	`, name, profileID, id)
	return expectRow(result, err, ErrDeviceNotFound)
}

func (s *deviceStore) Delete(ctx context.Context, profileID int64, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE profile_id = ? AND id = ?`, profileID, id)
	return expectRow(result, err, ErrDeviceNotFound)
}
