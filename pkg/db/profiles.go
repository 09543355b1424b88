package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileActive is returned when deleting the profile in use.
	ErrProfileActive = errors.New("profile is active")
)

// Profile is one installation: an API listener, a bus link, an optional
// MQTT broker and the devices learned on that bus.
type Profile struct {
	ID        int64
	Name      string
	Timezone  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the name and that the timezone is known.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name must not be empty")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return nil
}

// ProfileStore provides profile CRUD operations.
type ProfileStore interface {
	Get(ctx context.Context, id int64) (*Profile, error)
	GetByName(ctx context.Context, name string) (*Profile, error)
	GetActive(ctx context.Context) (*Profile, error)
	List(ctx context.Context) ([]*Profile, error)
	// Create inserts p together with a default API server and bus link.
	Create(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	SetActive(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Profiles returns a ProfileStore for this database.
func (db *DB) Profiles() ProfileStore {
	return &profileStore{db: db}
}

type profileStore struct {
	db *DB
}

const profileColumns = `id, name, timezone, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	p := &Profile{}
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.Name, &p.Timezone, &p.IsActive, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	p.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
	return p, nil
}

func (s *profileStore) Get(ctx context.Context, id int64) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id))
}

func (s *profileStore) GetByName(ctx context.Context, name string) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE name = ?`, name))
}

func (s *profileStore) GetActive(ctx context.Context) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE is_active = 1 LIMIT 1`))
}

func (s *profileStore) List(ctx context.Context) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *profileStore) Create(ctx context.Context, p *Profile) error {
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	if err := p.Validate(); err != nil {
		return err
	}
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if p.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 0`); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `
			INSERT INTO profiles (name, timezone, is_active) VALUES (?, ?, ?)
		`, p.Name, p.Timezone, p.IsActive)
		if err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		if p.ID, err = result.LastInsertId(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO api_servers (profile_id) VALUES (?)`, p.ID); err != nil {
			return fmt.Errorf("failed to create default API server: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO bus_configs (profile_id) VALUES (?)`, p.ID); err != nil {
			return fmt.Errorf("failed to create default bus config: %w", err)
		}
		return nil
	})
}

// Update renames p or changes its timezone. Activation goes through
// SetActive so exactly one profile stays active.
func (s *profileStore) Update(ctx context.Context, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET name = ?, timezone = ?, updated_at = datetime('now')
		WHERE id = ?
	`, p.Name, p.Timezone, p.ID)
	return expectRow(result, err, ErrProfileNotFound)
}

func (s *profileStore) SetActive(ctx context.Context, id int64) error {
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 0`); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `UPDATE profiles SET is_active = 1 WHERE id = ?`, id)
		return expectRow(result, err, ErrProfileNotFound)
	})
}

// Delete removes an inactive profile and, by cascade, its bus link, broker
// and devices.
func (s *profileStore) Delete(ctx context.Context, id int64) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.IsActive {
		return fmt.Errorf("%w: %s", ErrProfileActive, p.Name)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	return expectRow(result, err, ErrProfileNotFound)
}
