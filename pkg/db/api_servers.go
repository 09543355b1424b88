package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

var ErrAPIServerNotFound = errors.New("api server config not found")

// APIServer is where the REST surface of a profile listens.
type APIServer struct {
	ID        int64
	ProfileID int64
	Host      string
	Port      int
	// CORSOrigins is a comma separated origin list; "*" allows any.
	CORSOrigins string
	CreatedAt   time.Time
}

// Address returns the API server listen address (host:port).
func (a *APIServer) Address() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Origins splits CORSOrigins, defaulting to any origin.
func (a *APIServer) Origins() []string {
	var out []string
	for _, o := range strings.Split(a.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Validate checks the listen address.
func (a *APIServer) Validate() error {
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("invalid API port %d", a.Port)
	}
	if a.Host == "" {
		return errors.New("API host must not be empty")
	}
	return nil
}

// APIServerStore provides API server config CRUD operations.
type APIServerStore interface {
	Get(ctx context.Context, profileID int64) (*APIServer, error)
	Create(ctx context.Context, a *APIServer) error
	Update(ctx context.Context, a *APIServer) error
	Delete(ctx context.Context, profileID int64) error
}

// APIServers returns an APIServerStore for this database.
func (db *DB) APIServers() APIServerStore {
	return &apiServerStore{db: db}
}

type apiServerStore struct {
	db *DB
}

func (s *apiServerStore) Get(ctx context.Context, profileID int64) (*APIServer, error) {
	a := &APIServer{}
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, host, port, cors_origins, created_at
		FROM api_servers WHERE profile_id = ?
	`, profileID).Scan(&a.ID, &a.ProfileID, &a.Host, &a.Port, &a.CORSOrigins, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIServerNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
	return a, nil
}

func (s *apiServerStore) Create(ctx context.Context, a *APIServer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.CORSOrigins == "" {
		a.CORSOrigins = "*"
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO api_servers (profile_id, host, port, cors_origins)
		VALUES (?, ?, ?, ?)
	`, a.ProfileID, a.Host, a.Port, a.CORSOrigins)
	if err != nil {
		return fmt.Errorf("failed to create API server config: %w", err)
	}
	a.ID, err = result.LastInsertId()
	return err
}

func (s *apiServerStore) Update(ctx context.Context, a *APIServer) error {
	if err := a.Validate(); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_servers SET host = ?, port = ?, cors_origins = ?
		WHERE profile_id = ?
	`, a.Host, a.Port, a.CORSOrigins, a.ProfileID)
	return expectRow(result, err, ErrAPIServerNotFound)
}

func (s *apiServerStore) Delete(ctx context.Context, profileID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM api_servers WHERE profile_id = ?`, profileID)
	return expectRow(result, err, ErrAPIServerNotFound)
}

// expectRow turns a statement that touched no rows into notFound.
func expectRow(result sql.Result, err, notFound error) error {
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
