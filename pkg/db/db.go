// Package db stores installation profiles, bus links, MQTT brokers and the
// devices learned on each bus in SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	_ "modernc.org/sqlite"
)

// busyTimeout lets the device persister and API writers wait on each other
// instead of failing with SQLITE_BUSY.
const busyTimeout = 5 * time.Second

// DB wraps a SQLite database connection with application-specific methods.
type DB struct {
	*sql.DB
	path string
}

// Open opens or creates the database at path. An empty path selects
// DefaultPath; a leading ~ expands to the home directory.
func Open(path string) (*DB, error) {
	path, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	return path + "?" + q.Encode()
}

func resolvePath(path string) (string, error) {
	if path == "" {
		return DefaultPath()
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return path, nil
}

// DefaultPath is wallpad/wallpad.db under $XDG_CONFIG_HOME, or ~/.config
// when that is unset.
func DefaultPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine database path: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "wallpad", "wallpad.db"), nil
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

// Tx runs fn in a transaction, committing when it returns nil.
func (db *DB) Tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Prepare opens the database at path, migrates it and bootstraps a default
// profile on first run. The caller closes the returned DB.
func Prepare(ctx context.Context, path string) (*DB, error) {
	database, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	if err := database.Bootstrap(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to bootstrap database: %w", err)
	}
	return database, nil
}
