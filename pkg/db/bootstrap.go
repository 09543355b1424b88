package db

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultProfile is the name of the profile created on first run.
const DefaultProfile = "default"

// Bootstrap creates the active default profile, with its API server and bus
// link, when the database has no profiles yet.
func (db *DB) Bootstrap(ctx context.Context) error {
	needs, err := db.NeedsBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("failed to check profiles: %w", err)
	}
	if !needs {
		return nil
	}
	p := &Profile{Name: DefaultProfile, Timezone: detectTimezone(), IsActive: true}
	if err := db.Profiles().Create(ctx, p); err != nil {
		return fmt.Errorf("failed to create default profile: %w", err)
	}
	return nil
}

// NeedsBootstrap returns true if the database needs initial setup.
func (db *DB) NeedsBootstrap(ctx context.Context) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&count)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// detectTimezone returns the host's IANA zone, or UTC when it cannot be
// determined or is not in the local tz database.
func detectTimezone() string {
	candidates := []func() string{
		func() string { return os.Getenv("TZ") },
		func() string {
			out, err := exec.Command("timedatectl", "show", "--property=Timezone", "--value").Output()
			if err != nil {
				return ""
			}
			return string(out)
		},
		func() string {
			data, err := os.ReadFile("/etc/timezone")
			if err != nil {
				return ""
			}
			return string(data)
		},
		func() string {
			link, err := os.Readlink("/etc/localtime")
			if err != nil {
				return ""
			}
			if _, zone, ok := strings.Cut(link, "zoneinfo/"); ok {
				return zone
			}
			return ""
		},
	}
	for _, c := range candidates {
		tz := strings.TrimSpace(c())
		if tz == "" {
			continue
		}
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	return "UTC"
}
