package db

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationDirection selects what Migrate does.
type MigrationDirection string

const (
	MigrateUp      MigrationDirection = "up"
	MigrateDown    MigrationDirection = "down"
	MigrateVersion MigrationDirection = "version"
)

// MigrationStatus reports the schema version after a migration run.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrate runs the embedded PostgreSQL migrations against dsn.
func Migrate(dsn string, direction MigrationDirection) (*MigrationStatus, error) {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch direction {
	case MigrateUp:
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("running up migrations: %w", err)
		}
	case MigrateDown:
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("running down migrations: %w", err)
		}
	case MigrateVersion:
	default:
		return nil, fmt.Errorf("unknown migration direction %q", direction)
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("reading migration version: %w", err)
	}
	return &MigrationStatus{Version: v, Dirty: dirty}, nil
}
