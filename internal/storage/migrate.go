package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// withMigrator opens a dedicated connection to dbPath and hands fn a migrator
// over the embedded schema. The connection is closed when fn returns.
func withMigrator(dbPath string, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	return fn(m)
}

// RunMigrations brings the contracts, selections and runs schema up to date.
func RunMigrations(dbPath string) error {
	return withMigrator(dbPath, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("run migrations: %w", err)
		}
		v, dirty, err := m.Version()
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		slog.Debug("Schema up to date", "path", dbPath, "version", v, "dirty", dirty)
		return nil
	})
}

// SchemaVersion reports the applied migration version. A database that was
// never migrated reports 0.
func SchemaVersion(dbPath string) (uint, error) {
	var version uint
	err := withMigrator(dbPath, func(m *migrate.Migrate) error {
		v, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			return nil
		case err != nil:
			return fmt.Errorf("read schema version: %w", err)
		case dirty:
			return fmt.Errorf("schema version %d is dirty", v)
		}
		version = v
		return nil
	})
	return version, err
}
