package store

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/mysql/*.sql
var migrationFS embed.FS

// MigrationsTable records the applied schema version.
const MigrationsTable = "ioc_schema_migrations"

// ServiceVersion is the migration that owns the ioc_* service tables. Every
// version above it creates domain tables only.
const ServiceVersion = 1

// Migrator applies the embedded schema migrations for the store's dialect.
type Migrator struct {
	m *migrate.Migrate
}

// migrateLogger adapts slog to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	slog.Debug("migrate: " + fmt.Sprintf(format, v...))
}

func (migrateLogger) Verbose() bool { return false }

// Migrator returns the store's migrator, creating it on first use. The
// underlying driver shares the store's connection pool and is never closed
// separately.
func (s *Store) Migrator() (*Migrator, error) {
	if s.migrator != nil {
		return s.migrator, nil
	}

	src, err := iofs.New(migrationFS, "migrations/"+s.driver)
	if err != nil {
		return nil, fmt.Errorf("loading %s migrations: %w", s.driver, err)
	}

	var m *migrate.Migrate
	switch s.driver {
	case DriverSQLite:
		drv, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{MigrationsTable: MigrationsTable})
		if err != nil {
			return nil, fmt.Errorf("preparing sqlite migrations: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "sqlite", drv)
		if err != nil {
			return nil, fmt.Errorf("creating migrator: %w", err)
		}
	case DriverMySQL:
		drv, err := migratemysql.WithInstance(s.db, &migratemysql.Config{MigrationsTable: MigrationsTable})
		if err != nil {
			return nil, fmt.Errorf("preparing mysql migrations: %w", err)
		}
		m, err = migrate.NewWithInstance("iofs", src, "mysql", drv)
		if err != nil {
			return nil, fmt.Errorf("creating migrator: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", s.driver)
	}
	m.Log = migrateLogger{}

	s.migrator = &Migrator{m: m}
	return s.migrator, nil
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

// Down rolls back the given number of migrations. steps <= 0 rolls back
// everything, including the service tables.
func (mg *Migrator) Down(steps int) error {
	var err error
	if steps <= 0 {
		err = mg.m.Down()
	} else {
		err = mg.m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating down: %w", err)
	}
	return nil
}

// Reset drops and recreates every domain table, keeping the service tables
// (settings, alert and audit logs) intact.
func (mg *Migrator) Reset() error {
	version, dirty, err := mg.Version()
	if err != nil {
		return err
	}
	if dirty {
		slog.Warn("schema is dirty, forcing version before reset", "version", version)
		if err := mg.m.Force(int(version)); err != nil {
			return fmt.Errorf("forcing version %d: %w", version, err)
		}
	}
	if version > ServiceVersion {
		if err := mg.m.Migrate(ServiceVersion); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("dropping domain tables: %w", err)
		}
	}
	return mg.Up()
}

// Version reports the applied migration version. A fresh database reports 0.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return v, dirty, nil
}
