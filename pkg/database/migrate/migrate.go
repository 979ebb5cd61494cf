// Package migrate provides database migration support using golang-migrate.
package migrate

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrations embed.FS

// migrator is the subset of *migrate.Migrate used here.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
}

// migratorFactory builds a migrator over the embedded migrations. Tests swap it.
var migratorFactory = newMigrator

func newMigrator(db *sql.DB) (migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("creating postgres driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// Run applies every pending migration. Already applied migrations are
// skipped.
func Run(db *sql.DB) error {
	m, err := migratorFactory(db)
	if err != nil {
		return err
	}
	if err := ignoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		slog.Info("database has no migrations applied")
	case err != nil:
		return fmt.Errorf("getting migration version: %w", err)
	case dirty:
		slog.Warn("database migration state is dirty", "version", version)
	default:
		slog.Info("database migrations complete", "version", version)
	}
	return nil
}

// Version returns the current migration version and whether the last
// migration failed part way.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := migratorFactory(db)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

// Down rolls back every migration, dropping all relay tables.
func Down(db *sql.DB) error {
	return apply(db, "rolling back migrations", func(m migrator) error { return m.Down() })
}

// Steps applies n migrations; a negative n rolls back.
func Steps(db *sql.DB, n int) error {
	return apply(db, "stepping migrations", func(m migrator) error { return m.Steps(n) })
}

func apply(db *sql.DB, doing string, op func(migrator) error) error {
	m, err := migratorFactory(db)
	if err != nil {
		return err
	}
	if err := ignoreNoChange(op(m)); err != nil {
		return fmt.Errorf("%s: %w", doing, err)
	}
	return nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
