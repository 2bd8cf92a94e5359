package repository

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/allisson/provenance/internal/database"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies the embedded worm_records migrations for the given driver.
// It returns nil when the schema is already current.
func Migrate(db *sql.DB, driver string, logger *slog.Logger) error {
	var (
		dir      string
		instance migratedb.Driver
		err      error
	)
	switch driver {
	case database.DriverSQLite:
		dir = "migrations/sqlite"
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	case database.DriverPostgres:
		dir = "migrations/postgresql"
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	case database.DriverMySQL:
		dir = "migrations/mysql"
		instance, err = mysql.WithInstance(db, &mysql.Config{})
	default:
		return fmt.Errorf("unsupported migration driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	defer func() {
		_ = source.Close()
	}()

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("worm schema is up to date", slog.String("driver", driver))
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	logger.Info("worm schema migrated", slog.String("driver", driver), slog.Uint64("version", uint64(version)))
	return nil
}
