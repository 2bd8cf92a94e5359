package commands

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/allisson/provenance/internal/config"
	wormRepository "github.com/allisson/provenance/internal/worm/repository"
)

// RunMigrations applies the embedded WORM store schema for the SQL store drivers.
// Embedded key-value and in-memory stores need no schema and are reported as such.
func RunMigrations(db *sql.DB, driver string, logger *slog.Logger) error {
	switch driver {
	case config.StoreDriverSQLite, config.StoreDriverPostgres, config.StoreDriverMySQL:
	default:
		logger.Info("store driver has no schema to migrate", slog.String("driver", driver))
		return nil
	}

	logger.Info("running database migrations", slog.String("driver", driver))

	if err := wormRepository.Migrate(db, driver, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
