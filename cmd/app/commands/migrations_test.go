package commands

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/allisson/provenance/internal/config"
	"github.com/allisson/provenance/internal/database"
)

func TestRunMigrations(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	t.Run("no-schema-drivers", func(t *testing.T) {
		require.NoError(t, RunMigrations(nil, config.StoreDriverMemory, logger))
		require.NoError(t, RunMigrations(nil, config.StoreDriverBadger, logger))
	})

	t.Run("sqlite-is-idempotent", func(t *testing.T) {
		db, err := database.ConnectSQLite(filepath.Join(t.TempDir(), "worm.db"))
		require.NoError(t, err)
		defer func() { _ = db.Close() }()

		require.NoError(t, RunMigrations(db, config.StoreDriverSQLite, logger))
		require.NoError(t, RunMigrations(db, config.StoreDriverSQLite, logger))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM worm_records").Scan(&count))
		require.Equal(t, 0, count)
	})
}
