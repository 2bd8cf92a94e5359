package repository

import (
	"database/sql"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/allisson/provenance/internal/database"
)

// NewSQLiteStore creates a store over a SQLite database migrated with Migrate.
// Open db with database.ConnectSQLite so commits are fully synchronous.
func NewSQLiteStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, sqlDialect{
		name:        database.DriverSQLite,
		placeholder: questionPlaceholder,
		substr:      "substr",
		insert:      lastInsertIDInsert,
		isDuplicate: isSQLiteDuplicate,
	})
}

func isSQLiteDuplicate(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}
	code := liteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
